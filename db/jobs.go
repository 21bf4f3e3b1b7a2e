package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Job statuses. Writers emit only these; reads map the legacy 'done' value
// to complete.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
	StatusBlocked    = "blocked"
)

// Job is one row of the playlist_jobs queue.
type Job struct {
	ID          int64
	PlaylistURL string
	Status      string
	Progress    int
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// Terminal reports whether a status admits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusComplete, StatusFailed, StatusBlocked:
		return true
	}
	return false
}

// normalizeStatus maps legacy status spellings to the current vocabulary.
func normalizeStatus(s string) string {
	if s == "done" {
		return StatusComplete
	}
	return s
}

const jobColumns = `id, playlist_url, status, COALESCE(progress,0), COALESCE(attempts,0),
	COALESCE(last_error,''), created_at, started_at, finished_at`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var j Job
	if err := row.Scan(&j.ID, &j.PlaylistURL, &j.Status, &j.Progress, &j.Attempts,
		&j.LastError, &j.CreatedAt, &j.StartedAt, &j.FinishedAt); err != nil {
		return nil, err
	}
	j.Status = normalizeStatus(j.Status)
	return &j, nil
}

// EnqueueJob inserts a pending job for the given normalized URL and returns
// its id. The partial unique index on active jobs makes this race-safe: when
// a pending/processing row already exists the insert is a no-op and the
// surviving job's id is returned instead.
func EnqueueJob(ctx context.Context, db *sql.DB, playlistURL string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `INSERT INTO playlist_jobs (playlist_url, status, created_at)
		VALUES ($1,'pending',NOW())
		ON CONFLICT (playlist_url) WHERE status IN ('pending','processing') DO NOTHING
		RETURNING id`, playlistURL).Scan(&id)
	if err == sql.ErrNoRows {
		// Lost the race; return the active row.
		existing, gerr := GetLatestJob(ctx, db, playlistURL)
		if gerr != nil {
			return 0, gerr
		}
		if existing == nil {
			return 0, fmt.Errorf("enqueue conflict but no active job for %s", playlistURL)
		}
		return existing.ID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// LeaseNextPending atomically claims up to batch pending jobs: status moves
// to processing, started_at is set, attempts increments, and the updated
// rows are returned. FOR UPDATE SKIP LOCKED guarantees no job id appears in
// two workers' batches.
func LeaseNextPending(ctx context.Context, db *sql.DB, batch int) ([]Job, error) {
	if batch <= 0 {
		batch = 1
	}
	rows, err := db.QueryContext(ctx, `UPDATE playlist_jobs
		SET status='processing', started_at=NOW(), attempts=COALESCE(attempts,0)+1
		WHERE id IN (
			SELECT id FROM playlist_jobs
			WHERE status='pending'
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, batch)
	if err != nil {
		return nil, fmt.Errorf("lease pending jobs: %w", err)
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// UpdateJobProgress writes a progress percentage to a job row. Progress is
// advisory; callers swallow errors.
func UpdateJobProgress(ctx context.Context, db *sql.DB, jobID int64, progressPct int) error {
	if progressPct < 0 {
		progressPct = 0
	}
	if progressPct > 100 {
		progressPct = 100
	}
	_, err := db.ExecContext(ctx, `UPDATE playlist_jobs SET progress=$1 WHERE id=$2`, progressPct, jobID)
	return err
}

// MarkJobStatus transitions a job to the given status. Terminal statuses set
// finished_at. Only complete may carry progress=100: it forces 100, while
// failed/blocked cap progress at 99 in case the fetch finished before a
// later write failed. lastError is stored for failed/blocked rows (empty
// clears it).
func MarkJobStatus(ctx context.Context, db *sql.DB, jobID int64, status, lastError string) error {
	const maxErrLen = 2000
	if len(lastError) > maxErrLen {
		lastError = lastError[:maxErrLen]
	}
	var err error
	switch status {
	case StatusComplete:
		_, err = db.ExecContext(ctx, `UPDATE playlist_jobs
			SET status='complete', progress=100, last_error=NULL, finished_at=NOW() WHERE id=$1`, jobID)
	case StatusFailed, StatusBlocked:
		_, err = db.ExecContext(ctx, `UPDATE playlist_jobs
			SET status=$1, progress=LEAST(COALESCE(progress,0),99),
				last_error=NULLIF($2,''), finished_at=NOW() WHERE id=$3`, status, lastError, jobID)
	case StatusPending, StatusProcessing:
		_, err = db.ExecContext(ctx, `UPDATE playlist_jobs SET status=$1 WHERE id=$2`, status, jobID)
	default:
		return fmt.Errorf("unknown job status %q", status)
	}
	if err != nil {
		return fmt.Errorf("mark job %d %s: %w", jobID, status, err)
	}
	return nil
}

// GetJob returns a job by id, or nil when absent.
func GetJob(ctx context.Context, db *sql.DB, jobID int64) (*Job, error) {
	j, err := scanJob(db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM playlist_jobs WHERE id=$1`, jobID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// GetLatestJob returns the newest job for a normalized URL by created_at, or
// nil when none exists.
func GetLatestJob(ctx context.Context, db *sql.DB, playlistURL string) (*Job, error) {
	j, err := scanJob(db.QueryRowContext(ctx, `SELECT `+jobColumns+`
		FROM playlist_jobs WHERE playlist_url=$1
		ORDER BY created_at DESC, id DESC LIMIT 1`, playlistURL))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// GetJobStatus returns the newest job's status for a URL, or empty string
// when the URL has never been submitted.
func GetJobStatus(ctx context.Context, db *sql.DB, playlistURL string) (string, error) {
	j, err := GetLatestJob(ctx, db, playlistURL)
	if err != nil {
		return "", err
	}
	if j == nil {
		return "", nil
	}
	return j.Status, nil
}

// ListJobs returns recent jobs, optionally filtered by status.
func ListJobs(ctx context.Context, db *sql.DB, status string, limit int) ([]Job, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + jobColumns + ` FROM playlist_jobs`
	args := []any{}
	if status != "" {
		q += ` WHERE status=$1 ORDER BY created_at DESC, id DESC LIMIT $2`
		args = append(args, status, limit)
	} else {
		q += ` ORDER BY created_at DESC, id DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// CountJobsByStatus returns the number of jobs currently in a status.
func CountJobsByStatus(ctx context.Context, db *sql.DB, status string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM playlist_jobs WHERE status=$1`, status).Scan(&n)
	return n, err
}

// ResetStuckProcessing returns jobs stuck in processing longer than maxAge
// to pending. Operator remediation for workers killed mid-job.
func ResetStuckProcessing(ctx context.Context, db *sql.DB, maxAge time.Duration) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE playlist_jobs
		SET status='pending', started_at=NULL
		WHERE status='processing' AND started_at < NOW() - make_interval(secs => $1)`,
		int(maxAge.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
