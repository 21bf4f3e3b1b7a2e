package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/onnwee/playlist-pulse/backend/db"
	"github.com/onnwee/playlist-pulse/backend/playlisturl"
)

// SubmitOutcome tells the HTTP surface what happened to a submit request:
// route to the dashboard, show progress for an in-flight job, surface a
// blocked state, or report a freshly enqueued job.
type SubmitOutcome struct {
	CanonicalURL string
	DashboardID  string
	// Cached is set when today's stats row already exists; the caller
	// routes straight to /d/{DashboardID} without creating a job.
	Cached bool
	// HasDashboard is set when any completed analysis exists for the URL
	// (possibly stale); with Cached false the read layer decides.
	HasDashboard bool
	// Status is the newest job's status ("" when no job exists yet).
	Status string
	JobID  int64
	// Enqueued is set when this call created the pending row.
	Enqueued bool
}

// Submit implements the cache/coalescing policy: normalize, consult the
// fresh-today cache, then the newest job row, and only enqueue when nothing
// cached or in flight exists. At most one non-terminal job per normalized
// URL survives concurrent submits; losers observe the winner's job.
func Submit(ctx context.Context, dbc *sql.DB, rawURL string) (*SubmitOutcome, error) {
	canon, err := playlisturl.Normalize(rawURL)
	if err != nil {
		return nil, err
	}
	out := &SubmitOutcome{
		CanonicalURL: canon,
		DashboardID:  playlisturl.Fingerprint(canon),
	}

	cached, err := db.GetCachedStats(ctx, dbc, canon, true)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if cached != nil {
		out.Cached = true
		out.HasDashboard = true
		return out, nil
	}

	job, err := db.GetLatestJob(ctx, dbc, canon)
	if err != nil {
		return nil, fmt.Errorf("job lookup: %w", err)
	}
	if job != nil {
		out.Status = job.Status
		out.JobID = job.ID
		switch job.Status {
		case db.StatusPending, db.StatusProcessing:
			// Coalesce: the existing job's progress view serves both
			// submitters.
			return out, nil
		case db.StatusComplete:
			// Stale cache; the read layer serves the last materialized
			// view.
			out.HasDashboard = true
			return out, nil
		case db.StatusBlocked:
			// Remediation is waiting, not retrying; no automatic
			// re-enqueue.
			return out, nil
		}
	}

	jobID, err := db.EnqueueJob(ctx, dbc, canon)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	slog.Info("analysis job enqueued",
		slog.Int64("job_id", jobID),
		slog.String("dashboard_id", out.DashboardID),
		slog.String("component", "submit"))
	out.JobID = jobID
	out.Status = db.StatusPending
	out.Enqueued = true
	return out, nil
}
