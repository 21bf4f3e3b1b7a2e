package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/playlist-pulse/backend/config"
	"github.com/onnwee/playlist-pulse/backend/db"
	"github.com/onnwee/playlist-pulse/backend/playlisturl"
	"github.com/onnwee/playlist-pulse/backend/telemetry"
)

// Worker drains the playlist_jobs queue. It is the only component that
// translates backend error kinds into job states. Primary is the configured
// backend; Fallback (optional) is tried within the same job when the
// primary reports quota exhaustion.
type Worker struct {
	DB       *sql.DB
	Primary  Backend
	Fallback Backend
	Cfg      *config.Config
}

// Run polls the queue until ctx is canceled or the wall-clock budget
// (Cfg.MaxRuntime, 0 = unlimited) is exhausted. Jobs leased in one tick are
// processed concurrently up to the batch size; the loop exits within
// MaxRuntime plus one in-flight batch.
func (w *Worker) Run(ctx context.Context) {
	start := time.Now()
	interval := w.Cfg.PollInterval
	slog.Info("analysis worker starting",
		slog.Duration("poll_interval", interval),
		slog.Int("batch_size", w.Cfg.BatchSize),
		slog.Duration("max_runtime", w.Cfg.MaxRuntime),
		slog.String("component", "worker"))
	for {
		if w.Cfg.MaxRuntime > 0 && time.Since(start) >= w.Cfg.MaxRuntime {
			slog.Info("worker runtime budget exhausted", slog.String("component", "worker"))
			return
		}
		select {
		case <-ctx.Done():
			slog.Info("analysis worker stopped", slog.String("component", "worker"))
			return
		default:
		}
		if err := w.tick(ctx); err != nil {
			slog.Warn("worker tick", slog.Any("err", err), slog.String("component", "worker"))
		}
		sleep := interval
		if w.Cfg.MaxRuntime > 0 {
			if remaining := w.Cfg.MaxRuntime - time.Since(start); remaining < sleep {
				sleep = remaining
			}
			if sleep <= 0 {
				continue
			}
		}
		select {
		case <-ctx.Done():
			slog.Info("analysis worker stopped", slog.String("component", "worker"))
			return
		case <-time.After(sleep):
		}
	}
}

// tick leases one batch and processes it.
func (w *Worker) tick(ctx context.Context) error {
	db.Heartbeat(ctx, w.DB, "job_worker_last")
	if depth, err := db.CountJobsByStatus(ctx, w.DB, db.StatusPending); err == nil {
		telemetry.SetQueueDepth(depth)
	}
	jobs, err := db.LeaseNextPending(ctx, w.DB, w.Cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}
	slog.Debug("leased jobs", slog.Int("count", len(jobs)), slog.String("component", "worker"))
	var wg sync.WaitGroup
	for i := range jobs {
		job := jobs[i]
		telemetry.JobsLeased.Inc()
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processOne(ctx, job)
		}()
	}
	wg.Wait()
	return nil
}

// processOne runs a single leased job to a terminal state. A shutdown mid
// job leaves the row in processing; operators reset it via the admin
// surface.
func (w *Worker) processOne(ctx context.Context, job db.Job) {
	logger := slog.Default().With(slog.Int64("job_id", job.ID), slog.String("component", "worker"))
	start := time.Now()

	rows, meta, err := w.fetch(ctx, job, logger)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown: leave the lease in place rather than mislabel the
			// job as failed.
			logger.Info("fetch aborted by shutdown")
			return
		}
		w.finishWithError(ctx, job, err, logger)
		return
	}

	enriched, summary := Enrich(rows, meta.VideoCount)

	stats, err := w.buildStats(job, meta, enriched, summary)
	if err != nil {
		w.markStatus(ctx, job.ID, db.StatusFailed, err.Error(), logger)
		telemetry.JobsFailed.Inc()
		return
	}
	if _, err := w.upsertWithRetry(ctx, stats); err != nil {
		logger.Error("stats upsert failed", slog.Any("err", err))
		w.markStatus(ctx, job.ID, db.StatusFailed, fmt.Sprintf("store error: %v", err), logger)
		telemetry.JobsFailed.Inc()
		return
	}
	w.markStatus(ctx, job.ID, db.StatusComplete, "", logger)
	telemetry.JobsCompleted.Inc()

	dur := time.Since(start)
	telemetry.JobDuration.Observe(dur.Seconds())
	if n := len(rows); n > 0 {
		db.UpdateMovingAvg(ctx, w.DB, "avg_video_fetch_ms", float64(dur.Milliseconds())/float64(n))
	}
	logger.Info("job complete",
		slog.String("dashboard_id", stats.DashboardID),
		slog.Int("videos", len(rows)),
		slog.Int("playlist_count", meta.VideoCount),
		slog.Duration("duration", dur))
}

// fetch runs the full fetch on the primary backend, falling through to the
// scraper when the API reports quota exhaustion.
func (w *Worker) fetch(ctx context.Context, job db.Job, logger *slog.Logger) ([]VideoData, *PlaylistMetadata, error) {
	est := w.Primary.EstimateTime(0, true)
	logger.Info("processing job",
		slog.String("playlist_url", job.PlaylistURL),
		slog.Int("attempt", job.Attempts),
		slog.Duration("estimate", est.Expected))

	reporter := &Reporter{DB: w.DB, JobID: job.ID}
	onProgress := reporter.Func(ctx)

	var rows []VideoData
	var meta *PlaylistMetadata
	var err error
	telemetry.TimeFunc(telemetry.FetchDuration, func() {
		rows, meta, err = w.Primary.FetchVideos(ctx, job.PlaylistURL, 0, onProgress)
	})
	if err != nil && KindOf(err) == KindQuotaExceeded && w.Fallback != nil {
		logger.Warn("api quota exhausted, falling through to scraper", slog.Any("err", err))
		telemetry.QuotaFallbacks.Inc()
		telemetry.TimeFunc(telemetry.FetchDuration, func() {
			rows, meta, err = w.Fallback.FetchVideos(ctx, job.PlaylistURL, 0, onProgress)
		})
	}
	if err != nil {
		return nil, nil, err
	}
	if meta == nil {
		return nil, nil, NewFetchError(KindBackend, errors.New("backend returned no metadata"))
	}
	return rows, meta, nil
}

// finishWithError maps the error kind to the terminal job state.
func (w *Worker) finishWithError(ctx context.Context, job db.Job, err error, logger *slog.Logger) {
	switch KindOf(err) {
	case KindBotChallenge:
		logger.Warn("job blocked by bot challenge", slog.Any("err", err))
		w.markStatus(ctx, job.ID, db.StatusBlocked, err.Error(), logger)
		telemetry.JobsBlocked.Inc()
	case KindQuotaExceeded:
		// No fallback configured.
		logger.Error("api quota exhausted with no fallback", slog.Any("err", err))
		w.markStatus(ctx, job.ID, db.StatusFailed, err.Error(), logger)
		telemetry.JobsFailed.Inc()
	default:
		logger.Error("job failed", slog.Any("err", err))
		w.markStatus(ctx, job.ID, db.StatusFailed, err.Error(), logger)
		telemetry.JobsFailed.Inc()
	}
}

func (w *Worker) markStatus(ctx context.Context, jobID int64, status, lastError string, logger *slog.Logger) {
	if err := db.MarkJobStatus(ctx, w.DB, jobID, status, lastError); err != nil {
		logger.Error("mark job status failed", slog.String("status", status), slog.Any("err", err))
	}
}

// upsertWithRetry retries the stats write once before giving up; progress
// writes are best-effort but the result row is not.
func (w *Worker) upsertWithRetry(ctx context.Context, stats *db.PlaylistStats) (*db.PlaylistStats, error) {
	out, err := db.UpsertPlaylistStats(ctx, w.DB, stats)
	if err == nil {
		return out, nil
	}
	slog.Warn("stats upsert retrying", slog.Any("err", err), slog.String("component", "worker"))
	return db.UpsertPlaylistStats(ctx, w.DB, stats)
}

// buildStats materializes the enriched result into a stats row keyed by the
// job's lease date.
func (w *Worker) buildStats(job db.Job, meta *PlaylistMetadata, rows []EnrichedRow, summary Summary) (*db.PlaylistStats, error) {
	processedDate := time.Now().UTC()
	if job.StartedAt != nil {
		processedDate = job.StartedAt.UTC()
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	dfJSON, err := db.EncodeDataset(rows)
	if err != nil {
		return nil, err
	}
	return &db.PlaylistStats{
		PlaylistURL:         job.PlaylistURL,
		DashboardID:         playlisturl.Fingerprint(job.PlaylistURL),
		ProcessedDate:       time.Date(processedDate.Year(), processedDate.Month(), processedDate.Day(), 0, 0, 0, 0, time.UTC),
		Title:               meta.Title,
		ChannelName:         meta.ChannelName,
		ChannelThumbnail:    meta.ChannelThumbnail,
		ViewCount:           summary.TotalViews,
		LikeCount:           summary.TotalLikes,
		DislikeCount:        summary.TotalDislikes,
		CommentCount:        summary.TotalComments,
		VideoCount:          meta.VideoCount,
		ProcessedVideoCount: summary.ProcessedVideoCount,
		AvgDurationSeconds:  summary.AvgDurationSeconds,
		EngagementRate:      summary.AvgEngagement,
		ControversyScore:    summary.AvgControversy,
		SummaryJSON:         string(summaryJSON),
		DFJSON:              dfJSON,
	}, nil
}

// EstimateRemaining predicts remaining seconds for a job's progress view
// from the per-video EMA stored in kv.
func EstimateRemaining(ctx context.Context, dbc *sql.DB, progressPct, videoCount int) float64 {
	perVideoMs := db.GetMovingAvg(ctx, dbc, "avg_video_fetch_ms", 1500)
	if videoCount <= 0 {
		videoCount = 50
	}
	remainingVideos := float64(videoCount) * float64(100-progressPct) / 100.0
	return remainingVideos * perVideoMs / 1000.0
}
