// Package telemetry provides Prometheus metrics and correlation-id aware
// logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	JobsLeased     prometheus.Counter
	JobsCompleted  prometheus.Counter
	JobsFailed     prometheus.Counter
	JobsBlocked    prometheus.Counter
	QuotaFallbacks prometheus.Counter

	ScrapeRetries       prometheus.Counter
	ScrapeBotChallenges prometheus.Counter
	ScrapeRateLimits    prometheus.Counter
	ScrapeFailedVideos  prometheus.Counter

	DashboardViews prometheus.Counter

	// Histograms (seconds)
	JobDuration        prometheus.Observer
	FetchDuration      prometheus.Observer
	VideoFetchDuration prometheus.Observer

	// Gauges
	QueueDepthGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		JobsLeased = promauto.NewCounter(prometheus.CounterOpts{Name: "playlist_jobs_leased_total", Help: "Number of analysis jobs leased by workers"})
		JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{Name: "playlist_jobs_completed_total", Help: "Number of analysis jobs completed"})
		JobsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "playlist_jobs_failed_total", Help: "Number of analysis jobs failed"})
		JobsBlocked = promauto.NewCounter(prometheus.CounterOpts{Name: "playlist_jobs_blocked_total", Help: "Number of analysis jobs blocked by bot challenges"})
		QuotaFallbacks = promauto.NewCounter(prometheus.CounterOpts{Name: "playlist_quota_fallbacks_total", Help: "Number of jobs that fell through from the API backend to the scraper"})
		ScrapeRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "playlist_scrape_retries_total", Help: "Number of scrape retries across all videos"})
		ScrapeBotChallenges = promauto.NewCounter(prometheus.CounterOpts{Name: "playlist_scrape_bot_challenges_total", Help: "Number of bot challenges seen by the scraper"})
		ScrapeRateLimits = promauto.NewCounter(prometheus.CounterOpts{Name: "playlist_scrape_rate_limits_total", Help: "Number of rate-limit responses seen by the scraper"})
		ScrapeFailedVideos = promauto.NewCounter(prometheus.CounterOpts{Name: "playlist_scrape_failed_videos_total", Help: "Number of per-video detail fetches that fell back to skeleton rows"})
		DashboardViews = promauto.NewCounter(prometheus.CounterOpts{Name: "playlist_dashboard_views_total", Help: "Number of dashboard view events recorded"})
		JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "playlist_job_duration_seconds", Help: "End-to-end analysis job duration seconds", Buckets: prometheus.ExponentialBuckets(1, 2, 12)})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "playlist_fetch_duration_seconds", Help: "Backend full-fetch duration seconds", Buckets: prometheus.ExponentialBuckets(1, 2, 12)})
		VideoFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "playlist_video_fetch_duration_seconds", Help: "Per-video detail fetch duration seconds", Buckets: prometheus.DefBuckets})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "playlist_queue_depth", Help: "Current number of pending analysis jobs"})
	})
}

// SetQueueDepth records the current pending job count.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
