package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/onnwee/playlist-pulse/backend/db"
)

// Reporter translates backend progress callbacks into writes on the job
// row. Progress is non-critical: coercion failures drop the update and
// store errors are logged and swallowed.
type Reporter struct {
	DB    *sql.DB
	JobID int64
}

// coerceInt accepts the integer encodings that show up across callback
// shapes (native ints, JSON floats, json.Number, numeric strings).
func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return int(f), true
		}
		return 0, false
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Percent computes floor(100*processed/max(total,1)) clipped to [0,100].
func Percent(processed, total int) int {
	if total < 1 {
		total = 1
	}
	pct := processed * 100 / total
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Report coerces the loosely typed arguments to integers and writes the
// derived percentage. Updates that fail coercion are dropped.
func (r *Reporter) Report(ctx context.Context, processed, total any, meta map[string]any) {
	p, ok := coerceInt(processed)
	if !ok {
		slog.Debug("progress update dropped: bad processed value",
			slog.Int64("job_id", r.JobID), slog.Any("processed", processed))
		return
	}
	t, ok := coerceInt(total)
	if !ok {
		slog.Debug("progress update dropped: bad total value",
			slog.Int64("job_id", r.JobID), slog.Any("total", total))
		return
	}
	pct := Percent(p, t)
	if err := db.UpdateJobProgress(ctx, r.DB, r.JobID, pct); err != nil {
		slog.Warn("progress write failed", slog.Int64("job_id", r.JobID), slog.Any("err", err))
	}
}

// ReportMap accepts the dict-shaped callback ({processed, total, ...}) and
// forwards to Report; extra keys ride along as meta.
func (r *Reporter) ReportMap(ctx context.Context, update map[string]any) {
	if update == nil {
		return
	}
	r.Report(ctx, update["processed"], update["total"], update)
}

// Func adapts the reporter to the single typed callback signature backends
// call.
func (r *Reporter) Func(ctx context.Context) ProgressFunc {
	return func(processed, total int, meta map[string]any) {
		r.Report(ctx, processed, total, meta)
	}
}
