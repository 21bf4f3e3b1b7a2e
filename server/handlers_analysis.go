package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/onnwee/playlist-pulse/backend/analysis"
	"github.com/onnwee/playlist-pulse/backend/db"
	"github.com/onnwee/playlist-pulse/backend/playlisturl"
	"github.com/onnwee/playlist-pulse/backend/telemetry"
)

// pollIntervalSeconds is the client poll cadence advertised by the progress
// endpoint.
const pollIntervalSeconds = 2

var dashboardIDPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

// HandleSubmitJob accepts a playlist URL and either redirects to the cached
// dashboard (303) or returns a progress token. Validation failures are
// reported in-body so the form flow can render them; only a malformed
// request itself is a 400.
func (h *Handlers) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form")
		return
	}
	rawURL := strings.TrimSpace(r.PostFormValue("playlist_url"))
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "playlist_url required")
		return
	}

	out, err := analysis.Submit(r.Context(), h.DB, rawURL)
	if err != nil {
		var invalid *playlisturl.ErrInvalidURL
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusOK, map[string]string{"error": invalid.Reason})
			return
		}
		telemetry.LoggerWithCorr(r.Context()).Error("submit failed", "err", err)
		writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}

	if out.Cached {
		http.Redirect(w, r, "/d/"+out.DashboardID, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":        out.JobID,
		"dashboard_id":  out.DashboardID,
		"status":        out.Status,
		"enqueued":      out.Enqueued,
		"has_dashboard": out.HasDashboard,
	})
}

// HandlePreview returns playlist metadata without enqueuing work. Cached
// stats satisfy the preview; otherwise the configured backend is asked for
// its one-call preview.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	canon, err := playlisturl.Normalize(r.URL.Query().Get("playlist_url"))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}

	if cached, err := db.GetCachedStats(r.Context(), h.DB, canon, false); err == nil && cached != nil {
		est := h.Preview.EstimateTime(cached.VideoCount, true)
		writeJSON(w, http.StatusOK, map[string]any{
			"title":             cached.Title,
			"channel_name":      cached.ChannelName,
			"channel_thumbnail": cached.ChannelThumbnail,
			"video_count":       cached.VideoCount,
			"estimate_seconds":  est.Expected.Seconds(),
			"cached":            true,
		})
		return
	}

	meta, err := h.Preview.FetchPreview(r.Context(), canon)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("preview fetch failed", "err", err)
		writeJSON(w, http.StatusOK, map[string]string{"error": "could not fetch playlist preview"})
		return
	}
	est := h.Preview.EstimateTime(meta.VideoCount, true)
	writeJSON(w, http.StatusOK, map[string]any{
		"title":             meta.Title,
		"channel_name":      meta.ChannelName,
		"channel_thumbnail": meta.ChannelThumbnail,
		"video_count":       meta.VideoCount,
		"estimate_seconds":  est.Expected.Seconds(),
		"cached":            false,
	})
}

// HandleJobProgress reports the newest job for a playlist URL. Terminal
// states carry either a redirect to the dashboard or the stored error.
func (h *Handlers) HandleJobProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	canon, err := playlisturl.Normalize(r.URL.Query().Get("playlist_url"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := db.GetLatestJob(r.Context(), h.DB, canon)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "no job for playlist")
		return
	}

	anchor := job.CreatedAt
	if job.StartedAt != nil {
		anchor = *job.StartedAt
	}
	resp := map[string]any{
		"job_id":                      job.ID,
		"status":                      job.Status,
		"progress":                    job.Progress,
		"elapsed_seconds":             time.Since(anchor).Seconds(),
		"poll_interval_seconds":       pollIntervalSeconds,
		"estimated_remaining_seconds": 0.0,
	}
	switch job.Status {
	case db.StatusComplete:
		resp["redirect"] = "/d/" + playlisturl.Fingerprint(canon)
	case db.StatusFailed, db.StatusBlocked:
		resp["error"] = job.LastError
	default:
		resp["estimated_remaining_seconds"] = analysis.EstimateRemaining(r.Context(), h.DB, job.Progress, 0)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDashboardDispatcher routes /d/{id} and /d/{id}/event.
func (h *Handlers) HandleDashboardDispatcher(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/d/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || !dashboardIDPattern.MatchString(parts[0]) {
		writeError(w, http.StatusNotFound, "unknown dashboard")
		return
	}
	id := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleDashboardGet(w, r, id)
	case len(parts) == 2 && parts[1] == "event" && r.Method == http.MethodPost:
		h.handleDashboardEvent(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "unsupported dashboard operation")
	}
}

func (h *Handlers) handleDashboardGet(w http.ResponseWriter, r *http.Request, id string) {
	stats, err := db.GetStatsByDashboardID(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "dashboard lookup failed")
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "unknown dashboard")
		return
	}

	// View tracking is best-effort; a failed insert never blocks the read.
	if err := db.RecordDashboardEvent(r.Context(), h.DB, id, "view"); err == nil {
		telemetry.DashboardViews.Inc()
	}
	counts, err := db.GetDashboardEventCounts(r.Context(), h.DB, id)
	if err != nil {
		counts = map[string]int64{}
	}

	var dataset json.RawMessage
	if _, err := db.DecodeDataset(stats.DFJSON, &dataset); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("dataset decode failed", "dashboard_id", id, "err", err)
		dataset = json.RawMessage("[]")
	}
	summary := json.RawMessage(stats.SummaryJSON)
	if len(summary) == 0 {
		summary = json.RawMessage("{}")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"dashboard_id":          stats.DashboardID,
		"playlist_url":          stats.PlaylistURL,
		"processed_date":        stats.ProcessedDate.Format("2006-01-02"),
		"title":                 stats.Title,
		"channel_name":          stats.ChannelName,
		"channel_thumbnail":     stats.ChannelThumbnail,
		"view_count":            stats.ViewCount,
		"like_count":            stats.LikeCount,
		"dislike_count":         stats.DislikeCount,
		"comment_count":         stats.CommentCount,
		"video_count":           stats.VideoCount,
		"processed_video_count": stats.ProcessedVideoCount,
		"avg_duration_seconds":  stats.AvgDurationSeconds,
		"engagement_rate":       stats.EngagementRate,
		"controversy_score":     stats.ControversyScore,
		"summary":               summary,
		"videos":                dataset,
		"events":                counts,
	})
}

func (h *Handlers) handleDashboardEvent(w http.ResponseWriter, r *http.Request, id string) {
	eventType := ""
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var body struct {
			Type string `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed body")
			return
		}
		eventType = body.Type
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "malformed form")
			return
		}
		eventType = r.PostFormValue("type")
	}
	if eventType != "share" && eventType != "export" {
		writeError(w, http.StatusBadRequest, "type must be share or export")
		return
	}
	if err := db.RecordDashboardEvent(r.Context(), h.DB, id, eventType); err != nil {
		writeError(w, http.StatusInternalServerError, "event write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// HandleAdminJobs lists recent jobs, optionally filtered by status.
func (h *Handlers) HandleAdminJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	status := r.URL.Query().Get("status")
	limit := parseIntQuery(r, "limit", 50)
	jobs, err := db.ListJobs(r.Context(), h.DB, status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "job list failed")
		return
	}
	out := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobJSON(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

// HandleAdminJobsReset requeues processing rows older than max_age_minutes
// (default 60). This is the operator remedy for leases orphaned by a crash.
func (h *Handlers) HandleAdminJobsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	maxAge := time.Duration(parseIntQuery(r, "max_age_minutes", 60)) * time.Minute
	n, err := db.ResetStuckProcessing(r.Context(), h.DB, maxAge)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": n})
}

// HandleAdminQueue reports queue depth by status.
func (h *Handlers) HandleAdminQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	counts := map[string]int{}
	for _, status := range []string{db.StatusPending, db.StatusProcessing, db.StatusComplete, db.StatusFailed, db.StatusBlocked} {
		n, err := db.CountJobsByStatus(r.Context(), h.DB, status)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "count failed")
			return
		}
		counts[status] = n
	}
	writeJSON(w, http.StatusOK, counts)
}

func jobJSON(j db.Job) map[string]any {
	m := map[string]any{
		"id":           j.ID,
		"playlist_url": j.PlaylistURL,
		"status":       j.Status,
		"progress":     j.Progress,
		"attempts":     j.Attempts,
		"created_at":   j.CreatedAt.Format(time.RFC3339),
	}
	if j.LastError != "" {
		m["last_error"] = j.LastError
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339)
	}
	if j.FinishedAt != nil {
		m["finished_at"] = j.FinishedAt.Format(time.RFC3339)
	}
	return m
}
