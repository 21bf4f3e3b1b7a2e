// Package analysis contains the playlist analysis core: the fetch backend
// contract shared by the API and scraping implementations, the metrics
// enricher, the progress reporter, the worker loop that drains the job
// queue, and the submit/coalescing controller used by the HTTP surface.
package analysis

import (
	"context"
	"time"
)

// PlaylistMetadata is the cheap preview of a playlist: no per-video calls.
type PlaylistMetadata struct {
	Title            string `json:"title"`
	ChannelName      string `json:"channel_name"`
	ChannelThumbnail string `json:"channel_thumbnail"`
	VideoCount       int    `json:"video_count"`
}

// VideoData is one fetched video row before enrichment. Rank is the 1-based
// playlist position and is preserved regardless of fetch completion order.
type VideoData struct {
	Rank      int     `json:"rank"`
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Views     int64   `json:"views"`
	Likes     int64   `json:"likes"`
	Dislikes  int64   `json:"dislikes"`
	Comments  int64   `json:"comments"`
	Duration  int64   `json:"duration"`
	Uploader  string  `json:"uploader"`
	Thumbnail string  `json:"thumbnail"`
	Rating    float64 `json:"rating,omitempty"`
}

// Estimate is an advisory fetch-time prediction used for logging and the
// progress UI; it carries no guarantees.
type Estimate struct {
	Expected time.Duration
	PerVideo time.Duration
}

// ProgressFunc receives streaming progress from a backend while a full fetch
// runs. Implementations may call it zero or more times; meta is optional
// phase information (e.g. {"phase": "fetching_stats"}).
type ProgressFunc func(processed, total int, meta map[string]any)

// Backend is the uniform fetch contract implemented by the official-API and
// scraping backends. The worker selects policy from the typed errors
// returned here (see errors.go); backends never write job state themselves.
type Backend interface {
	// FetchPreview returns playlist metadata without per-video calls.
	FetchPreview(ctx context.Context, url string) (*PlaylistMetadata, error)
	// FetchVideos fetches up to maxVideos rows (0 = all) with streaming
	// progress. Per-video failures degrade to skeleton rows and are not
	// returned as errors.
	FetchVideos(ctx context.Context, url string, maxVideos int, onProgress ProgressFunc) ([]VideoData, *PlaylistMetadata, error)
	// EstimateTime predicts the wall time to fetch count videos.
	EstimateTime(count int, expandAll bool) Estimate
	// Close releases pooled connections and subprocess handles.
	Close() error
}
