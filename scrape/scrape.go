// Package scrape implements the analysis fetch contract by shelling out to
// yt-dlp. It needs no API key but is slower and can be challenged by the
// origin; throttling, user-agent rotation, and retries keep it viable.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/playlist-pulse/backend/analysis"
	"github.com/onnwee/playlist-pulse/backend/config"
	"github.com/onnwee/playlist-pulse/backend/telemetry"
)

// userAgents is rotated per retry so a challenged identity is not reused.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:126.0) Gecko/20100101 Firefox/126.0",
}

// runnerFunc executes the scrape tool and returns its stdout. Swapped in
// tests.
type runnerFunc func(ctx context.Context, userAgent string, args ...string) ([]byte, error)

// Scraper is the yt-dlp backed analysis.Backend.
type Scraper struct {
	Cfg      *config.Config
	Dislikes *DislikeClient
	run      runnerFunc
}

// New builds a scraper from config. The dislike client is optional in the
// sense that lookups soft-fail, but it is always constructed.
func New(cfg *config.Config) *Scraper {
	s := &Scraper{
		Cfg:      cfg,
		Dislikes: NewDislikeClient(cfg.DislikeAPIURL),
	}
	s.run = s.runYTDLP
	return s
}

func (s *Scraper) runYTDLP(ctx context.Context, userAgent string, args ...string) ([]byte, error) {
	full := []string{"--no-warnings", "--user-agent", userAgent}
	if s.Cfg.CookiesFile != "" {
		full = append(full, "--cookies", s.Cfg.CookiesFile)
	}
	full = append(full, args...)
	cmd := exec.CommandContext(ctx, "yt-dlp", full...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type thumbnail struct {
	URL string `json:"url"`
}

type flatEntry struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	ViewCount  *int64      `json:"view_count"`
	Duration   *float64    `json:"duration"`
	Uploader   string      `json:"uploader"`
	Channel    string      `json:"channel"`
	Thumbnails []thumbnail `json:"thumbnails"`
}

type flatPlaylist struct {
	Title         string      `json:"title"`
	Uploader      string      `json:"uploader"`
	Channel       string      `json:"channel"`
	PlaylistCount int         `json:"playlist_count"`
	Entries       []flatEntry `json:"entries"`
	Thumbnails    []thumbnail `json:"thumbnails"`
}

type videoDetail struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	ViewCount    *int64   `json:"view_count"`
	LikeCount    *int64   `json:"like_count"`
	CommentCount *int64   `json:"comment_count"`
	Duration     *float64 `json:"duration"`
	Uploader     string   `json:"uploader"`
	Channel      string   `json:"channel"`
	Thumbnail    string   `json:"thumbnail"`
}

func firstThumb(ts []thumbnail) string {
	if len(ts) == 0 {
		return ""
	}
	return ts[len(ts)-1].URL
}

func jitterBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// runWithRetries drives the tool with exponential backoff, rotating the user
// agent on each attempt. The returned error carries the policy kind of the
// last failure.
func (s *Scraper) runWithRetries(ctx context.Context, tally *fetchTally, args ...string) ([]byte, error) {
	var lastErr error
	attempts := s.Cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		ua := userAgents[(attempt+rand.Intn(len(userAgents)))%len(userAgents)]
		out, err := s.run(ctx, ua, args...)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		kind := analysis.ClassifyScrapeError(err)
		switch kind {
		case analysis.KindBotChallenge:
			tally.botChallenges.Add(1)
			telemetry.ScrapeBotChallenges.Inc()
		case analysis.KindRateLimit:
			tally.rateLimits.Add(1)
			telemetry.ScrapeRateLimits.Inc()
		}
		if attempt == attempts-1 {
			break
		}
		tally.retries.Add(1)
		telemetry.ScrapeRetries.Inc()
		delay := s.Cfg.RetryDelay * (1 << attempt)
		delay += time.Duration(rand.Int63n(int64(time.Second)))
		slog.Debug("scrape retry",
			slog.Int("attempt", attempt+1),
			slog.String("kind", kind.String()),
			slog.Duration("delay", delay),
			slog.String("component", "scrape"))
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
	}
	kind := analysis.ClassifyScrapeError(lastErr)
	if kind == analysis.KindVideoFetch {
		kind = analysis.KindBackend
	}
	return nil, analysis.NewFetchError(kind, lastErr)
}

// fetchTally accumulates per-fetch counters across detail goroutines.
type fetchTally struct {
	retries       atomic.Int64
	failedVideos  atomic.Int64
	botChallenges atomic.Int64
	rateLimits    atomic.Int64
}

func (s *Scraper) fetchSkeleton(ctx context.Context, url string, tally *fetchTally, limitFirst bool) (*flatPlaylist, error) {
	args := []string{"--flat-playlist", "-J"}
	if limitFirst {
		args = append(args, "--playlist-items", "1")
	}
	args = append(args, url)
	out, err := s.runWithRetries(ctx, tally, args...)
	if err != nil {
		return nil, err
	}
	var skel flatPlaylist
	if err := json.Unmarshal(out, &skel); err != nil {
		return nil, analysis.NewFetchError(analysis.KindBackend, fmt.Errorf("parse playlist json: %w", err))
	}
	return &skel, nil
}

func metaFromSkeleton(skel *flatPlaylist) *analysis.PlaylistMetadata {
	channel := skel.Channel
	if channel == "" {
		channel = skel.Uploader
	}
	count := skel.PlaylistCount
	if count == 0 {
		count = len(skel.Entries)
	}
	return &analysis.PlaylistMetadata{
		Title:            skel.Title,
		ChannelName:      channel,
		ChannelThumbnail: firstThumb(skel.Thumbnails),
		VideoCount:       count,
	}
}

// FetchPreview runs a single-entry flat extraction: enough for the title,
// channel, and count without walking the playlist.
func (s *Scraper) FetchPreview(ctx context.Context, url string) (*analysis.PlaylistMetadata, error) {
	var tally fetchTally
	skel, err := s.fetchSkeleton(ctx, url, &tally, true)
	if err != nil {
		return nil, err
	}
	return metaFromSkeleton(skel), nil
}

// skeletonRow converts a flat entry to a row with whatever the listing
// exposed. Missing statistics stay zero until the detail pass fills them.
func skeletonRow(e flatEntry, rank int) analysis.VideoData {
	row := analysis.VideoData{
		Rank:      rank,
		ID:        e.ID,
		Title:     e.Title,
		Uploader:  e.Uploader,
		Thumbnail: firstThumb(e.Thumbnails),
	}
	if row.Uploader == "" {
		row.Uploader = e.Channel
	}
	if e.ViewCount != nil {
		row.Views = *e.ViewCount
	}
	if e.Duration != nil {
		row.Duration = int64(*e.Duration)
	}
	return row
}

// mergeDetail fills the skeleton row column by column, never overwriting a
// populated value with an empty one.
func mergeDetail(row *analysis.VideoData, d *videoDetail) {
	if d.Title != "" {
		row.Title = d.Title
	}
	if d.ViewCount != nil {
		row.Views = *d.ViewCount
	}
	if d.LikeCount != nil {
		row.Likes = *d.LikeCount
	}
	if d.CommentCount != nil {
		row.Comments = *d.CommentCount
	}
	if d.Duration != nil {
		row.Duration = int64(*d.Duration)
	}
	if d.Uploader != "" {
		row.Uploader = d.Uploader
	} else if d.Channel != "" && row.Uploader == "" {
		row.Uploader = d.Channel
	}
	if d.Thumbnail != "" {
		row.Thumbnail = d.Thumbnail
	}
}

// fetchDetail pulls full metadata for one video. Failures here are
// per-video: the caller keeps the skeleton row.
func (s *Scraper) fetchDetail(ctx context.Context, videoID string, tally *fetchTally) (*videoDetail, error) {
	if err := sleepCtx(ctx, jitterBetween(s.Cfg.MinVideoDelay, s.Cfg.MaxVideoDelay)); err != nil {
		return nil, err
	}
	var out []byte
	var err error
	telemetry.TimeFunc(telemetry.VideoFetchDuration, func() {
		out, err = s.runWithRetries(ctx, tally, "-J", "--no-playlist", "https://www.youtube.com/watch?v="+videoID)
	})
	if err != nil {
		return nil, err
	}
	var d videoDetail
	if err := json.Unmarshal(out, &d); err != nil {
		return nil, analysis.NewFetchError(analysis.KindVideoFetch, fmt.Errorf("parse video json: %w", err))
	}
	return &d, nil
}

// FetchVideos walks the playlist in two passes: a flat skeleton for ordering
// and counts, then per-video detail in throttled batches. A bot challenge
// that survives retries aborts the whole fetch; any other per-video failure
// downgrades that row to its skeleton.
func (s *Scraper) FetchVideos(ctx context.Context, url string, maxVideos int, onProgress analysis.ProgressFunc) ([]analysis.VideoData, *analysis.PlaylistMetadata, error) {
	var tally fetchTally

	skel, err := s.fetchSkeleton(ctx, url, &tally, false)
	if err != nil {
		return nil, nil, err
	}
	meta := metaFromSkeleton(skel)

	entries := skel.Entries
	if maxVideos > 0 && len(entries) > maxVideos {
		entries = entries[:maxVideos]
	}
	rows := make([]analysis.VideoData, len(entries))
	for i, e := range entries {
		rows[i] = skeletonRow(e, i+1)
	}
	total := len(rows)
	report := func(done int, phase string) {
		if onProgress != nil {
			onProgress(done, total, map[string]any{"phase": phase})
		}
	}
	report(0, "fetching_stats")

	var done atomic.Int64
	batch := s.Cfg.ScrapeBatch
	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batch)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				// The dislike service is independent of the scrape tool, so
				// the vote lookup runs alongside the detail fetch.
				votesCh := make(chan *DislikeVotes, 1)
				go func() {
					v, verr := s.Dislikes.Votes(gctx, rows[i].ID)
					if verr != nil {
						v = nil
					}
					votesCh <- v
				}()
				d, err := s.fetchDetail(gctx, rows[i].ID, &tally)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					if analysis.KindOf(err) == analysis.KindBotChallenge {
						// Keep hammering a challenged origin and the block
						// only hardens.
						return err
					}
					tally.failedVideos.Add(1)
					telemetry.ScrapeFailedVideos.Inc()
					slog.Debug("video detail failed, keeping listing row",
						slog.String("video_id", rows[i].ID),
						slog.Any("err", err),
						slog.String("component", "scrape"))
				} else {
					mergeDetail(&rows[i], d)
				}
				if votes := <-votesCh; votes != nil {
					rows[i].Dislikes = votes.Dislikes
					if rows[i].Likes == 0 && votes.Likes > 0 {
						rows[i].Likes = votes.Likes
					}
					rows[i].Rating = votes.Rating
				}
				done.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
		report(int(done.Load()), "fetching_stats")
		if end < len(rows) {
			if err := sleepCtx(ctx, jitterBetween(s.Cfg.MinBatchDelay, s.Cfg.MaxBatchDelay)); err != nil {
				return nil, nil, err
			}
		}
	}

	slog.Info("scrape finished",
		slog.Int("videos", len(rows)),
		slog.Int64("retries", tally.retries.Load()),
		slog.Int64("failed_videos", tally.failedVideos.Load()),
		slog.Int64("bot_challenges", tally.botChallenges.Load()),
		slog.Int64("rate_limits", tally.rateLimits.Load()),
		slog.String("component", "scrape"))
	return rows, meta, nil
}

// EstimateTime is advisory: per-video cost is dominated by the jittered
// delay plus roughly a second of tool time, amortized over the batch width.
func (s *Scraper) EstimateTime(count int, expandAll bool) analysis.Estimate {
	if count <= 0 {
		count = 50
	}
	perVideo := (s.Cfg.MinVideoDelay+s.Cfg.MaxVideoDelay)/2 + time.Second
	width := s.Cfg.ScrapeBatch
	if width < 1 {
		width = 1
	}
	expected := time.Duration(count) * perVideo / time.Duration(width)
	batches := (count + width - 1) / width
	if batches > 1 {
		expected += time.Duration(batches-1) * (s.Cfg.MinBatchDelay + s.Cfg.MaxBatchDelay) / 2
	}
	if !expandAll {
		expected = perVideo
	}
	return analysis.Estimate{Expected: expected, PerVideo: perVideo}
}

// Close releases the dislike client's idle connections.
func (s *Scraper) Close() error {
	if s.Dislikes != nil && s.Dislikes.HTTP != nil {
		s.Dislikes.HTTP.CloseIdleConnections()
	}
	return nil
}
