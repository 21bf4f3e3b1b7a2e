// Package youtubeapi implements the analysis fetch contract on the YouTube
// Data API v3. Access is read-only via an API key; pagination runs in pages
// of 50 and statistics are batched 50 ids per call. Dislike counts are not
// exposed by the API and are reported as zero.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/playlist-pulse/backend/analysis"
	"github.com/onnwee/playlist-pulse/backend/playlisturl"
)

const pageSize = 50

// Client is the API-backed analysis.Backend. The limiter paces calls so a
// burst of jobs cannot torch the daily quota in one tick.
type Client struct {
	svc     *yt.Service
	limiter *rate.Limiter
}

// New builds a client from an API key. Extra options (custom endpoint,
// custom HTTP client) are for tests.
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("youtube api key required")
	}
	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Client{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}, nil
}

// classify maps Data API errors to the worker's policy kinds: 403 with
// reason quotaExceeded is quota exhaustion, 429 is throttling, everything
// else is terminal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 403:
			for _, item := range gerr.Errors {
				if item.Reason == "quotaExceeded" || item.Reason == "dailyLimitExceeded" {
					return analysis.NewFetchError(analysis.KindQuotaExceeded, err)
				}
			}
			return analysis.NewFetchError(analysis.KindBackend, err)
		case 429:
			return analysis.NewFetchError(analysis.KindRateLimit, err)
		}
	}
	return analysis.NewFetchError(analysis.KindBackend, err)
}

func pickThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	switch {
	case t.Medium != nil:
		return t.Medium.Url
	case t.High != nil:
		return t.High.Url
	case t.Default != nil:
		return t.Default.Url
	}
	return ""
}

// FetchPreview costs one quota unit: a single playlists.list call.
func (c *Client) FetchPreview(ctx context.Context, url string) (*analysis.PlaylistMetadata, error) {
	listID := playlisturl.ListID(url)
	if listID == "" {
		return nil, analysis.NewFetchError(analysis.KindBackend, fmt.Errorf("no list id in %q", url))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.svc.Playlists.List([]string{"snippet", "contentDetails"}).Id(listID).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Items) == 0 {
		return nil, analysis.NewFetchError(analysis.KindBackend, fmt.Errorf("playlist %s not found", listID))
	}
	item := resp.Items[0]
	meta := &analysis.PlaylistMetadata{VideoCount: int(item.ContentDetails.ItemCount)}
	if item.Snippet != nil {
		meta.Title = item.Snippet.Title
		meta.ChannelName = item.Snippet.ChannelTitle
		meta.ChannelThumbnail = pickThumbnail(item.Snippet.Thumbnails)
	}
	return meta, nil
}

// playlistEntry is one row of the id-collection phase.
type playlistEntry struct {
	videoID   string
	rank      int
	title     string
	uploader  string
	thumbnail string
}

// FetchVideos runs the two internal phases: collect video ids from
// playlistItems pages (progress phase fetching_ids), then batch videos.list
// for statistics (phase fetching_stats).
func (c *Client) FetchVideos(ctx context.Context, url string, maxVideos int, onProgress analysis.ProgressFunc) ([]analysis.VideoData, *analysis.PlaylistMetadata, error) {
	meta, err := c.FetchPreview(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	listID := playlisturl.ListID(url)

	total := meta.VideoCount
	if maxVideos > 0 && maxVideos < total {
		total = maxVideos
	}
	report := func(processed int, phase string) {
		if onProgress != nil {
			onProgress(processed, total, map[string]any{"phase": phase})
		}
	}

	entries := make([]playlistEntry, 0, total)
	pageToken := ""
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
		call := c.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(listID).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, nil, classify(err)
		}
		for _, item := range resp.Items {
			if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
				continue
			}
			e := playlistEntry{videoID: item.ContentDetails.VideoId, rank: len(entries) + 1}
			if item.Snippet != nil {
				e.title = item.Snippet.Title
				e.uploader = item.Snippet.VideoOwnerChannelTitle
				e.thumbnail = pickThumbnail(item.Snippet.Thumbnails)
			}
			entries = append(entries, e)
			if maxVideos > 0 && len(entries) >= maxVideos {
				break
			}
		}
		report(len(entries), "fetching_ids")
		pageToken = resp.NextPageToken
		if pageToken == "" || (maxVideos > 0 && len(entries) >= maxVideos) {
			break
		}
	}

	rows := make([]analysis.VideoData, len(entries))
	byID := make(map[string]int, len(entries))
	for i, e := range entries {
		rows[i] = analysis.VideoData{
			Rank:      e.rank,
			ID:        e.videoID,
			Title:     e.title,
			Uploader:  e.uploader,
			Thumbnail: e.thumbnail,
		}
		byID[e.videoID] = i
	}

	done := 0
	for start := 0; start < len(entries); start += pageSize {
		end := start + pageSize
		if end > len(entries) {
			end = len(entries)
		}
		ids := make([]string, 0, end-start)
		for _, e := range entries[start:end] {
			ids = append(ids, e.videoID)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
		resp, err := c.svc.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
			Id(ids...).Context(ctx).Do()
		if err != nil {
			return nil, nil, classify(err)
		}
		for _, v := range resp.Items {
			i, ok := byID[v.Id]
			if !ok {
				continue
			}
			if v.Statistics != nil {
				rows[i].Views = int64(v.Statistics.ViewCount)
				rows[i].Likes = int64(v.Statistics.LikeCount)
				rows[i].Comments = int64(v.Statistics.CommentCount)
				// Dislikes are not exposed by the Data API.
				rows[i].Dislikes = 0
			}
			if v.ContentDetails != nil {
				rows[i].Duration = ParseISODuration(v.ContentDetails.Duration)
			}
			if v.Snippet != nil {
				if rows[i].Title == "" {
					rows[i].Title = v.Snippet.Title
				}
				if rows[i].Uploader == "" {
					rows[i].Uploader = v.Snippet.ChannelTitle
				}
				if rows[i].Thumbnail == "" {
					rows[i].Thumbnail = pickThumbnail(v.Snippet.Thumbnails)
				}
			}
		}
		done = end
		report(done, "fetching_stats")
	}

	return rows, meta, nil
}

// EstimateTime is advisory: roughly one paced API call per page of ids and
// per batch of statistics.
func (c *Client) EstimateTime(count int, expandAll bool) analysis.Estimate {
	if count <= 0 {
		count = pageSize
	}
	calls := 1 + 2*((count+pageSize-1)/pageSize)
	per := 400 * time.Millisecond
	return analysis.Estimate{Expected: time.Duration(calls) * per, PerVideo: time.Duration(calls) * per / time.Duration(count)}
}

// Close is a no-op: the underlying HTTP client owns no resources that need
// explicit release.
func (c *Client) Close() error { return nil }

// ParseISODuration converts an ISO-8601 duration (PT1H2M3S, P1DT2H) to
// integer seconds. Malformed input yields 0.
func ParseISODuration(s string) int64 {
	s = strings.TrimPrefix(s, "P")
	if s == "" {
		return 0
	}
	var total, num int64
	inTime := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int64(r-'0')
		case r == 'T':
			inTime = true
			num = 0
		case r == 'D' && !inTime:
			total += num * 86400
			num = 0
		case r == 'H' && inTime:
			total += num * 3600
			num = 0
		case r == 'M' && inTime:
			total += num * 60
			num = 0
		case r == 'S' && inTime:
			total += num
			num = 0
		default:
			// week/month/year designators are not produced for videos
			num = 0
		}
	}
	return total
}
