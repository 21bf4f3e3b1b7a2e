package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/playlist-pulse/backend/analysis"
	"github.com/onnwee/playlist-pulse/backend/config"
	"github.com/onnwee/playlist-pulse/backend/telemetry"
	"github.com/onnwee/playlist-pulse/backend/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		Backend:       config.BackendScraper,
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
		MinVideoDelay: 0,
		MaxVideoDelay: 0,
		MinBatchDelay: 0,
		MaxBatchDelay: 0,
		ScrapeBatch:   2,
	}
}

const skeletonJSON = `{
	"title": "My Mix",
	"channel": "Some Channel",
	"playlist_count": 2,
	"entries": [
		{"id": "vid1", "title": "First", "view_count": 100, "duration": 60},
		{"id": "vid2", "title": "Second", "view_count": 200, "duration": 120}
	]
}`

func detailJSON(id string, views, likes, comments int64) string {
	return fmt.Sprintf(`{"id":%q,"title":"Detail %s","view_count":%d,"like_count":%d,"comment_count":%d,"duration":90,"uploader":"Uploader","thumbnail":"https://img/%s.jpg"}`,
		id, id, views, likes, comments, id)
}

func newTestScraper(cfg *config.Config, run runnerFunc) *Scraper {
	telemetry.Init()
	s := New(cfg)
	s.run = run
	return s
}

func TestFetchPreview(t *testing.T) {
	var sawLimit atomic.Bool
	s := newTestScraper(testConfig(), func(ctx context.Context, ua string, args ...string) ([]byte, error) {
		for i, a := range args {
			if a == "--playlist-items" && i+1 < len(args) && args[i+1] == "1" {
				sawLimit.Store(true)
			}
		}
		return []byte(skeletonJSON), nil
	})

	meta, err := s.FetchPreview(context.Background(), "https://www.youtube.com/playlist?list=PLx")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if meta.Title != "My Mix" || meta.ChannelName != "Some Channel" || meta.VideoCount != 2 {
		t.Errorf("meta = %+v", meta)
	}
	if !sawLimit.Load() {
		t.Errorf("preview should limit the flat extraction to one entry")
	}
}

func TestFetchVideosMergesDetail(t *testing.T) {
	dislikes := testutil.NewMockDislikes(map[string]map[string]any{
		"vid1": {"likes": 10, "dislikes": 3, "rating": 4.1},
		"vid2": {"likes": 20, "dislikes": 7, "rating": 3.9},
	})
	defer dislikes.Close()

	cfg := testConfig()
	cfg.DislikeAPIURL = dislikes.Server.URL
	s := newTestScraper(cfg, func(ctx context.Context, ua string, args ...string) ([]byte, error) {
		joined := strings.Join(args, " ")
		if strings.Contains(joined, "--flat-playlist") {
			return []byte(skeletonJSON), nil
		}
		switch {
		case strings.Contains(joined, "vid1"):
			return []byte(detailJSON("vid1", 150, 15, 5)), nil
		case strings.Contains(joined, "vid2"):
			return []byte(detailJSON("vid2", 250, 25, 8)), nil
		}
		return nil, errors.New("unexpected invocation: " + joined)
	})
	s.Dislikes = NewDislikeClient(dislikes.Server.URL)

	var lastProcessed, lastTotal int
	rows, meta, err := s.FetchVideos(context.Background(), "https://www.youtube.com/playlist?list=PLx", 0,
		func(processed, total int, metaMap map[string]any) {
			lastProcessed, lastTotal = processed, total
		})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.VideoCount != 2 || len(rows) != 2 {
		t.Fatalf("rows = %d, meta = %+v", len(rows), meta)
	}
	if lastProcessed != 2 || lastTotal != 2 {
		t.Errorf("final progress = %d/%d", lastProcessed, lastTotal)
	}

	// Ranked by playlist position, detail merged over skeleton.
	if rows[0].ID != "vid1" || rows[0].Rank != 1 || rows[1].Rank != 2 {
		t.Errorf("ordering wrong: %+v", rows)
	}
	if rows[0].Views != 150 || rows[0].Likes != 15 || rows[0].Comments != 5 {
		t.Errorf("detail not merged: %+v", rows[0])
	}
	if rows[0].Dislikes != 3 || rows[1].Dislikes != 7 {
		t.Errorf("dislikes not merged: %d, %d", rows[0].Dislikes, rows[1].Dislikes)
	}
}

func TestFetchVideosKeepsSkeletonOnDetailFailure(t *testing.T) {
	dislikes := testutil.NewMockDislikes(nil)
	defer dislikes.Close()

	cfg := testConfig()
	cfg.MaxRetries = 0
	s := newTestScraper(cfg, func(ctx context.Context, ua string, args ...string) ([]byte, error) {
		joined := strings.Join(args, " ")
		if strings.Contains(joined, "--flat-playlist") {
			return []byte(skeletonJSON), nil
		}
		if strings.Contains(joined, "vid1") {
			return []byte(detailJSON("vid1", 150, 15, 5)), nil
		}
		return nil, errors.New("yt-dlp: exit status 1: video unavailable")
	})
	s.Dislikes = NewDislikeClient(dislikes.Server.URL)

	rows, _, err := s.FetchVideos(context.Background(), "https://www.youtube.com/playlist?list=PLx", 0, nil)
	if err != nil {
		t.Fatalf("per-video failure must not fail the playlist: %v", err)
	}
	// vid2 keeps its listing values.
	if rows[1].ID != "vid2" || rows[1].Views != 200 || rows[1].Duration != 120 {
		t.Errorf("skeleton row lost: %+v", rows[1])
	}
	if rows[1].Likes != 0 {
		t.Errorf("failed detail should leave likes unknown, got %d", rows[1].Likes)
	}
}

func TestBotChallengeAbortsAfterRetries(t *testing.T) {
	var calls atomic.Int64
	cfg := testConfig()
	s := newTestScraper(cfg, func(ctx context.Context, ua string, args ...string) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("ERROR: Sign in to confirm you're not a bot")
	})

	_, _, err := s.FetchVideos(context.Background(), "https://www.youtube.com/playlist?list=PLx", 0, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if analysis.KindOf(err) != analysis.KindBotChallenge {
		t.Errorf("kind = %v, want bot challenge", analysis.KindOf(err))
	}
	if got := calls.Load(); got != int64(cfg.MaxRetries+1) {
		t.Errorf("attempts = %d, want %d", got, cfg.MaxRetries+1)
	}
}

func TestRetryRotatesUserAgent(t *testing.T) {
	seen := map[string]bool{}
	attempts := 0
	cfg := testConfig()
	cfg.MaxRetries = 4
	s := newTestScraper(cfg, func(ctx context.Context, ua string, args ...string) ([]byte, error) {
		seen[ua] = true
		attempts++
		if attempts <= 3 {
			return nil, errors.New("HTTP Error 429: Too Many Requests")
		}
		return []byte(skeletonJSON), nil
	})

	meta, err := s.FetchPreview(context.Background(), "https://www.youtube.com/playlist?list=PLx")
	if err != nil {
		t.Fatalf("preview should succeed after retries: %v", err)
	}
	if meta.Title != "My Mix" {
		t.Errorf("meta = %+v", meta)
	}
	for ua := range seen {
		if !strings.HasPrefix(ua, "Mozilla/5.0") {
			t.Errorf("unexpected user agent %q", ua)
		}
	}
}

func TestDislikeClientRetriesThrottle(t *testing.T) {
	mock := testutil.NewMockDislikes(map[string]map[string]any{
		"vid1": {"likes": 5, "dislikes": 2, "rating": 3.5},
	})
	mock.ThrottleFirst = 1
	defer mock.Close()

	c := NewDislikeClient(mock.Server.URL)
	votes, err := c.Votes(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("votes: %v", err)
	}
	if votes.Dislikes != 2 || votes.Likes != 5 {
		t.Errorf("votes = %+v", votes)
	}
}

func TestDislikeClientUnknownVideo(t *testing.T) {
	mock := testutil.NewMockDislikes(nil)
	defer mock.Close()

	c := NewDislikeClient(mock.Server.URL)
	if _, err := c.Votes(context.Background(), "nope"); err == nil {
		t.Fatalf("missing video should error (callers soft-fail)")
	}
}
