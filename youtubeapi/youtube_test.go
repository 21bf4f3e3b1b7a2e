package youtubeapi

import (
	"context"
	"testing"

	"google.golang.org/api/option"

	"github.com/onnwee/playlist-pulse/backend/analysis"
	"github.com/onnwee/playlist-pulse/backend/testutil"
)

const testPlaylistURL = "https://www.youtube.com/playlist?list=PLapi1"

func newTestClient(t *testing.T, mock *testutil.MockYouTube) *Client {
	t.Helper()
	c, err := New(context.Background(), "test-key", option.WithEndpoint(mock.Server.URL))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func seedVideos() []testutil.MockVideo {
	return []testutil.MockVideo{
		{ID: "vidA", Title: "Alpha", Views: 1000, Likes: 100, Comments: 10, Duration: "PT4M13S", Channel: "Chan"},
		{ID: "vidB", Title: "Beta", Views: 2000, Likes: 200, Comments: 20, Duration: "PT1H2M3S", Channel: "Chan"},
		{ID: "vidC", Title: "Gamma", Views: 3000, Likes: 300, Comments: 30, Duration: "PT45S", Channel: "Chan"},
	}
}

func TestFetchPreview(t *testing.T) {
	mock := testutil.NewMockYouTube("PLapi1", "API Playlist", "Chan", seedVideos())
	defer mock.Close()
	c := newTestClient(t, mock)

	meta, err := c.FetchPreview(context.Background(), testPlaylistURL)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if meta.Title != "API Playlist" || meta.ChannelName != "Chan" || meta.VideoCount != 3 {
		t.Errorf("meta = %+v", meta)
	}
	if mock.Calls() != 1 {
		t.Errorf("preview should cost one call, made %d", mock.Calls())
	}
}

func TestFetchVideos(t *testing.T) {
	mock := testutil.NewMockYouTube("PLapi1", "API Playlist", "Chan", seedVideos())
	defer mock.Close()
	c := newTestClient(t, mock)

	phases := map[string]bool{}
	rows, meta, err := c.FetchVideos(context.Background(), testPlaylistURL, 0,
		func(processed, total int, m map[string]any) {
			if p, ok := m["phase"].(string); ok {
				phases[p] = true
			}
		})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.VideoCount != 3 || len(rows) != 3 {
		t.Fatalf("rows = %d, meta = %+v", len(rows), meta)
	}
	if !phases["fetching_ids"] || !phases["fetching_stats"] {
		t.Errorf("progress phases seen: %v", phases)
	}

	if rows[0].ID != "vidA" || rows[0].Rank != 1 {
		t.Errorf("rank order wrong: %+v", rows[0])
	}
	if rows[1].Views != 2000 || rows[1].Likes != 200 || rows[1].Comments != 20 {
		t.Errorf("stats not merged: %+v", rows[1])
	}
	if rows[1].Duration != 3723 {
		t.Errorf("duration = %d, want 3723", rows[1].Duration)
	}
	// The Data API never exposes dislikes.
	for _, r := range rows {
		if r.Dislikes != 0 {
			t.Errorf("dislikes should be 0, got %d for %s", r.Dislikes, r.ID)
		}
	}
}

func TestFetchVideosMaxVideos(t *testing.T) {
	mock := testutil.NewMockYouTube("PLapi1", "API Playlist", "Chan", seedVideos())
	defer mock.Close()
	c := newTestClient(t, mock)

	rows, _, err := c.FetchVideos(context.Background(), testPlaylistURL, 2, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("maxVideos not honored: got %d rows", len(rows))
	}
}

func TestQuotaExceededClassification(t *testing.T) {
	mock := testutil.NewMockYouTube("PLapi1", "API Playlist", "Chan", seedVideos())
	mock.FailWith = 403
	mock.Reason = "quotaExceeded"
	defer mock.Close()
	c := newTestClient(t, mock)

	_, err := c.FetchPreview(context.Background(), testPlaylistURL)
	if err == nil {
		t.Fatalf("expected error")
	}
	if analysis.KindOf(err) != analysis.KindQuotaExceeded {
		t.Errorf("kind = %v, want quota exceeded", analysis.KindOf(err))
	}
}

func TestRateLimitClassification(t *testing.T) {
	mock := testutil.NewMockYouTube("PLapi1", "API Playlist", "Chan", seedVideos())
	mock.FailWith = 429
	mock.Reason = "rateLimitExceeded"
	defer mock.Close()
	c := newTestClient(t, mock)

	_, err := c.FetchPreview(context.Background(), testPlaylistURL)
	if err == nil {
		t.Fatalf("expected error")
	}
	if analysis.KindOf(err) != analysis.KindRateLimit {
		t.Errorf("kind = %v, want rate limit", analysis.KindOf(err))
	}
}

func TestForbiddenWithoutQuotaReasonIsTerminal(t *testing.T) {
	mock := testutil.NewMockYouTube("PLapi1", "API Playlist", "Chan", seedVideos())
	mock.FailWith = 403
	mock.Reason = "forbidden"
	defer mock.Close()
	c := newTestClient(t, mock)

	_, err := c.FetchPreview(context.Background(), testPlaylistURL)
	if analysis.KindOf(err) != analysis.KindBackend {
		t.Errorf("kind = %v, want backend", analysis.KindOf(err))
	}
}

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"PT4M13S", 253},
		{"PT1H2M3S", 3723},
		{"PT45S", 45},
		{"PT2H", 7200},
		{"P1DT2H", 93600},
		{"PT0S", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := ParseISODuration(tc.in); got != tc.want {
			t.Errorf("ParseISODuration(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
