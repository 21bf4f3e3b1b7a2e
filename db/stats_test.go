package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/playlist-pulse/backend/db"
	"github.com/onnwee/playlist-pulse/backend/testutil"
)

func sampleStats(url, dashboardID string, date time.Time) *db.PlaylistStats {
	return &db.PlaylistStats{
		PlaylistURL:         url,
		DashboardID:         dashboardID,
		ProcessedDate:       date,
		Title:               "Test Playlist",
		ChannelName:         "Test Channel",
		ViewCount:           1000,
		LikeCount:           100,
		DislikeCount:        10,
		CommentCount:        50,
		VideoCount:          20,
		ProcessedVideoCount: 20,
		AvgDurationSeconds:  240,
		EngagementRate:      0.16,
		ControversyScore:    0.2,
		SummaryJSON:         `{"total_views":1000}`,
		DFJSON:              `{"schema_version":1,"rows":[]}`,
	}
}

func todayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func TestUpsertPlaylistStatsIdempotent(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	url := "https://www.youtube.com/playlist?list=PLstats1"

	s := sampleStats(url, "aaaa111122223333", todayUTC())
	first, err := db.UpsertPlaylistStats(ctx, database, s)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	s.ViewCount = 2000
	second, err := db.UpsertPlaylistStats(ctx, database, s)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("same (url, date) produced two rows: %d and %d", first.ID, second.ID)
	}
	if second.ViewCount != 2000 {
		t.Errorf("replay did not replace the payload: view_count = %d", second.ViewCount)
	}
}

func TestUpsertSeparateDates(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	url := "https://www.youtube.com/playlist?list=PLstats2"

	today := todayUTC()
	yesterday := today.AddDate(0, 0, -1)
	a, err := db.UpsertPlaylistStats(ctx, database, sampleStats(url, "bbbb111122223333", yesterday))
	if err != nil {
		t.Fatalf("upsert yesterday: %v", err)
	}
	b, err := db.UpsertPlaylistStats(ctx, database, sampleStats(url, "bbbb111122223333", today))
	if err != nil {
		t.Fatalf("upsert today: %v", err)
	}
	if a.ID == b.ID {
		t.Errorf("different dates should produce distinct rows")
	}
}

func TestGetCachedStatsDateCheck(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	url := "https://www.youtube.com/playlist?list=PLstats3"

	yesterday := todayUTC().AddDate(0, 0, -1)
	if _, err := db.UpsertPlaylistStats(ctx, database, sampleStats(url, "cccc111122223333", yesterday)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// A stale row is a miss for the submit path but a hit for reads.
	fresh, err := db.GetCachedStats(ctx, database, url, true)
	if err != nil {
		t.Fatalf("cache lookup: %v", err)
	}
	if fresh != nil {
		t.Errorf("stale row should not satisfy the fresh-today check")
	}
	any, err := db.GetCachedStats(ctx, database, url, false)
	if err != nil {
		t.Fatalf("cache lookup: %v", err)
	}
	if any == nil {
		t.Errorf("stale row should satisfy the undated lookup")
	}
}

func TestGetStatsByDashboardID(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	url := "https://www.youtube.com/playlist?list=PLstats4"
	id := "dddd111122223333"

	if _, err := db.UpsertPlaylistStats(ctx, database, sampleStats(url, id, todayUTC())); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	s, err := db.GetStatsByDashboardID(ctx, database, id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if s == nil || s.PlaylistURL != url {
		t.Errorf("lookup = %+v", s)
	}

	missing, err := db.GetStatsByDashboardID(ctx, database, "ffff000000000000")
	if err != nil {
		t.Fatalf("missing lookup: %v", err)
	}
	if missing != nil {
		t.Errorf("unknown dashboard id should return nil")
	}
}

func TestDashboardEvents(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	id := "eeee111122223333"

	for _, typ := range []string{"view", "view", "share", "export"} {
		if err := db.RecordDashboardEvent(ctx, database, id, typ); err != nil {
			t.Fatalf("record %s: %v", typ, err)
		}
	}
	if err := db.RecordDashboardEvent(ctx, database, id, "bogus"); err == nil {
		t.Errorf("unknown event type should be rejected")
	}

	counts, err := db.GetDashboardEventCounts(ctx, database, id)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["view"] != 2 || counts["share"] != 1 || counts["export"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	type row struct {
		ID    string `json:"id"`
		Views int64  `json:"views"`
	}
	in := []row{{ID: "a", Views: 10}, {ID: "b", Views: 20}}
	data, err := db.EncodeDataset(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out []row
	version, err := db.DecodeDataset(data, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if version != db.DatasetSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, db.DatasetSchemaVersion)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Errorf("round trip = %+v", out)
	}
}
