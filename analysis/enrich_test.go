package analysis

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEnrichMetrics(t *testing.T) {
	rows := []VideoData{
		{Rank: 1, ID: "a", Views: 999, Likes: 50, Dislikes: 50, Comments: 0, Duration: 60},
	}
	out, sum := Enrich(rows, 1)
	if len(out) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out))
	}
	// (50+50+0)/(999+1) = 0.1
	if !almostEqual(out[0].EngagementRateRaw, 0.1) {
		t.Errorf("engagement = %v, want 0.1", out[0].EngagementRateRaw)
	}
	// 1 - |50-50|/(100+1) = 1.0: perfectly split votes are maximally controversial
	if !almostEqual(out[0].Controversy, 1.0) {
		t.Errorf("controversy = %v, want 1.0", out[0].Controversy)
	}
	if sum.TotalViews != 999 || sum.TotalLikes != 50 || sum.TotalDislikes != 50 {
		t.Errorf("summary totals wrong: %+v", sum)
	}
	if !almostEqual(sum.AvgEngagement, 0.1) {
		t.Errorf("avg engagement = %v, want 0.1", sum.AvgEngagement)
	}
}

func TestEnrichZeroViewsNoDivideByZero(t *testing.T) {
	rows := []VideoData{{Rank: 1, ID: "a", Views: 0, Likes: 0, Dislikes: 0, Comments: 0}}
	out, _ := Enrich(rows, 1)
	if out[0].EngagementRateRaw != 0 {
		t.Errorf("engagement = %v, want 0", out[0].EngagementRateRaw)
	}
	// 1 - 0/1 = 1 but with zero votes the ratio still computes; clipping keeps it in range
	if out[0].Controversy < 0 || out[0].Controversy > 1 {
		t.Errorf("controversy %v out of [0,1]", out[0].Controversy)
	}
}

func TestEnrichClipsEngagement(t *testing.T) {
	// More reactions than views: raw ratio exceeds 1 and must clip.
	rows := []VideoData{{Rank: 1, ID: "a", Views: 1, Likes: 100, Dislikes: 0, Comments: 100}}
	out, _ := Enrich(rows, 1)
	if out[0].EngagementRateRaw != 1 {
		t.Errorf("engagement = %v, want clipped 1", out[0].EngagementRateRaw)
	}
}

func TestEnrichOrdersByRank(t *testing.T) {
	rows := []VideoData{
		{Rank: 3, ID: "c"},
		{Rank: 1, ID: "a"},
		{Rank: 2, ID: "b"},
	}
	out, _ := Enrich(rows, 3)
	for i, want := range []string{"a", "b", "c"} {
		if out[i].ID != want {
			t.Errorf("row %d = %s, want %s", i, out[i].ID, want)
		}
	}
}

func TestEnrichDeterministic(t *testing.T) {
	rows := []VideoData{
		{Rank: 1, ID: "a", Views: 1000, Likes: 10, Dislikes: 5, Comments: 3, Duration: 120},
		{Rank: 2, ID: "b", Views: 500, Likes: 2, Dislikes: 8, Comments: 1, Duration: 300},
	}
	out1, sum1 := Enrich(rows, 5)
	out2, sum2 := Enrich(rows, 5)
	if sum1 != sum2 {
		t.Errorf("summaries differ: %+v vs %+v", sum1, sum2)
	}
	for i := range out1 {
		if out1[i] != out2[i] {
			t.Errorf("row %d differs between runs", i)
		}
	}
	if sum1.ActualPlaylistCount != 5 || sum1.ProcessedVideoCount != 2 {
		t.Errorf("counts wrong: %+v", sum1)
	}
}

func TestFormatCount(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{987, "987"},
		{1000, "1K"},
		{1234, "1.2K"},
		{1_500_000, "1.5M"},
		{3_400_000, "3.4M"},
		{5_600_000_000, "5.6B"},
		{2_000_000_000, "2B"},
	}
	for _, tc := range cases {
		if got := FormatCount(tc.n); got != tc.want {
			t.Errorf("FormatCount(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		secs int64
		want string
	}{
		{0, "0:00"},
		{59, "0:59"},
		{61, "1:01"},
		{3600, "1:00:00"},
		{3723, "1:02:03"},
		{-5, "0:00"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.secs); got != tc.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tc.secs, got, tc.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(0.1234); got != "12.34%" {
		t.Errorf("FormatPercent(0.1234) = %q", got)
	}
	if got := FormatPercent(0); got != "0.00%" {
		t.Errorf("FormatPercent(0) = %q", got)
	}
}
