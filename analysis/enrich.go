package analysis

import (
	"fmt"
	"sort"
)

// EnrichedRow is a VideoData row with derived metric columns and the
// human-formatted mirrors the dashboard renders directly.
type EnrichedRow struct {
	VideoData

	Controversy       float64 `json:"controversy"`
	EngagementRateRaw float64 `json:"engagement_rate_raw"`

	ViewsFormatted      string `json:"views_formatted"`
	LikesFormatted      string `json:"likes_formatted"`
	DislikesFormatted   string `json:"dislikes_formatted"`
	CommentsFormatted   string `json:"comments_formatted"`
	DurationFormatted   string `json:"duration_formatted"`
	EngagementFormatted string `json:"engagement_formatted"`
}

// Summary aggregates a playlist's enriched rows.
type Summary struct {
	TotalViews          int64   `json:"total_views"`
	TotalLikes          int64   `json:"total_likes"`
	TotalDislikes       int64   `json:"total_dislikes"`
	TotalComments       int64   `json:"total_comments"`
	AvgEngagement       float64 `json:"avg_engagement"`
	AvgControversy      float64 `json:"avg_controversy"`
	AvgDurationSeconds  float64 `json:"avg_duration_seconds"`
	ActualPlaylistCount int     `json:"actual_playlist_count"`
	ProcessedVideoCount int     `json:"processed_video_count"`
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Enrich derives engagement and controversy for each row and the playlist
// summary. Pure and deterministic: same rows in, same rows and summary out.
// Rows are returned ordered by rank regardless of input order.
//
//	engagement_rate_raw = (likes + dislikes + comments) / (views + 1)
//	controversy         = 1 - |likes - dislikes| / (likes + dislikes + 1)
//
// The +1 denominators guard division by zero; both ratios clip to [0,1].
func Enrich(rows []VideoData, totalInPlaylist int) ([]EnrichedRow, Summary) {
	out := make([]EnrichedRow, 0, len(rows))
	sum := Summary{
		ActualPlaylistCount: totalInPlaylist,
		ProcessedVideoCount: len(rows),
	}
	var engagementAcc, controversyAcc, durationAcc float64
	for _, r := range rows {
		engagement := clip01(float64(r.Likes+r.Dislikes+r.Comments) / float64(r.Views+1))
		diff := r.Likes - r.Dislikes
		if diff < 0 {
			diff = -diff
		}
		controversy := clip01(1 - float64(diff)/float64(r.Likes+r.Dislikes+1))
		out = append(out, EnrichedRow{
			VideoData:           r,
			Controversy:         controversy,
			EngagementRateRaw:   engagement,
			ViewsFormatted:      FormatCount(r.Views),
			LikesFormatted:      FormatCount(r.Likes),
			DislikesFormatted:   FormatCount(r.Dislikes),
			CommentsFormatted:   FormatCount(r.Comments),
			DurationFormatted:   FormatDuration(r.Duration),
			EngagementFormatted: FormatPercent(engagement),
		})
		sum.TotalViews += r.Views
		sum.TotalLikes += r.Likes
		sum.TotalDislikes += r.Dislikes
		sum.TotalComments += r.Comments
		engagementAcc += engagement
		controversyAcc += controversy
		durationAcc += float64(r.Duration)
	}
	if n := len(rows); n > 0 {
		sum.AvgEngagement = engagementAcc / float64(n)
		sum.AvgControversy = controversyAcc / float64(n)
		sum.AvgDurationSeconds = durationAcc / float64(n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, sum
}

// FormatCount renders a count compactly (987, 1.2K, 3.4M, 5.6B).
func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return trimZero(fmt.Sprintf("%.1fB", float64(n)/1e9))
	case n >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1fM", float64(n)/1e6))
	case n >= 1_000:
		return trimZero(fmt.Sprintf("%.1fK", float64(n)/1e3))
	default:
		return fmt.Sprintf("%d", n)
	}
}

// trimZero turns "1.0K" into "1K".
func trimZero(s string) string {
	if len(s) > 3 && s[len(s)-3:len(s)-1] == ".0" {
		return s[:len(s)-3] + s[len(s)-1:]
	}
	return s
}

// FormatDuration renders integer seconds as h:mm:ss or m:ss.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatPercent renders a [0,1] ratio as a percentage with two decimals.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}
