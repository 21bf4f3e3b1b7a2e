package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// PlaylistStats is the materialized analysis result for one (url, date)
// pair. SummaryJSON and DFJSON are opaque serialized payloads; DFJSON is a
// schema-versioned dataset envelope (see EncodeDataset).
type PlaylistStats struct {
	ID                  int64
	PlaylistURL         string
	DashboardID         string
	ProcessedDate       time.Time
	Title               string
	ChannelName         string
	ChannelThumbnail    string
	ViewCount           int64
	LikeCount           int64
	DislikeCount        int64
	CommentCount        int64
	VideoCount          int
	ProcessedVideoCount int
	AvgDurationSeconds  float64
	EngagementRate      float64
	ControversyScore    float64
	SummaryJSON         string
	DFJSON              string
}

// DatasetSchemaVersion tags the df_json envelope so readers can evolve
// independently of writers.
const DatasetSchemaVersion = 1

type datasetEnvelope struct {
	SchemaVersion int             `json:"schema_version"`
	Rows          json.RawMessage `json:"rows"`
}

// EncodeDataset wraps a row slice in the versioned dataset envelope.
func EncodeDataset(rows any) (string, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode dataset rows: %w", err)
	}
	env, err := json.Marshal(datasetEnvelope{SchemaVersion: DatasetSchemaVersion, Rows: raw})
	if err != nil {
		return "", fmt.Errorf("encode dataset envelope: %w", err)
	}
	return string(env), nil
}

// DecodeDataset unmarshals an envelope into rows and returns the schema
// version it was written with.
func DecodeDataset(data string, rows any) (int, error) {
	var env datasetEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return 0, fmt.Errorf("decode dataset envelope: %w", err)
	}
	if len(env.Rows) > 0 {
		if err := json.Unmarshal(env.Rows, rows); err != nil {
			return env.SchemaVersion, fmt.Errorf("decode dataset rows: %w", err)
		}
	}
	return env.SchemaVersion, nil
}

const statsColumns = `id, playlist_url, dashboard_id, processed_date,
	COALESCE(title,''), COALESCE(channel_name,''), COALESCE(channel_thumbnail,''),
	view_count, like_count, dislike_count, comment_count,
	video_count, processed_video_count, avg_duration, engagement_rate, controversy_score,
	COALESCE(summary_stats,''), COALESCE(df_json,'')`

func scanStats(row interface{ Scan(...any) error }) (*PlaylistStats, error) {
	var s PlaylistStats
	if err := row.Scan(&s.ID, &s.PlaylistURL, &s.DashboardID, &s.ProcessedDate,
		&s.Title, &s.ChannelName, &s.ChannelThumbnail,
		&s.ViewCount, &s.LikeCount, &s.DislikeCount, &s.CommentCount,
		&s.VideoCount, &s.ProcessedVideoCount, &s.AvgDurationSeconds,
		&s.EngagementRate, &s.ControversyScore, &s.SummaryJSON, &s.DFJSON); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertPlaylistStats inserts or replaces the stats row for the
// (playlist_url, processed_date) pair and returns the stored row. Repeat
// upserts with the same payload leave a single identical row.
func UpsertPlaylistStats(ctx context.Context, db *sql.DB, s *PlaylistStats) (*PlaylistStats, error) {
	row := db.QueryRowContext(ctx, `INSERT INTO playlist_stats
		(playlist_url, dashboard_id, processed_date, title, channel_name, channel_thumbnail,
		 view_count, like_count, dislike_count, comment_count,
		 video_count, processed_video_count, avg_duration, engagement_rate, controversy_score,
		 summary_stats, df_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW())
		ON CONFLICT ON CONSTRAINT uq_stats_url_date DO UPDATE SET
			dashboard_id=EXCLUDED.dashboard_id,
			title=EXCLUDED.title,
			channel_name=EXCLUDED.channel_name,
			channel_thumbnail=EXCLUDED.channel_thumbnail,
			view_count=EXCLUDED.view_count,
			like_count=EXCLUDED.like_count,
			dislike_count=EXCLUDED.dislike_count,
			comment_count=EXCLUDED.comment_count,
			video_count=EXCLUDED.video_count,
			processed_video_count=EXCLUDED.processed_video_count,
			avg_duration=EXCLUDED.avg_duration,
			engagement_rate=EXCLUDED.engagement_rate,
			controversy_score=EXCLUDED.controversy_score,
			summary_stats=EXCLUDED.summary_stats,
			df_json=EXCLUDED.df_json
		RETURNING `+statsColumns,
		s.PlaylistURL, s.DashboardID, s.ProcessedDate, s.Title, s.ChannelName, s.ChannelThumbnail,
		s.ViewCount, s.LikeCount, s.DislikeCount, s.CommentCount,
		s.VideoCount, s.ProcessedVideoCount, s.AvgDurationSeconds, s.EngagementRate, s.ControversyScore,
		s.SummaryJSON, s.DFJSON)
	out, err := scanStats(row)
	if err != nil {
		return nil, fmt.Errorf("upsert playlist stats: %w", err)
	}
	return out, nil
}

// GetCachedStats returns the newest stats row for a normalized URL, or nil
// on miss. With checkDate set, only a row processed today (UTC) counts as a
// hit; stale rows are treated as misses.
func GetCachedStats(ctx context.Context, db *sql.DB, playlistURL string, checkDate bool) (*PlaylistStats, error) {
	s, err := scanStats(db.QueryRowContext(ctx, `SELECT `+statsColumns+`
		FROM playlist_stats WHERE playlist_url=$1
		ORDER BY processed_date DESC LIMIT 1`, playlistURL))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if checkDate {
		today := time.Now().UTC().Format("2006-01-02")
		if s.ProcessedDate.UTC().Format("2006-01-02") != today {
			return nil, nil
		}
	}
	return s, nil
}

// GetStatsByDashboardID resolves a dashboard id to its newest materialized
// row, or nil when unknown.
func GetStatsByDashboardID(ctx context.Context, db *sql.DB, dashboardID string) (*PlaylistStats, error) {
	s, err := scanStats(db.QueryRowContext(ctx, `SELECT `+statsColumns+`
		FROM playlist_stats WHERE dashboard_id=$1
		ORDER BY processed_date DESC LIMIT 1`, dashboardID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// RecordDashboardEvent appends a view/share/export event. Append-only.
func RecordDashboardEvent(ctx context.Context, db *sql.DB, dashboardID, eventType string) error {
	switch eventType {
	case "view", "share", "export":
	default:
		return fmt.Errorf("unknown dashboard event type %q", eventType)
	}
	_, err := db.ExecContext(ctx, `INSERT INTO dashboard_events (dashboard_id, event_type, occurred_at)
		VALUES ($1,$2,NOW())`, dashboardID, eventType)
	return err
}

// GetDashboardEventCounts aggregates event counts for a dashboard.
func GetDashboardEventCounts(ctx context.Context, db *sql.DB, dashboardID string) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT event_type, COUNT(1)
		FROM dashboard_events WHERE dashboard_id=$1 GROUP BY event_type`, dashboardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int64{}
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}
