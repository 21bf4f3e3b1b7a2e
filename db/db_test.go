package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/playlist-pulse/backend/db"
	"github.com/onnwee/playlist-pulse/backend/testutil"
)

func TestKVRoundTrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.SetKV(ctx, database, "k1", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := db.GetKV(ctx, database, "k1")
	if err != nil || v != "v1" {
		t.Errorf("get = (%q, %v)", v, err)
	}

	if err := db.SetKV(ctx, database, "k1", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, _ = db.GetKV(ctx, database, "k1")
	if v != "v2" {
		t.Errorf("overwrite lost: %q", v)
	}

	missing, err := db.GetKV(ctx, database, "absent")
	if err != nil || missing != "" {
		t.Errorf("missing key = (%q, %v)", missing, err)
	}
}

func TestMovingAvg(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	if got := db.GetMovingAvg(ctx, database, "ema1", 1500); got != 1500 {
		t.Errorf("default = %v", got)
	}

	db.UpdateMovingAvg(ctx, database, "ema1", 1000)
	if got := db.GetMovingAvg(ctx, database, "ema1", 0); got != 1000 {
		t.Errorf("seed = %v, want 1000", got)
	}

	// alpha 0.2: 0.2*2000 + 0.8*1000 = 1200
	db.UpdateMovingAvg(ctx, database, "ema1", 2000)
	if got := db.GetMovingAvg(ctx, database, "ema1", 0); got != 1200 {
		t.Errorf("ema = %v, want 1200", got)
	}
}

func TestHeartbeat(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	db.Heartbeat(ctx, database, "worker_last")
	v, err := db.GetKV(ctx, database, "worker_last")
	if err != nil || v == "" {
		t.Fatalf("heartbeat = (%q, %v)", v, err)
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("heartbeat stale: %v", ts)
	}
}
