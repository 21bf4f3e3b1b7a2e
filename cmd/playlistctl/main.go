// playlistctl is the operator CLI: run a bounded worker pass, enqueue a
// playlist, or inspect the queue without going through the HTTP surface.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/playlist-pulse/backend/analysis"
	"github.com/onnwee/playlist-pulse/backend/config"
	"github.com/onnwee/playlist-pulse/backend/db"
	"github.com/onnwee/playlist-pulse/backend/playlisturl"
	"github.com/onnwee/playlist-pulse/backend/scrape"
	"github.com/onnwee/playlist-pulse/backend/telemetry"
	"github.com/onnwee/playlist-pulse/backend/youtubeapi"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: playlistctl <command> [args]

commands:
  worker [-max-runtime 10m] [-interval 10s] [-batch 3] [-backend api|scraper]
                                                     run a bounded worker pass
  enqueue <playlist-url>                             enqueue an analysis job
  pending                                            print queue counts
`)
	os.Exit(2)
}

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	dbc, err := db.Connect()
	if err != nil {
		fmt.Fprintln(os.Stderr, "database:", err)
		os.Exit(1)
	}
	defer dbc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx, dbc); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "worker":
		runWorker(ctx, dbc, cfg, os.Args[2:])
	case "enqueue":
		if len(os.Args) < 3 {
			usage()
		}
		runEnqueue(ctx, dbc, os.Args[2])
	case "pending":
		runPending(ctx, dbc)
	default:
		usage()
	}
}

func runWorker(ctx context.Context, dbc *sql.DB, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	maxRuntime := fs.Duration("max-runtime", 10*time.Minute, "stop after this long")
	interval := fs.Duration("interval", cfg.PollInterval, "queue poll interval")
	batch := fs.Int("batch", cfg.BatchSize, "jobs leased per tick")
	backend := fs.String("backend", cfg.Backend, "fetch backend (api or scraper)")
	fs.Parse(args)

	cfg.Backend = *backend
	cfg.MaxRuntime = *maxRuntime
	cfg.PollInterval = *interval
	if *batch > 0 {
		cfg.BatchSize = *batch
	}
	if err := cfg.ValidateBackendReady(); err != nil {
		fmt.Fprintln(os.Stderr, "backend:", err)
		os.Exit(1)
	}

	telemetry.Init()
	scraper := scrape.New(cfg)
	defer scraper.Close()

	var primary, fallback analysis.Backend
	if cfg.Backend == config.BackendScraper {
		primary = scraper
	} else {
		api, err := youtubeapi.New(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, "youtube api:", err)
			os.Exit(1)
		}
		defer api.Close()
		primary = api
		fallback = scraper
	}

	slog.Info("bounded worker pass", slog.Duration("max_runtime", cfg.MaxRuntime))
	w := &analysis.Worker{DB: dbc, Primary: primary, Fallback: fallback, Cfg: cfg}
	w.Run(ctx)
}

func runEnqueue(ctx context.Context, dbc *sql.DB, rawURL string) {
	out, err := analysis.Submit(ctx, dbc, rawURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "enqueue:", err)
		os.Exit(1)
	}
	canon, _ := playlisturl.Normalize(rawURL)
	fmt.Printf("url:       %s\n", canon)
	fmt.Printf("dashboard: %s\n", out.DashboardID)
	if out.Cached {
		fmt.Println("status:    cached (analyzed today, no job created)")
		return
	}
	fmt.Printf("status:    %s (job %d, enqueued=%v)\n", out.Status, out.JobID, out.Enqueued)
}

func runPending(ctx context.Context, dbc *sql.DB) {
	for _, status := range []string{db.StatusPending, db.StatusProcessing, db.StatusComplete, db.StatusFailed, db.StatusBlocked} {
		n, err := db.CountJobsByStatus(ctx, dbc, status)
		if err != nil {
			fmt.Fprintln(os.Stderr, "count:", err)
			os.Exit(1)
		}
		fmt.Printf("%-12s %d\n", status, n)
	}
}
