package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/playlist-pulse/backend/analysis"
	"github.com/onnwee/playlist-pulse/backend/config"
	"github.com/onnwee/playlist-pulse/backend/db"
	"github.com/onnwee/playlist-pulse/backend/scrape"
	"github.com/onnwee/playlist-pulse/backend/server"
	"github.com/onnwee/playlist-pulse/backend/telemetry"
	"github.com/onnwee/playlist-pulse/backend/youtubeapi"
)

func setupLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	_ = godotenv.Load()
	setupLogger()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateBackendReady(); err != nil {
		slog.Error("backend not configured", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("playlist-pulse", "1.0.0")
	if err != nil {
		slog.Error("tracing init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbc, err := db.Connect()
	if err != nil {
		slog.Error("database connect failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer dbc.Close()

	// Versioned migrations when the files are present, embedded schema
	// otherwise (containers without the migrations directory).
	if err := db.RunMigrations(dbc); err != nil {
		slog.Warn("versioned migrations unavailable, applying embedded schema", slog.Any("err", err))
		if err := db.Migrate(ctx, dbc); err != nil {
			slog.Error("schema migration failed", slog.Any("err", err))
			os.Exit(1)
		}
	}

	scraper := scrape.New(cfg)
	defer scraper.Close()

	var primary, fallback analysis.Backend
	switch cfg.Backend {
	case config.BackendScraper:
		primary = scraper
	default:
		api, err := youtubeapi.New(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			slog.Error("youtube api client failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer api.Close()
		primary = api
		fallback = scraper
	}

	worker := &analysis.Worker{DB: dbc, Primary: primary, Fallback: fallback, Cfg: cfg}
	go worker.Run(ctx)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handlers := server.NewHandlers(dbc, cfg, primary)
	slog.Info("playlist-pulse starting",
		slog.String("addr", addr),
		slog.String("backend", cfg.Backend))
	if err := server.Start(ctx, handlers, addr); err != nil {
		os.Exit(1)
	}
}
