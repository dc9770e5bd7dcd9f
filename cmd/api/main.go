package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/whisperapi/internal/api"
	"github.com/nikhilbhutani/whisperapi/internal/api/handlers"
	"github.com/nikhilbhutani/whisperapi/internal/audio"
	"github.com/nikhilbhutani/whisperapi/internal/audit"
	"github.com/nikhilbhutani/whisperapi/internal/cache"
	"github.com/nikhilbhutani/whisperapi/internal/config"
	"github.com/nikhilbhutani/whisperapi/internal/database"
	"github.com/nikhilbhutani/whisperapi/internal/metrics"
	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	m := metrics.New()
	checks := map[string]handlers.Pinger{}

	selector := stt.NewSelector(stt.EnvCredentials, &http.Client{Timeout: 10 * time.Minute})
	chunker := audio.NewChunker(cfg.Transcribe.FFmpegPath, cfg.Transcribe.FFprobePath, audio.WithTempDir(cfg.Transcribe.TempDir))
	opts := []transcribe.Option{transcribe.WithMetrics(m)}

	// Usage database (optional)
	var usage *audit.Service
	if cfg.Database.URL == "" {
		slog.Info("DATABASE_URL not set, usage log disabled")
	} else if db, err := database.NewPool(ctx, cfg.Database, "whisperapi-api"); err != nil {
		slog.Warn("database unavailable, usage log disabled", "error", err)
	} else {
		defer db.Close()
		if err := database.RunMigrations(ctx, db, os.DirFS(cfg.Database.MigrationsPath)); err != nil {
			slog.Warn("migrations failed", "error", err)
		}
		usage = audit.NewService(db)
		opts = append(opts, transcribe.WithUsageRecorder(usage))
		checks["database"] = db
	}

	svc := transcribe.NewService(chunker, selector, cfg.Transcribe.TempDir, opts...)

	// Redis backs the async job API (optional)
	var (
		jobs        *cache.JobStore
		queueClient *queue.Client
	)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, async jobs disabled", "error", err)
	} else {
		jobs = cache.NewJobStore(rdb, cfg.Jobs.ResultTTL)
		queueClient = queue.NewClient(cfg.Redis, cfg.Jobs.Timeout)
		defer queueClient.Close()
		checks["redis"] = jobs
	}

	router := api.NewRouter(cfg, api.Deps{
		Version:  version,
		Selector: selector,
		Service:  svc,
		Jobs:     jobs,
		Queue:    queueClient,
		Usage:    usage,
		Metrics:  m,
		Checks:   checks,
	})
	handler := router.Setup()

	stop := make(chan struct{})
	go router.Limiter().Cleanup(time.Minute, stop)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		// Large uploads and multi-chunk transcriptions take minutes.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	close(stop)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
