package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/whisperapi/internal/audio"
	"github.com/nikhilbhutani/whisperapi/internal/audit"
	"github.com/nikhilbhutani/whisperapi/internal/cache"
	"github.com/nikhilbhutani/whisperapi/internal/config"
	"github.com/nikhilbhutani/whisperapi/internal/database"
	"github.com/nikhilbhutani/whisperapi/internal/metrics"
	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/queue/workers"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
	"github.com/nikhilbhutani/whisperapi/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx := context.Background()
	m := metrics.New()

	selector := stt.NewSelector(stt.EnvCredentials, &http.Client{Timeout: 10 * time.Minute})
	chunker := audio.NewChunker(cfg.Transcribe.FFmpegPath, cfg.Transcribe.FFprobePath, audio.WithTempDir(cfg.Transcribe.TempDir))
	opts := []transcribe.Option{transcribe.WithMetrics(m)}

	if cfg.Database.URL != "" {
		db, err := database.NewPool(ctx, cfg.Database, "whisperapi-worker")
		if err != nil {
			slog.Warn("database unavailable, usage log disabled", "error", err)
		} else {
			defer db.Close()
			opts = append(opts, transcribe.WithUsageRecorder(audit.NewService(db)))
		}
	}

	svc := transcribe.NewService(chunker, selector, cfg.Transcribe.TempDir, opts...)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	jobs := cache.NewJobStore(rdb, cfg.Jobs.ResultTTL)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Jobs.Concurrency,
			Logger:      newAsynqLogger(logger),
		},
	)

	queueClient := queue.NewClient(cfg.Redis, cfg.Jobs.Timeout)
	defer queueClient.Close()
	dispatcher := webhook.NewDispatcher(cfg.Jobs.WebhookSecret, nil)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeTranscriptionRun, workers.NewTranscriptionWorker(svc, jobs, queueClient, m))
	registry.Register(queue.TypeWebhookDeliver, workers.NewWebhookWorker(dispatcher))

	// Worker metrics are served on their own port; the API does not see them.
	if addr := cfg.Jobs.MetricsAddr; addr != "" {
		go func() {
			slog.Info("serving worker metrics", "addr", addr)
			if err := http.ListenAndServe(addr, m.Handler()); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	slog.Info("starting worker", "concurrency", cfg.Jobs.Concurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
