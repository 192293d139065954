package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"cvStudio/internal/config"
	"cvStudio/internal/database"
	"cvStudio/internal/export"
	"cvStudio/internal/metrics"
	"cvStudio/internal/pdf"
	"cvStudio/internal/render"
	"cvStudio/internal/storage"
	"cvStudio/internal/tasks"
	"cvStudio/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	renderer, err := render.New()
	if err != nil {
		log.Fatalf("parse templates: %v", err)
	}
	generator := pdf.NewGenerator(cfg.Editor.PageHeightPx, logger)
	defer generator.Close()

	exporter := export.NewHTTPExporter(cfg.Internal.APIBaseURL, cfg.Internal.Secret, nil)
	documents := database.NewDocumentRepository(db)

	pdfHandler := worker.NewPDFTaskHandler(exporter, storageClient, documents, redisClient, logger)
	previewHandler := worker.NewTemplatePreviewHandler(db, renderer, generator, storageClient, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypePDFGenerate, pdfHandler)
	mux.Handle(tasks.TypeTemplatePreview, previewHandler)

	if cfg.Worker.MetricsPort > 0 {
		metricsSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
		defer metricsSrv.Close()
	}

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	logger.Info("worker service started", slog.String("redis_addr", redisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
