package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"cvStudio/internal/api"
	"cvStudio/internal/auth"
	"cvStudio/internal/config"
	"cvStudio/internal/database"
	"cvStudio/internal/entitlement"
	"cvStudio/internal/export"
	"cvStudio/internal/payments"
	"cvStudio/internal/pdf"
	"cvStudio/internal/prepcache"
	"cvStudio/internal/render"
	"cvStudio/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	logger.Info("api bootstrapped",
		slog.String("db_host", cfg.Database.Host),
		slog.Int("db_port", cfg.Database.Port),
		slog.String("db_name", cfg.Database.Name),
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if err := database.SeedTemplates(context.Background(), db); err != nil {
		log.Fatalf("seed templates: %v", err)
	}
	logger.Info("database migrated")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}

	authService, err := auth.NewAuthServiceFromConfig(cfg.Auth)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	renderer, err := render.New()
	if err != nil {
		log.Fatalf("parse templates: %v", err)
	}
	generator := pdf.NewGenerator(cfg.Editor.PageHeightPx, logger)
	defer generator.Close()

	var provider payments.Provider
	if cfg.Stripe.APIKey != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeConfig{
			APIKey:     cfg.Stripe.APIKey,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
			Logger:     logger,
		})
		if err != nil {
			log.Fatalf("init stripe: %v", err)
		}
		provider = stripeProvider
	} else {
		logger.Warn("stripe api key not set, checkout disabled")
	}

	entitlements := entitlement.NewService(db)
	checkout := payments.NewService(db, provider)
	gate := export.NewGate(
		entitlements,
		checkout,
		export.NewHTTPExporter(cfg.Internal.APIBaseURL, cfg.Internal.Secret, nil),
		export.NewStorageDelivery(storageClient, 15*time.Minute),
		logger,
	)

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, api.Dependencies{
		Config:      cfg,
		DB:          db,
		Redis:       redisClient,
		Tasks:       asynqClient,
		Auth:        authService,
		Storage:     storageClient,
		Renderer:    renderer,
		PDF:         generator,
		Entitlement: entitlements,
		Checkout:    checkout,
		Gate:        gate,
		Prep:        prepcache.New(redisClient),
		Scanner:     api.NewClamdScanner(cfg.Clamd.Address),
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("api shutdown failed", slog.Any("error", err))
	}
	logger.Info("api stopped")
}
