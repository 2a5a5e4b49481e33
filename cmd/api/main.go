package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/nclamvn/prismy-production-sub017/api/controllers"
	"github.com/nclamvn/prismy-production-sub017/api/routes"
	"github.com/nclamvn/prismy-production-sub017/internal/documents"
	"github.com/nclamvn/prismy-production-sub017/internal/jobs"
	"github.com/nclamvn/prismy-production-sub017/internal/pipeline"
	"github.com/nclamvn/prismy-production-sub017/internal/uploads"
	"github.com/nclamvn/prismy-production-sub017/pkg/config"
	"github.com/nclamvn/prismy-production-sub017/pkg/db"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
	"github.com/nclamvn/prismy-production-sub017/pkg/migrate"
	"github.com/nclamvn/prismy-production-sub017/pkg/pubsub"
	"github.com/nclamvn/prismy-production-sub017/pkg/redis"
	"github.com/nclamvn/prismy-production-sub017/pkg/storage/gcs"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap object storage", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing object storage", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	uploadsRepo := uploads.NewRepository(dbClient.DB())
	documentsRepo := documents.NewRepository(dbClient.DB())
	jobsRepo := jobs.NewRepository(dbClient.DB())

	uploadSvc, err := uploads.NewService(uploadsRepo, documentsRepo, gcsClient, logg, cfg.Upload.MaxUploadBytes(), cfg.Upload.MaxChunks)
	if err != nil {
		logg.Error(context.Background(), "failed to create upload service", err)
		os.Exit(1)
	}

	dispatcher, err := pipeline.NewDispatcher(pubsubClient.PipelinePublisher())
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher", err)
		os.Exit(1)
	}

	jobsSvc, err := jobs.NewService(jobsRepo, documentsRepo, dispatcher, logg, cfg.Pipeline.AssumedDuration)
	if err != nil {
		logg.Error(context.Background(), "failed to create translation service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.RouterParams{
		Config:    cfg,
		Logger:    logg,
		Redis:     redisClient,
		UploadSvc: uploadSvc,
		JobsSvc:   jobsSvc,
		Dependencies: map[string]controllers.Pinger{
			"db":     dbClient,
			"redis":  redisClient,
			"gcs":    gcsClient,
			"pubsub": pubsubClient,
		},
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
