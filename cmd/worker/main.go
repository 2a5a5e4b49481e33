package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nclamvn/prismy-production-sub017/internal/cron"
	"github.com/nclamvn/prismy-production-sub017/internal/documents"
	"github.com/nclamvn/prismy-production-sub017/internal/jobs"
	"github.com/nclamvn/prismy-production-sub017/internal/pipeline"
	"github.com/nclamvn/prismy-production-sub017/internal/pipeline/consumer"
	"github.com/nclamvn/prismy-production-sub017/internal/uploads"
	"github.com/nclamvn/prismy-production-sub017/pkg/config"
	"github.com/nclamvn/prismy-production-sub017/pkg/db"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
	"github.com/nclamvn/prismy-production-sub017/pkg/metrics"
	"github.com/nclamvn/prismy-production-sub017/pkg/migrate"
	"github.com/nclamvn/prismy-production-sub017/pkg/pubsub"
	"github.com/nclamvn/prismy-production-sub017/pkg/redis"
	"github.com/nclamvn/prismy-production-sub017/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	documentsRepo := documents.NewRepository(dbClient.DB())
	uploadsRepo := uploads.NewRepository(dbClient.DB())
	jobsRepo := jobs.NewRepository(dbClient.DB())

	translator, err := pipeline.NewTranslatorFromConfig(cfg.Translator)
	if err != nil {
		logg.Error(context.Background(), "failed to create translator", err)
		os.Exit(1)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	processor, err := pipeline.NewProcessor(
		documentsRepo,
		gcsClient,
		pipeline.StubExtractor{},
		translator,
		pipeline.StubRebuilder{},
		logg,
		pipelineMetrics,
		cfg.Pipeline.StageTimeout,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create processor", err)
		os.Exit(1)
	}

	dispatchConsumer, err := consumer.NewDispatchConsumer(processor, jobsRepo, documentsRepo, pubsubClient.PipelineSubscription(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch consumer", err)
		os.Exit(1)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	watchdog, err := cron.NewWatchdogJob(documentsRepo, jobsRepo, logg, cfg.Pipeline.WatchdogWindow)
	if err != nil {
		logg.Error(context.Background(), "failed to create watchdog job", err)
		os.Exit(1)
	}

	staleUploads, err := cron.NewStaleUploadsJob(uploadsRepo, gcsClient, logg, cfg.Upload.StaleSessionTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create stale upload job", err)
		os.Exit(1)
	}

	cronService, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(watchdog, staleUploads),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return dispatchConsumer.Run(groupCtx)
	})
	group.Go(func() error {
		return cronService.Run(groupCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "worker:" + env
}
