package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/outflowhq/outflow-backend/internal/emaillog"
	"github.com/outflowhq/outflow-backend/internal/leads"
	"github.com/outflowhq/outflow-backend/internal/replies"
	"github.com/outflowhq/outflow-backend/internal/sequence"
	"github.com/outflowhq/outflow-backend/pkg/config"
	"github.com/outflowhq/outflow-backend/pkg/db"
	"github.com/outflowhq/outflow-backend/pkg/idempotency"
	"github.com/outflowhq/outflow-backend/pkg/logger"
	"github.com/outflowhq/outflow-backend/pkg/metrics"
	"github.com/outflowhq/outflow-backend/pkg/migrate"
	"github.com/outflowhq/outflow-backend/pkg/pubsub"
	"github.com/outflowhq/outflow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "reply-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "reply-worker"

	logg = logger.New(logger.Options{
		ServiceName: "reply-worker",
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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	marks, err := idempotency.NewManager(redisClient, cfg.Eventing.ReplyIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	leadRepo := leads.NewRepository(dbClient.DB())
	logRepo := emaillog.NewRepository(dbClient.DB())

	controller, err := sequence.NewController(sequence.ControllerParams{
		Logger:  logg,
		Leads:   leadRepo,
		Logs:    logRepo,
		Metrics: metrics.NewOutreachMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sequence controller", err)
		os.Exit(1)
	}

	processor, err := replies.NewProcessor(replies.ProcessorParams{
		Logger:     logg,
		Leads:      leadRepo,
		Logs:       logRepo,
		Controller: controller,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reply processor", err)
		os.Exit(1)
	}

	consumer, err := replies.NewConsumer(processor, pubsubClient.ReplySubscription(), marks, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reply consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting reply worker")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reply worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "reply worker shutting down gracefully")
}
