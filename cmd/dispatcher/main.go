package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/outflowhq/outflow-backend/internal/campaigns"
	"github.com/outflowhq/outflow-backend/internal/dispatcher"
	"github.com/outflowhq/outflow-backend/internal/leads"
	"github.com/outflowhq/outflow-backend/internal/outbox"
	"github.com/outflowhq/outflow-backend/internal/sequence"
	"github.com/outflowhq/outflow-backend/pkg/config"
	"github.com/outflowhq/outflow-backend/pkg/db"
	"github.com/outflowhq/outflow-backend/pkg/logger"
	"github.com/outflowhq/outflow-backend/pkg/metrics"
	"github.com/outflowhq/outflow-backend/pkg/migrate"
	"github.com/outflowhq/outflow-backend/pkg/sendmail"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "dispatcher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "dispatcher"

	logg = logger.New(logger.Options{
		ServiceName: "dispatcher",
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

	sender, err := sendmail.NewClient(cfg.Mailer)
	if err != nil {
		logg.Error(context.Background(), "failed to create mail client", err)
		os.Exit(1)
	}

	resolver, err := sequence.NewResolver(campaigns.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create step resolver", err)
		os.Exit(1)
	}

	service, err := dispatcher.NewService(dispatcher.ServiceParams{
		Config:    cfg,
		Logger:    logg,
		Outbox:    outbox.NewRepository(dbClient),
		Leads:     leads.NewRepository(dbClient.DB()),
		Resolver:  resolver,
		Campaigns: campaigns.NewRepository(dbClient.DB()),
		Sender:    sender,
		Metrics:   metrics.NewOutreachMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting dispatcher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatcher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "dispatcher shutting down gracefully")
}
