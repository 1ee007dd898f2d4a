package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/outflowhq/outflow-backend/api/routes"
	"github.com/outflowhq/outflow-backend/internal/campaigns"
	"github.com/outflowhq/outflow-backend/internal/dispatcher"
	"github.com/outflowhq/outflow-backend/internal/emaillog"
	"github.com/outflowhq/outflow-backend/internal/leads"
	"github.com/outflowhq/outflow-backend/internal/outbox"
	"github.com/outflowhq/outflow-backend/internal/replies"
	"github.com/outflowhq/outflow-backend/internal/scheduler"
	"github.com/outflowhq/outflow-backend/internal/sequence"
	"github.com/outflowhq/outflow-backend/internal/testsend"
	"github.com/outflowhq/outflow-backend/pkg/config"
	"github.com/outflowhq/outflow-backend/pkg/db"
	"github.com/outflowhq/outflow-backend/pkg/idempotency"
	"github.com/outflowhq/outflow-backend/pkg/instance"
	"github.com/outflowhq/outflow-backend/pkg/logger"
	"github.com/outflowhq/outflow-backend/pkg/metrics"
	"github.com/outflowhq/outflow-backend/pkg/migrate"
	"github.com/outflowhq/outflow-backend/pkg/redis"
	"github.com/outflowhq/outflow-backend/pkg/sendmail"
)

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

	replyMarks, err := idempotency.NewManager(redisClient, cfg.Eventing.ReplyIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	outreachMetrics := metrics.NewOutreachMetrics(prometheus.DefaultRegisterer)

	leadRepo := leads.NewRepository(dbClient.DB())
	campaignRepo := campaigns.NewRepository(dbClient.DB())
	logRepo := emaillog.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient)
	dlqRepo := outbox.NewDLQRepository(dbClient)

	resolver, err := sequence.NewResolver(campaignRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create step resolver", err)
		os.Exit(1)
	}

	seqController, err := sequence.NewController(sequence.ControllerParams{
		Logger:  logg,
		Leads:   leadRepo,
		Logs:    logRepo,
		Metrics: outreachMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sequence controller", err)
		os.Exit(1)
	}

	replyProcessor, err := replies.NewProcessor(replies.ProcessorParams{
		Logger:     logg,
		Leads:      leadRepo,
		Logs:       logRepo,
		Controller: seqController,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reply processor", err)
		os.Exit(1)
	}

	schedulerSvc, err := scheduler.NewService(scheduler.ServiceParams{
		Config:   cfg,
		Logger:   logg,
		Leads:    leadRepo,
		Resolver: resolver,
		Outbox:   outboxRepo,
		Metrics:  outreachMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler", err)
		os.Exit(1)
	}

	deps := routes.Deps{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Sequence:   seqController,
		EmailLog:   logRepo,
		Replies:    replyProcessor,
		ReplyMarks: replyMarks,
		Scheduler:  schedulerSvc,
		Outbox:     outboxRepo,
		DLQ:        dlqRepo,
	}

	// The mailer is optional for the API: without it the test-send and
	// dispatcher trigger endpoints report an internal error, everything
	// else works.
	if cfg.Mailer.APIKey != "" {
		sender, err := sendmail.NewClient(cfg.Mailer)
		if err != nil {
			logg.Error(context.Background(), "failed to create mail client", err)
			os.Exit(1)
		}

		testSendSvc, err := testsend.NewService(testsend.ServiceParams{
			Config:   cfg,
			Logger:   logg,
			Leads:    leadRepo,
			Resolver: resolver,
			Logs:     logRepo,
			Sender:   sender,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create test send service", err)
			os.Exit(1)
		}
		deps.TestSend = testSendSvc

		dispatcherSvc, err := dispatcher.NewService(dispatcher.ServiceParams{
			Config:    cfg,
			Logger:    logg,
			Outbox:    outboxRepo,
			Leads:     leadRepo,
			Resolver:  resolver,
			Campaigns: campaignRepo,
			Sender:    sender,
			Metrics:   outreachMetrics,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create dispatcher", err)
			os.Exit(1)
		}
		deps.Dispatcher = dispatcherSvc
	} else {
		logg.Warn(context.Background(), "mailer api key not set, test-send and dispatcher trigger disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(deps),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
