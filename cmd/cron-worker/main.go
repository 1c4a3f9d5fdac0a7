package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/procurement-backend/internal/audit"
	"github.com/angelmondragon/procurement-backend/internal/cron"
	"github.com/angelmondragon/procurement-backend/internal/fundingaccounts"
	"github.com/angelmondragon/procurement-backend/internal/payments"
	"github.com/angelmondragon/procurement-backend/internal/purchaseorders"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/instance"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/metrics"
	"github.com/angelmondragon/procurement-backend/pkg/migrate"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
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

	if err := migrate.AutoApply(context.Background(), cfg, logg, dbClient); err != nil {
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

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.Keys.Lock(serviceKind, cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Archival.CronInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	gdb := dbClient.DB()

	policy, err := enums.ParsePaymentPolicy(cfg.Procurement.CompletionPaymentPolicy)
	if err != nil {
		return nil, err
	}
	currency, err := enums.ParseCurrency(cfg.Procurement.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	auditSvc, err := audit.NewService(audit.NewRepository(gdb))
	if err != nil {
		return nil, err
	}
	paymentRepo := payments.NewRepository(gdb)
	reconciler, err := payments.NewReconciler(paymentRepo, fundingaccounts.NewLedger(fundingaccounts.NewRepository(gdb)))
	if err != nil {
		return nil, err
	}
	outboxRepo := outbox.NewRepository(gdb)

	orders, err := purchaseorders.NewService(purchaseorders.ServiceParams{
		Repo:             purchaseorders.NewRepository(gdb),
		Tx:               dbClient,
		Outbox:           outbox.NewService(outboxRepo, logg),
		Audit:            auditSvc,
		Payments:         reconciler,
		PaymentReader:    paymentRepo,
		Logger:           logg,
		DefaultPolicy:    policy,
		DefaultCurrency:  currency,
		OperationTimeout: cfg.Procurement.OperationTimeout,
		MaxRetries:       cfg.Procurement.OrderMaxRetries,
	})
	if err != nil {
		return nil, err
	}

	archival, err := cron.NewArchivalJob(cron.ArchivalJobParams{
		Logger:        logg,
		Orders:        orders,
		RetentionDays: cfg.Archival.CancelledRetentionDays,
		BatchSize:     cfg.Archival.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outboxRepo,
		RetentionDays: cfg.Outbox.RetentionDays,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
		BatchSize:     cfg.Outbox.RetentionBatch,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(archival, retention)
}
