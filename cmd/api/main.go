package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/procurement-backend/api/routes"
	"github.com/angelmondragon/procurement-backend/internal/audit"
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

	ordersSvc, accountsSvc, err := buildServices(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
			prometheus.DefaultGatherer,
			ordersSvc,
			accountsSvc,
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		logg.Info(ctx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (purchaseorders.Service, fundingaccounts.Service, error) {
	gdb := dbClient.DB()

	policy, err := enums.ParsePaymentPolicy(cfg.Procurement.CompletionPaymentPolicy)
	if err != nil {
		return nil, nil, err
	}
	currency, err := enums.ParseCurrency(cfg.Procurement.DefaultCurrency)
	if err != nil {
		return nil, nil, err
	}

	auditSvc, err := audit.NewService(audit.NewRepository(gdb))
	if err != nil {
		return nil, nil, err
	}
	accountRepo := fundingaccounts.NewRepository(gdb)
	ledger := fundingaccounts.NewLedger(accountRepo)
	paymentRepo := payments.NewRepository(gdb)
	reconciler, err := payments.NewReconciler(paymentRepo, ledger)
	if err != nil {
		return nil, nil, err
	}

	ordersSvc, err := purchaseorders.NewService(purchaseorders.ServiceParams{
		Repo:             purchaseorders.NewRepository(gdb),
		Tx:               dbClient,
		Outbox:           outbox.NewService(outbox.NewRepository(gdb), logg),
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
		return nil, nil, err
	}

	accountsSvc, err := fundingaccounts.NewService(fundingaccounts.ServiceParams{
		Repo:   accountRepo,
		Ledger: ledger,
		Audit:  auditSvc,
		Tx:     dbClient,
		Logger: logg,
	})
	if err != nil {
		return nil, nil, err
	}
	return ordersSvc, accountsSvc, nil
}
