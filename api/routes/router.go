package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/procurement-backend/api/controllers"
	accountcontrollers "github.com/angelmondragon/procurement-backend/api/controllers/fundingaccounts"
	ordercontrollers "github.com/angelmondragon/procurement-backend/api/controllers/purchaseorders"
	"github.com/angelmondragon/procurement-backend/api/middleware"
	"github.com/angelmondragon/procurement-backend/internal/fundingaccounts"
	"github.com/angelmondragon/procurement-backend/internal/purchaseorders"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/metrics"
)

// cacheStore is the redis surface the router needs: idempotency records and
// a readiness ping.
type cacheStore interface {
	middleware.IdempotencyStore
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache cacheStore,
	httpMetrics *metrics.HTTPMetrics,
	gatherer prometheus.Gatherer,
	ordersSvc purchaseorders.Service,
	accountsSvc fundingaccounts.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    cache,
		}, logg))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.Actor(logg),
			middleware.Idempotency(cache, middleware.IdempotencyTTLs{
				Default: cfg.Eventing.HTTPIdempotencyTTL,
				Money:   cfg.Eventing.PaymentIdempotencyTTL,
			}, logg),
		)

		r.Route("/purchase-orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Post("/", ordercontrollers.Create(ordersSvc, logg))

			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Get(ordersSvc, logg))
				r.Post("/lines", ordercontrollers.AddLines(ordersSvc, logg))
				r.Post("/confirm", ordercontrollers.Confirm(ordersSvc, logg))
				r.Post("/receipts", ordercontrollers.Receive(ordersSvc, logg))
				r.Get("/returns", ordercontrollers.ListReturns(ordersSvc, logg))
				r.Post("/returns", ordercontrollers.Return(ordersSvc, logg))
				r.Get("/payments", ordercontrollers.ListPayments(ordersSvc, logg))
				r.Post("/payments", ordercontrollers.RecordPayment(ordersSvc, logg))
				r.Post("/reversals", ordercontrollers.ReversePayment(ordersSvc, logg))
				r.Get("/quality-checks", ordercontrollers.ListQualityChecks(ordersSvc, logg))
				r.Post("/quality-checks", ordercontrollers.RecordQualityCheck(ordersSvc, logg))
				r.Post("/complete", ordercontrollers.Complete(ordersSvc, logg))
				r.Post("/short-close", ordercontrollers.ShortClose(ordersSvc, logg))
				r.Post("/cancel", ordercontrollers.Cancel(ordersSvc, logg))
				r.Post("/archive", ordercontrollers.Archive(ordersSvc, logg))
				r.Get("/audit", ordercontrollers.AuditTrail(ordersSvc, logg))
			})
		})

		r.Route("/funding-accounts", func(r chi.Router) {
			r.Post("/", accountcontrollers.Open(accountsSvc, logg))
			r.Get("/{accountID}", accountcontrollers.Get(accountsSvc, logg))
			r.Post("/{accountID}/top-ups", accountcontrollers.TopUp(accountsSvc, logg))
		})
	})

	return r
}
