package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"github.com/unicard/ledger/internal/api/handler"
	"github.com/unicard/ledger/internal/api/middleware"
	"github.com/unicard/ledger/internal/api/openapi"
	"github.com/unicard/ledger/internal/config"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/idempotency"
	"github.com/unicard/ledger/internal/service"
	"go.uber.org/zap"
)

// Services bundles the ledger services the HTTP surface calls into.
type Services struct {
	Accounts *service.AccountService
	Ledger   *service.LedgerService
	Limits   *service.LimitService
	Query    *service.QueryService
	Recharge *service.RechargeService
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        handler.Pinger
	redis     redis.Cmdable
	idemStore *idempotency.Store
	svc       Services
}

// NewRouter wires handlers; db, redis and idemStore may be nil in tests.
func NewRouter(cfg *config.Config, logger *zap.Logger, db handler.Pinger, redis redis.Cmdable, idemStore *idempotency.Store, svc Services) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, logger: logger, db: db, redis: redis, idemStore: idemStore, svc: svc}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	accountHandler := handler.NewAccountHandler(api.svc.Accounts, api.svc.Query)
	ledgerHandler := handler.NewLedgerHandler(api.svc.Ledger)
	limitHandler := handler.NewLimitHandler(api.svc.Limits)
	rechargeHandler := handler.NewRechargeHandler(api.svc.Recharge)
	idempotent := middleware.IdempotencyMiddleware(api.idemStore, api.logger)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/health/live", healthHandler.Live)
		r.Get("/health/ready", healthHandler.Ready)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/openapi.yaml", openapi.Handler())
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/recipients/{uniId}", accountHandler.LookupRecipient)
		r.Get("/v1/accounts/{id}/balance", accountHandler.GetBalance)
		r.Get("/v1/accounts/{id}/transactions", accountHandler.History)
		r.Get("/v1/accounts/{id}/summary", accountHandler.Summary)
		r.Get("/v1/accounts/{id}/limits", accountHandler.LimitStatus)
		r.Get("/v1/accounts/{id}/recharges", rechargeHandler.ListForAccount)
		r.Get("/v1/transactions/{id}", accountHandler.GetTransaction)
		r.Get("/v1/recharges/{id}", rechargeHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(idempotent)
			r.Post("/v1/transfers", ledgerHandler.Transfer)
			r.Post("/v1/transactions/{id}/refund", ledgerHandler.Refund)
			r.Post("/v1/recharges", rechargeHandler.Submit)
			r.Post("/v1/recharges/{id}/cancel", rechargeHandler.Cancel)
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Get("/transactions/{id}/audit", accountHandler.AuditTrail)
			r.Get("/recharges", rechargeHandler.ListByStatus)

			r.Group(func(r chi.Router) {
				r.Use(idempotent)
				r.Post("/bonuses", ledgerHandler.Bonus)
				r.Post("/penalties", ledgerHandler.Penalty)
				r.Put("/accounts/{id}/limits", limitHandler.SetLimits)
				r.Post("/accounts/{id}/suspend", limitHandler.Suspend)
				r.Post("/accounts/{id}/unsuspend", limitHandler.Unsuspend)
				r.Post("/recharges/{id}/approve", rechargeHandler.Approve)
				r.Post("/recharges/{id}/reject", rechargeHandler.Reject)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		handler.RespondError(w, req, http.StatusNotFound, "route/not-found", "route not found")
	})
	return r
}
