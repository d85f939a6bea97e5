package api

import (
	"net/http"

	"github.com/ayo6706/wallet-policy/internal/api/handler"
	"github.com/ayo6706/wallet-policy/internal/api/middleware"
	"github.com/ayo6706/wallet-policy/internal/api/spec"
	"github.com/ayo6706/wallet-policy/internal/config"
	"github.com/ayo6706/wallet-policy/internal/idempotency"
	"github.com/ayo6706/wallet-policy/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services bundles the engine components the HTTP layer exposes.
type Services struct {
	Policy      *service.PolicyService
	Snapshots   *service.SnapshotStore
	Loader      *service.SnapshotLoader
	Accumulator *service.CashbackAccumulator
}

type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *pgxpool.Pool
	redis  redis.Cmdable
	idem   *idempotency.Store
	svc    Services
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, redisClient redis.Cmdable, idem *idempotency.Store, svc Services) *Router {
	return &Router{cfg: cfg, logger: logger, db: db, redis: redisClient, idem: idem, svc: svc}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))

	healthHandler := handler.NewHealthHandler(api.db, api.redis, api.svc.Snapshots)
	policyHandler := handler.NewPolicyHandler(api.svc.Policy, api.cfg.ResolveTimeout, api.logger)
	campaignHandler := handler.NewCampaignHandler(api.svc.Snapshots, api.svc.Accumulator)
	adminHandler := handler.NewAdminHandler(api.svc.Loader, api.logger)

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/health/live", healthHandler.Live)
		r.Get("/health/ready", healthHandler.Ready)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	})

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.CallerRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleService, middleware.RoleAdmin))
			r.Post("/v1/policy/quote", policyHandler.Quote)
			r.With(middleware.ResolveIdempotency(api.idem, api.logger)).Post("/v1/policy/resolve", policyHandler.Resolve)
			r.Get("/v1/campaigns/{id}/usage", campaignHandler.GetUsage)
		})

		r.With(middleware.RequireRole(middleware.RoleAdmin)).Post("/v1/admin/snapshot/refresh", adminHandler.RefreshSnapshot)
	})

	return r
}
