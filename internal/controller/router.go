package controller

import (
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/application/checkout"
	"github.com/cassiomorais/alipay-bridge/internal/application/notification"
	"github.com/cassiomorais/alipay-bridge/internal/application/query"
	"github.com/cassiomorais/alipay-bridge/internal/application/refund"
	"github.com/cassiomorais/alipay-bridge/internal/application/webhookretry"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/config"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/alipay-bridge/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Orders      order.Store
	Logs        webhooklog.Repository
	Webhooks    *notification.Handler
	QueryAgent  *query.Agent
	RetryAgent  *webhookretry.Agent
	Refunds     *refund.Orchestrator
	Checkout    *checkout.Service
	Metrics     *observability.Metrics
	CORSConfig  config.CORSConfig
	AuthConfig  config.AuthConfig
	ReturnURL   string
	Logger      zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	webhookH := NewWebhookController(deps.Webhooks, deps.Metrics, deps.Logger)
	statusH := NewStatusController(deps.Orders, deps.QueryAgent, deps.AuthConfig.StatusCheckToken, deps.ReturnURL, deps.Logger)
	checkoutH := NewCheckoutController(deps.Checkout)
	adminH := NewAdminController(deps.Logs, deps.RetryAgent, deps.Refunds, deps.Checkout)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	// The provider posts here; no auth beyond signature verification, and
	// never rate limited: a dropped notification means a redelivery storm.
	r.Post("/webhooks/alipay", webhookH.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.RateLimit(120))

		r.Post("/orders/{id}/pay", checkoutH.Pay)
		r.Post("/orders/{id}/status-check", statusH.Check)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(customMW.RequireAuth(deps.AuthConfig.AdminJWTSecret))

		r.Get("/webhooks", adminH.ListWebhooks)
		r.Post("/webhooks/{id}/retry", adminH.RetryWebhook)
		r.Post("/orders/{id}/refund", adminH.RefundOrder)
		r.Post("/orders/{id}/cancel", adminH.CancelOrder)
	})

	return r
}
