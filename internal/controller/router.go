package controller

import (
	"context"
	"time"

	"github.com/felixhub/workshop/internal/infrastructure/config"
	"github.com/felixhub/workshop/internal/infrastructure/observability"
	customMW "github.com/felixhub/workshop/internal/middleware"
	"github.com/felixhub/workshop/internal/service"
	"github.com/felixhub/workshop/internal/webhook"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// WebhookPath is the URL registered with Telegram's setWebhook.
const WebhookPath = "/webhook/telegram"

type RouterDeps struct {
	Database          Pinger
	RedisClient       redis.Cmdable
	Bridge            *webhook.Bridge
	OrderService      *service.OrderService
	MonitoringService *service.MonitoringService
	Metrics           *observability.Metrics
	Gatherer          prometheus.Gatherer
	Server            config.ServerConfig
	Auth              config.AuthConfig
	WebhookSecret     string
	Logger            zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(customMW.Correlation())
	r.Use(customMW.Tracing())
	r.Use(customMW.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", customMW.HeaderCorrelationID, customMW.HeaderRequestID},
		ExposedHeaders:   []string{customMW.HeaderCorrelationID},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	var redisPing Pinger
	if deps.RedisClient != nil {
		redisPing = PingFunc(func(ctx context.Context) error {
			return deps.RedisClient.Ping(ctx).Err()
		})
	}
	var bridgeStatus BridgeStatus
	var updates UpdateBridge
	if deps.Bridge != nil {
		bridgeStatus = deps.Bridge
		updates = deps.Bridge
	}

	healthH := NewHealthController(deps.Database, redisPing, bridgeStatus)
	webhookH := NewWebhookController(updates, deps.WebhookSecret, deps.Logger)
	orderH := NewOrderController(deps.OrderService, deps.Logger)
	monitoringH := NewMonitoringController(deps.MonitoringService, deps.Logger)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post(WebhookPath, webhookH.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.SecurityHeaders())
		r.Use(customMW.RateLimit(deps.Server.RateLimitPerMinute))
		r.Use(customMW.RequireAuth(deps.Auth.JWTSecret))

		r.Route("/orders", func(r chi.Router) {
			r.Use(customMW.RequireRole(customMW.RoleAdmin, customMW.RoleMechanic))
			r.Post("/", orderH.Create)
			r.Get("/", orderH.List)
			r.Get("/{id}", orderH.Get)
			r.Patch("/{id}/status", orderH.UpdateStatus)
			r.Patch("/{id}/work-status", orderH.UpdateWorkStatus)
		})

		r.Route("/monitoring", func(r chi.Router) {
			r.Use(customMW.RequireRole(customMW.RoleAdmin))
			r.Get("/notifications/success-rate", monitoringH.SuccessRate)
			r.Get("/notifications/failures", monitoringH.Failures)
			r.Get("/notifications/dead-letters", monitoringH.DeadLetters)
			r.Get("/alerts", monitoringH.Alerts)
			r.Get("/summary", monitoringH.Summary)
			r.Get("/circuit-breakers", monitoringH.CircuitBreakers)
			r.Post("/circuit-breakers/{name}/reset", monitoringH.ResetCircuitBreaker)
		})
	})

	return r
}
