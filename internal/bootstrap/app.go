package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/felixhub/workshop/internal/breaker"
	"github.com/felixhub/workshop/internal/infrastructure/config"
	"github.com/felixhub/workshop/internal/infrastructure/observability"
	infraRedis "github.com/felixhub/workshop/internal/infrastructure/redis"
	"github.com/felixhub/workshop/internal/infrastructure/telegram"
	"github.com/felixhub/workshop/internal/repository/postgres"
	"github.com/felixhub/workshop/internal/service"
	"github.com/felixhub/workshop/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the infrastructure and services shared by the api and worker
// processes.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Breakers *breaker.Registry

	TxManager        *postgres.TxManager
	OrderRepo        *postgres.OrderRepository
	NotificationRepo *postgres.NotificationRepository
	OutboxRepo       *postgres.OutboxRepository
	DeadLetters      *infraRedis.StreamProducer

	Telegram      *telegram.Client
	Orders        *service.OrderService
	Notifications *service.NotificationService
	Monitoring    *service.MonitoringService

	tracer *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).With().
		Str("service", serviceName).
		Str("instance", cfg.InstanceID).
		Logger()
	logger.Info().Str("environment", cfg.Environment).Msg("starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("tracing enabled")
		}
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = observability.NewMetrics(metricsNamespace, app.Registry)

	app.Pool, err = postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("connected to PostgreSQL")

	app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("connected to Redis")

	app.wire()
	return app, nil
}

// wire builds repositories and services on top of the connected pools.
func (a *App) wire() {
	cfg := a.Config

	a.TxManager = postgres.NewTxManager(a.Pool)
	a.OrderRepo = postgres.NewOrderRepository(a.Pool)
	a.NotificationRepo = postgres.NewNotificationRepository(a.Pool)
	a.OutboxRepo = postgres.NewOutboxRepository(a.Pool)
	a.DeadLetters = infraRedis.NewStreamProducer(a.Redis)

	a.Breakers = breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		OpenTimeout:      cfg.CircuitBreaker.OpenTimeout,
		HalfOpenSuccesses:   cfg.CircuitBreaker.HalfOpenSuccesses,
		OnStateChange:    a.onBreakerStateChange,
	})

	a.Telegram = telegram.NewClient(
		telegram.Options{
			Token:          cfg.Telegram.BotToken,
			BaseURL:        cfg.Telegram.APIBaseURL,
			ParseMode:      cfg.Telegram.ParseMode,
			RequestTimeout: cfg.Telegram.RequestTimeout,
			Retry: retry.Config{
				MaxAttempts:  cfg.Telegram.MaxAttempts,
				InitialDelay: cfg.Telegram.BaseRetryDelay,
				MaxDelay:     cfg.Telegram.MaxRetryDelay,
			},
		},
		a.Breakers.Get(telegram.BreakerName),
		a.DeadLetters,
		a.Metrics,
		a.Logger,
	)
	if !a.Telegram.Configured() {
		a.Logger.Warn().Msg("telegram bot token not set, notifications will not be delivered")
	}

	a.Orders = service.NewOrderService(a.OrderRepo, a.OutboxRepo, a.TxManager, a.Logger)

	dedup := service.NewDeduplicator(a.NotificationRepo, cfg.Notifications.DedupWindow, a.Logger)
	a.Notifications = service.NewNotificationService(a.Telegram, dedup, service.NotificationSettings{
		AdminRecipients: cfg.Notifications.AdminRecipients(),
		EnableAdmin:     cfg.Notifications.EnableAdminNotifications,
		EnableMechanic:  cfg.Notifications.EnableMechanicNotifications,
		EnableAlerts:    cfg.Notifications.EnableAlertNotifications,
		OrderLink:       cfg.Notifications.AdminOrderLink,
	}, a.Metrics, a.Logger)

	a.Monitoring = service.NewMonitoringService(
		a.NotificationRepo,
		a.OrderRepo,
		a.Breakers,
		a.DeadLetters,
		service.DefaultAlertThresholds(),
		a.Logger,
	)
}

// onBreakerStateChange runs under the breaker's own lock; it only touches
// metrics and the logger.
func (a *App) onBreakerStateChange(name string, from, to breaker.State) {
	a.Metrics.CircuitBreakerState.WithLabelValues(name).Set(to.Gauge())
	a.Metrics.CircuitBreakerTransitions.WithLabelValues(name, string(from), string(to)).Inc()

	event := a.Logger.Info()
	if to == breaker.StateOpen {
		event = a.Logger.Error()
	}
	event.Str("breaker", name).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("circuit breaker state changed")
}

// Close releases pools and flushes traces. It tolerates a partially built App.
func (a *App) Close(ctx context.Context) {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.tracer != nil {
		errs = append(errs, observability.Shutdown(ctx, a.tracer))
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Error().Err(err).Msg("error while closing resources")
	}
}
