package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/felixhub/workshop/internal/infrastructure/observability"
	infraRedis "github.com/felixhub/workshop/internal/infrastructure/redis"
	"github.com/felixhub/workshop/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// AlertLockKey guards the sweep so only one worker replica evaluates alerts
// per tick.
const AlertLockKey = "worker:alert_sweep"

// AlertSource evaluates alert conditions. It must not fail.
type AlertSource interface {
	AlertConditions(ctx context.Context) []service.Alert
}

// AlertNotifier pushes one alert to the administrators.
type AlertNotifier interface {
	NotifySystemAlert(ctx context.Context, a service.Alert) (bool, error)
}

// AlertSweeper periodically evaluates alert conditions and pushes critical
// ones to the admin chats. Repeats of the same alert type are suppressed by
// the notification deduplicator.
type AlertSweeper struct {
	redis    redis.Cmdable
	source   AlertSource
	notifier AlertNotifier
	lockTTL  time.Duration
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewAlertSweeper(
	client redis.Cmdable,
	source AlertSource,
	notifier AlertNotifier,
	lockTTL time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *AlertSweeper {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &AlertSweeper{
		redis:    client,
		source:   source,
		notifier: notifier,
		lockTTL:  lockTTL,
		metrics:  metrics,
		logger:   logger.With().Str("component", "alert_sweeper").Logger(),
	}
}

// Run schedules Sweep with a cron spec (e.g. "@every 5m") until ctx is
// cancelled, then waits for a running sweep to finish.
func (s *AlertSweeper) Run(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error().Err(err).Msg("alert sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule alert sweep %q: %w", schedule, err)
	}

	c.Start()
	s.logger.Info().Str("schedule", schedule).Msg("alert sweeper started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("alert sweeper stopped")
	return nil
}

// Sweep evaluates alerts once under the distributed lock. It is a no-op when
// another replica holds the lock.
func (s *AlertSweeper) Sweep(ctx context.Context) error {
	ran, err := infraRedis.RunExclusive(ctx, s.redis, AlertLockKey, s.lockTTL, s.sweep)
	if err != nil {
		return err
	}
	if !ran {
		s.logger.Debug().Msg("alert sweep skipped, lock held elsewhere")
	}
	return nil
}

func (s *AlertSweeper) sweep(ctx context.Context) error {
	ctx, _ = observability.NewCorrelation(ctx)
	logger := observability.LoggerFrom(ctx, s.logger)

	alerts := s.source.AlertConditions(ctx)

	counts := map[service.Severity]int{
		service.SeverityWarning:  0,
		service.SeverityCritical: 0,
		service.SeverityError:    0,
	}
	for _, a := range alerts {
		counts[a.Severity]++
	}
	for severity, n := range counts {
		s.metrics.ActiveAlerts.WithLabelValues(string(severity)).Set(float64(n))
	}

	for _, a := range alerts {
		event := logger.Warn()
		if a.Severity != service.SeverityWarning {
			event = logger.Error()
		}
		event.Str("severity", string(a.Severity)).
			Str("alert_type", a.Type).
			Interface("details", a.Details).
			Msg(a.Message)

		if a.Severity != service.SeverityCritical {
			continue
		}
		if ok, err := s.notifier.NotifySystemAlert(ctx, a); !ok {
			logger.Error().Err(err).Str("alert_type", a.Type).Msg("failed to push alert to admins")
		}
	}

	logger.Info().
		Int("alerts", len(alerts)).
		Int("critical", counts[service.SeverityCritical]).
		Msg("alert sweep completed")
	return nil
}
