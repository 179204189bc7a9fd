package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/felixhub/workshop/internal/breaker"
	"github.com/felixhub/workshop/internal/domain/notification"
	"github.com/felixhub/workshop/internal/domain/order"
	"github.com/rs/zerolog"
)

// Severity of an alert condition.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	// SeverityError marks a check that could not be evaluated.
	SeverityError Severity = "error"
)

// Health status derived from a set of alerts.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

const (
	alertLowSuccessRate = "low_success_rate"
	alertFailureSpike   = "failure_spike"
	alertStuckOrders    = "stuck_orders"
	alertMetricsError   = "metrics_error"

	overallKey = "overall"
)

// Alert is one detected condition.
type Alert struct {
	Severity Severity       `json:"severity"`
	Type     string         `json:"type"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// AlertThresholds are the limits evaluated by AlertConditions.
type AlertThresholds struct {
	WarningSuccessRate  float64
	CriticalSuccessRate float64
	FailureSpike        int
	StuckAfter          time.Duration
	Window              time.Duration
}

func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		WarningSuccessRate:  99,
		CriticalSuccessRate: 95,
		FailureSpike:        10,
		StuckAfter:          24 * time.Hour,
		Window:              time.Hour,
	}
}

// DeadLetterReader lists dead letters, newest first.
type DeadLetterReader interface {
	RecentDeadLetters(ctx context.Context, count int64) ([]notification.DeadLetter, error)
}

// RateSummary is the delivery success rate of one notification type.
type RateSummary struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// AlertReport groups alerts with an overall status.
type AlertReport struct {
	Status        string  `json:"status"`
	AlertCount    int     `json:"alert_count"`
	CriticalCount int     `json:"critical_count"`
	WarningCount  int     `json:"warning_count"`
	Alerts        []Alert `json:"alerts"`
}

// DailySummary covers the current UTC day.
type DailySummary struct {
	Date                string  `json:"date"`
	OrdersCreated       int     `json:"orders_created"`
	NotificationsSent   int     `json:"notifications_sent"`
	NotificationsFailed int     `json:"notifications_failed"`
	SuccessRate         float64 `json:"success_rate"`
}

// MonitoringService aggregates delivery outcomes and domain state into rates,
// failure lists and alert conditions. It only reads.
type MonitoringService struct {
	notificationRepo notification.Repository
	orderRepo        order.Repository
	breakers         *breaker.Registry
	deadLetters      DeadLetterReader
	thresholds       AlertThresholds
	now              func() time.Time
	logger           zerolog.Logger
}

func NewMonitoringService(
	notificationRepo notification.Repository,
	orderRepo order.Repository,
	breakers *breaker.Registry,
	deadLetters DeadLetterReader,
	thresholds AlertThresholds,
	logger zerolog.Logger,
) *MonitoringService {
	return &MonitoringService{
		notificationRepo: notificationRepo,
		orderRepo:        orderRepo,
		breakers:         breakers,
		deadLetters:      deadLetters,
		thresholds:       thresholds,
		now:              time.Now,
		logger:           logger,
	}
}

// SuccessRate returns the success percentage of type t over the trailing
// window, or of all types when t is empty. No deliveries means 100.
func (s *MonitoringService) SuccessRate(ctx context.Context, t notification.Type, window time.Duration) (float64, error) {
	stats, err := s.notificationRepo.StatsByType(ctx, s.since(window))
	if err != nil {
		return 0, fmt.Errorf("load notification stats: %w", err)
	}
	total := sumStats(stats, t)
	return round2(total.SuccessRate()), nil
}

// SuccessRates returns a summary per notification type plus "overall".
func (s *MonitoringService) SuccessRates(ctx context.Context, window time.Duration) (map[string]RateSummary, error) {
	stats, err := s.notificationRepo.StatsByType(ctx, s.since(window))
	if err != nil {
		return nil, fmt.Errorf("load notification stats: %w", err)
	}

	result := make(map[string]RateSummary, len(stats)+1)
	for _, st := range stats {
		result[string(st.Type)] = summarize(st)
	}
	result[overallKey] = summarize(sumStats(stats, ""))
	return result, nil
}

// RecentFailures returns failed deliveries newest first, at most limit.
func (s *MonitoringService) RecentFailures(ctx context.Context, window time.Duration, limit int) ([]*notification.Record, error) {
	records, err := s.notificationRepo.ListFailures(ctx, s.since(window), limit)
	if err != nil {
		return nil, fmt.Errorf("load recent failures: %w", err)
	}
	return records, nil
}

// AlertConditions evaluates every threshold. It never fails: a check that
// cannot be evaluated is reported as an error-severity alert.
func (s *MonitoringService) AlertConditions(ctx context.Context) (alerts []Alert) {
	alerts = []Alert{}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("alert evaluation panicked")
			alerts = append(alerts, checkFailed("evaluate", fmt.Errorf("panic: %v", r)))
		}
	}()

	alerts = append(alerts, s.deliveryAlerts(ctx)...)
	alerts = append(alerts, s.stuckOrderAlerts(ctx)...)
	return alerts
}

func (s *MonitoringService) deliveryAlerts(ctx context.Context) []Alert {
	stats, err := s.notificationRepo.StatsByType(ctx, s.since(s.thresholds.Window))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load notification stats for alerts")
		return []Alert{checkFailed("notification_stats", err)}
	}

	var alerts []Alert
	total := sumStats(stats, "")
	if total.Total > 0 {
		rate := round2(total.SuccessRate())
		details := map[string]any{
			"success_rate": rate,
			"total":        total.Total,
			"failed":       total.Failed(),
		}
		switch {
		case rate < s.thresholds.CriticalSuccessRate:
			alerts = append(alerts, Alert{
				Severity: SeverityCritical,
				Type:     alertLowSuccessRate,
				Message:  fmt.Sprintf("Notification success rate is %.2f%%, below %.0f%%", rate, s.thresholds.CriticalSuccessRate),
				Details:  details,
			})
		case rate < s.thresholds.WarningSuccessRate:
			alerts = append(alerts, Alert{
				Severity: SeverityWarning,
				Type:     alertLowSuccessRate,
				Message:  fmt.Sprintf("Notification success rate is %.2f%%, below %.0f%%", rate, s.thresholds.WarningSuccessRate),
				Details:  details,
			})
		}
	}

	if failed := total.Failed(); failed >= s.thresholds.FailureSpike {
		alerts = append(alerts, Alert{
			Severity: SeverityCritical,
			Type:     alertFailureSpike,
			Message:  fmt.Sprintf("%d notification failures in the last %s", failed, s.thresholds.Window),
			Details:  map[string]any{"failed": failed, "threshold": s.thresholds.FailureSpike},
		})
	}
	return alerts
}

func (s *MonitoringService) stuckOrderAlerts(ctx context.Context) []Alert {
	stuck, err := s.orderRepo.CountStuck(ctx, order.StatusNew, s.since(s.thresholds.StuckAfter))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to count stuck orders")
		return []Alert{checkFailed("stuck_orders", err)}
	}
	if stuck == 0 {
		return nil
	}
	return []Alert{{
		Severity: SeverityWarning,
		Type:     alertStuckOrders,
		Message:  fmt.Sprintf("%d orders in status %q for more than %s", stuck, order.StatusNew, s.thresholds.StuckAfter),
		Details:  map[string]any{"count": stuck, "status": string(order.StatusNew)},
	}}
}

// AlertReport evaluates alerts and derives the overall status:
// critical beats warning beats healthy.
func (s *MonitoringService) AlertReport(ctx context.Context) AlertReport {
	alerts := s.AlertConditions(ctx)
	report := AlertReport{Status: HealthHealthy, Alerts: alerts, AlertCount: len(alerts)}
	for _, a := range alerts {
		switch a.Severity {
		case SeverityCritical:
			report.CriticalCount++
		case SeverityWarning:
			report.WarningCount++
		}
	}
	switch {
	case report.CriticalCount > 0:
		report.Status = HealthCritical
	case report.WarningCount > 0:
		report.Status = HealthWarning
	}
	return report
}

// DailySummary reports today's order and notification totals.
func (s *MonitoringService) DailySummary(ctx context.Context) (*DailySummary, error) {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	created, err := s.orderRepo.CountCreatedSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	stats, err := s.notificationRepo.StatsByType(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("load notification stats: %w", err)
	}
	total := sumStats(stats, "")

	return &DailySummary{
		Date:                start.Format("2006-01-02"),
		OrdersCreated:       created,
		NotificationsSent:   total.Successful,
		NotificationsFailed: total.Failed(),
		SuccessRate:         round2(total.SuccessRate()),
	}, nil
}

// CircuitBreakers returns a snapshot of every registered breaker.
func (s *MonitoringService) CircuitBreakers() []breaker.Snapshot {
	return s.breakers.Snapshots()
}

// ResetCircuitBreaker forces a breaker closed.
func (s *MonitoringService) ResetCircuitBreaker(name string) error {
	if err := s.breakers.Reset(name); err != nil {
		return err
	}
	s.logger.Warn().Str("breaker", name).Msg("circuit breaker reset by operator")
	return nil
}

// RecentDeadLetters lists abandoned messages, newest first.
func (s *MonitoringService) RecentDeadLetters(ctx context.Context, count int) ([]notification.DeadLetter, error) {
	if s.deadLetters == nil {
		return []notification.DeadLetter{}, nil
	}
	return s.deadLetters.RecentDeadLetters(ctx, int64(count))
}

func (s *MonitoringService) since(window time.Duration) time.Time {
	return s.now().UTC().Add(-window)
}

// sumStats folds stats of type t, or of every type when t is empty.
func sumStats(stats []notification.Stats, t notification.Type) notification.Stats {
	total := notification.Stats{Type: t}
	for _, st := range stats {
		if t != "" && st.Type != t {
			continue
		}
		total.Total += st.Total
		total.Successful += st.Successful
	}
	return total
}

func summarize(st notification.Stats) RateSummary {
	return RateSummary{
		Total:       st.Total,
		Successful:  st.Successful,
		Failed:      st.Failed(),
		SuccessRate: round2(st.SuccessRate()),
	}
}

func checkFailed(check string, err error) Alert {
	return Alert{
		Severity: SeverityError,
		Type:     alertMetricsError,
		Message:  fmt.Sprintf("Failed to evaluate %s", check),
		Details:  map[string]any{"check": check, "error": err.Error()},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
