package service

import (
	"context"
	"fmt"

	"github.com/felixhub/workshop/internal/domain/order"
	"github.com/felixhub/workshop/internal/domain/outbox"
	"github.com/felixhub/workshop/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// OrderNotifier is the part of NotificationService the dispatcher needs.
type OrderNotifier interface {
	NotifyAdminsNewOrder(ctx context.Context, o *order.Order) (bool, error)
	NotifyOrderStatusChanged(ctx context.Context, o *order.Order, old, next order.Status) (bool, error)
	NotifyMechanicStatusChanged(ctx context.Context, o *order.Order, old, next order.WorkStatus) (bool, error)
}

// NotificationDispatcher turns outbox entries into notifications.
type NotificationDispatcher struct {
	orderRepo order.Repository
	notifier  OrderNotifier
	logger    zerolog.Logger
}

func NewNotificationDispatcher(orderRepo order.Repository, notifier OrderNotifier, logger zerolog.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		orderRepo: orderRepo,
		notifier:  notifier,
		logger:    logger,
	}
}

// Dispatch handles one outbox entry. Only infrastructure failures are
// returned; an undelivered notification was already recorded and
// dead-lettered, so it does not fail the entry.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, e *outbox.Entry) error {
	ctx = observability.WithCorrelationID(ctx, e.ID.String())
	logger := observability.LoggerFrom(ctx, d.logger).With().
		Str("event_type", e.EventType).
		Str("aggregate_id", e.AggregateID).
		Logger()

	id, err := parseOrderID(e.AggregateID)
	if err != nil {
		logger.Error().Err(err).Msg("dropping outbox entry with malformed aggregate id")
		return nil
	}

	o, err := d.orderRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load order %d: %w", id, err)
	}

	var ok bool
	switch e.EventType {
	case outbox.EventOrderCreated:
		ok, err = d.notifier.NotifyAdminsNewOrder(ctx, o)
	case outbox.EventOrderStatusChanged:
		ok, err = d.notifier.NotifyOrderStatusChanged(ctx, o,
			order.Status(e.PayloadString("old_status")),
			order.Status(e.PayloadString("new_status")))
	case outbox.EventOrderWorkStatusChanged:
		ok, err = d.notifier.NotifyMechanicStatusChanged(ctx, o,
			order.WorkStatus(e.PayloadString("old_work_status")),
			order.WorkStatus(e.PayloadString("new_work_status")))
	default:
		logger.Warn().Msg("unknown outbox event type, skipping")
		return nil
	}

	if !ok {
		// Delivery failures are not retried through the outbox.
		logger.Warn().Err(err).Msg("notification for outbox entry not delivered")
		return nil
	}
	logger.Debug().Msg("outbox entry dispatched")
	return nil
}
