package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	domainErrors "github.com/felixhub/workshop/internal/domain/errors"
	"github.com/felixhub/workshop/internal/domain/notification"
	"github.com/felixhub/workshop/internal/domain/order"
	"github.com/felixhub/workshop/internal/infrastructure/observability"
	"github.com/felixhub/workshop/internal/infrastructure/telegram"
	"github.com/rs/zerolog"
)

// MessageSender delivers one chat message. ok is false whenever err is set.
type MessageSender interface {
	Send(ctx context.Context, recipient string, msg telegram.Message) (bool, error)
}

// NotificationSettings are the per-category switches and addressing data.
type NotificationSettings struct {
	AdminRecipients []string
	EnableAdmin     bool
	EnableMechanic  bool
	EnableAlerts    bool
	// OrderLink builds the admin deep link of an order; nil disables links.
	OrderLink func(orderID int64) string
}

// NotificationService renders and delivers notifications about orders and
// system health. Every method returns (ok, err) and never panics the caller;
// callers decide explicitly whether a failed notification matters.
type NotificationService struct {
	sender   MessageSender
	dedup    *Deduplicator
	settings NotificationSettings
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewNotificationService(
	sender MessageSender,
	dedup *Deduplicator,
	settings NotificationSettings,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *NotificationService {
	return &NotificationService{
		sender:   sender,
		dedup:    dedup,
		settings: settings,
		metrics:  metrics,
		logger:   logger,
	}
}

// NotifyAdminsNewOrder tells every admin about a freshly created order.
func (s *NotificationService) NotifyAdminsNewOrder(ctx context.Context, o *order.Order) (bool, error) {
	ctx, _ = observability.NewCorrelation(ctx)
	if !s.settings.EnableAdmin {
		s.skipDisabled(ctx, notification.TypeAdminNewOrder, o.ID)
		return true, nil
	}
	text := renderAdminNewOrder(o, s.link(o.ID))
	return s.notifyAdmins(ctx, notification.TypeAdminNewOrder, orderSubject(o.ID), text)
}

// NotifyOrderStatusChanged informs the order owner when the order became
// ready or was issued, and mirrors the move to admins when admin
// notifications are on. Moves to new or in_progress reach no customer.
func (s *NotificationService) NotifyOrderStatusChanged(ctx context.Context, o *order.Order, old, next order.Status) (bool, error) {
	ctx, _ = observability.NewCorrelation(ctx)
	if old == next {
		return true, nil
	}

	ok := true
	var errs []error

	if customerOK, err := s.notifyOwner(ctx, o, old, next); !customerOK {
		ok = false
		errs = append(errs, err)
	}

	if s.settings.EnableAdmin {
		text := renderAdminStatusChanged(o, old, next, s.link(o.ID))
		subject := fmt.Sprintf("%d:%s", o.ID, next)
		if adminOK, err := s.notifyAdmins(ctx, notification.TypeOrderStatusChanged, subject, text); !adminOK {
			ok = false
			errs = append(errs, err)
		}
	}

	return ok, errors.Join(errs...)
}

func (s *NotificationService) notifyOwner(ctx context.Context, o *order.Order, old, next order.Status) (bool, error) {
	var (
		t    notification.Type
		text string
	)
	switch next {
	case order.StatusReady:
		t, text = notification.TypeOrderReady, renderOrderReady(o)
	case order.StatusIssued:
		t, text = notification.TypeOrderIssued, renderOrderIssued(o, old)
	default:
		return true, nil
	}

	if o.TelegramID == "" {
		logger := observability.LoggerFrom(ctx, s.logger)
		logger.Debug().
			Int64("order_id", o.ID).
			Str("type", string(t)).
			Msg("order has no telegram chat, customer notification skipped")
		return true, nil
	}
	return s.deliver(ctx, t, orderSubject(o.ID), o.TelegramID, text)
}

// NotifyMechanicStatusChanged tells admins that a mechanic moved the work state.
func (s *NotificationService) NotifyMechanicStatusChanged(ctx context.Context, o *order.Order, old, next order.WorkStatus) (bool, error) {
	ctx, _ = observability.NewCorrelation(ctx)
	if !s.settings.EnableMechanic {
		s.skipDisabled(ctx, notification.TypeMechanicStatusChanged, o.ID)
		return true, nil
	}
	if old == next {
		return true, nil
	}
	text := renderMechanicStatusChanged(o, old, next, s.link(o.ID))
	subject := fmt.Sprintf("%d:%s", o.ID, next)
	return s.notifyAdmins(ctx, notification.TypeMechanicStatusChanged, subject, text)
}

// NotifySystemAlert pushes an alert to admins. Repeats of the same alert type
// are suppressed for the dedup window.
func (s *NotificationService) NotifySystemAlert(ctx context.Context, a Alert) (bool, error) {
	ctx, _ = observability.NewCorrelation(ctx)
	if !s.settings.EnableAlerts {
		logger := observability.LoggerFrom(ctx, s.logger)
		logger.Debug().
			Str("alert_type", a.Type).
			Msg("alert notifications disabled")
		return true, nil
	}
	return s.notifyAdmins(ctx, notification.TypeSystemAlert, a.Type, renderSystemAlert(a))
}

// notifyAdmins fans a message out to every admin. It succeeds when at least
// one admin received it.
func (s *NotificationService) notifyAdmins(ctx context.Context, t notification.Type, subjectID, text string) (bool, error) {
	if len(s.settings.AdminRecipients) == 0 {
		logger := observability.LoggerFrom(ctx, s.logger)
		logger.Warn().
			Str("type", string(t)).
			Msg("no admin recipients configured")
		return false, fmt.Errorf("%w: no admin recipients", domainErrors.ErrNotConfigured)
	}

	delivered := false
	var errs []error
	for _, recipient := range s.settings.AdminRecipients {
		ok, err := s.deliver(ctx, t, subjectID, recipient, text)
		if ok {
			delivered = true
			continue
		}
		errs = append(errs, fmt.Errorf("recipient %s: %w", recipient, err))
	}

	if delivered {
		if len(errs) > 0 {
			logger := observability.LoggerFrom(ctx, s.logger)
			logger.Warn().
				Err(errors.Join(errs...)).
				Str("type", string(t)).
				Str("subject_id", subjectID).
				Msg("notification reached only some admins")
		}
		return true, nil
	}
	return false, errors.Join(errs...)
}

// deliver runs dedup check, send and outcome recording for one recipient.
func (s *NotificationService) deliver(ctx context.Context, t notification.Type, subjectID, recipient, text string) (bool, error) {
	logger := observability.LoggerFrom(ctx, s.logger).With().
		Str("type", string(t)).
		Str("subject_id", subjectID).
		Str("recipient", recipient).
		Logger()

	if !s.dedup.ShouldSend(ctx, t, subjectID, recipient) {
		s.metrics.NotificationsSuppressed.WithLabelValues(string(t)).Inc()
		logger.Info().Msg("duplicate notification suppressed")
		return true, nil
	}

	ok, err := s.sender.Send(ctx, recipient, telegram.Message{Text: text, SubjectID: subjectID})
	if !ok && err == nil {
		err = errors.New("delivery failed")
	}

	if recErr := s.dedup.Record(ctx, t, subjectID, recipient, ok, err); recErr != nil {
		logger.Error().Err(recErr).Msg("failed to record notification outcome")
	}

	status := "success"
	if !ok {
		status = "failed"
	}
	s.metrics.NotificationsTotal.WithLabelValues(string(t), status).Inc()

	if !ok {
		logger.Warn().Err(err).Msg("notification not delivered")
		return false, err
	}
	logger.Info().Msg("notification delivered")
	return true, nil
}

func (s *NotificationService) skipDisabled(ctx context.Context, t notification.Type, orderID int64) {
	logger := observability.LoggerFrom(ctx, s.logger)
	logger.Debug().
		Str("type", string(t)).
		Int64("order_id", orderID).
		Msg("notification category disabled")
}

func (s *NotificationService) link(orderID int64) string {
	if s.settings.OrderLink == nil {
		return ""
	}
	return s.settings.OrderLink(orderID)
}

func orderSubject(id int64) string {
	return strconv.FormatInt(id, 10)
}
