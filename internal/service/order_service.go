package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	domainErrors "github.com/felixhub/workshop/internal/domain/errors"
	"github.com/felixhub/workshop/internal/domain/order"
	"github.com/felixhub/workshop/internal/domain/outbox"
	"github.com/rs/zerolog"
)

const (
	aggregateOrder = "order"

	// MaxListedOrders caps ListByTelegramID.
	MaxListedOrders = 50
)

// TransactionManager runs fn in one database transaction, joining one
// already carried by ctx.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderService handles order writes. Every write commits the order change and
// an outbox entry in one transaction; notifications are sent later by the
// worker and can never roll a write back.
type OrderService struct {
	orderRepo  order.Repository
	outboxRepo outbox.Repository
	txManager  TransactionManager
	logger     zerolog.Logger
}

func NewOrderService(
	orderRepo order.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	logger zerolog.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		txManager:  txManager,
		logger:     logger,
	}
}

// CreateOrderRequest holds the input for creating an order.
type CreateOrderRequest struct {
	MechanicName  string
	TelegramID    string
	Category      string
	VIN           string
	CarNumber     string
	SelectedParts []string
	Language      string
}

// CreateOrder persists a new order and queues the admin notification.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*order.Order, error) {
	o, err := order.NewOrder(req.MechanicName, req.TelegramID, req.Category, req.VIN, req.CarNumber, req.SelectedParts)
	if err != nil {
		return nil, err
	}
	if req.Language != "" {
		o.Language = req.Language
	}

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.orderRepo.Create(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		entry := outbox.NewEntry(aggregateOrder, orderSubject(o.ID), outbox.EventOrderCreated, map[string]any{
			"order_id":    o.ID,
			"telegram_id": o.TelegramID,
		})
		if err := s.outboxRepo.Insert(ctx, entry); err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("order_id", o.ID).Str("category", o.Category).Msg("order created")
	return o, nil
}

// UpdateStatus moves an order to a new customer-facing status. Setting the
// current status again is a no-op and queues nothing.
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	var updated *order.Order

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orderRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		old, err := o.ChangeStatus(status)
		if errors.Is(err, domainErrors.ErrStatusUnchanged) {
			updated = o
			return nil
		}
		if err != nil {
			return err
		}

		if err := s.orderRepo.UpdateStatus(ctx, o); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		entry := outbox.NewEntry(aggregateOrder, orderSubject(o.ID), outbox.EventOrderStatusChanged, map[string]any{
			"order_id":   o.ID,
			"old_status": string(old),
			"new_status": string(o.Status),
		})
		if err := s.outboxRepo.Insert(ctx, entry); err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}

		s.logger.Info().
			Int64("order_id", o.ID).
			Str("old_status", string(old)).
			Str("new_status", string(o.Status)).
			Msg("order status changed")
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateWorkStatus moves the mechanic-side work state of an order.
func (s *OrderService) UpdateWorkStatus(ctx context.Context, id int64, status order.WorkStatus) (*order.Order, error) {
	var updated *order.Order

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orderRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		old, err := o.ChangeWorkStatus(status)
		if errors.Is(err, domainErrors.ErrStatusUnchanged) {
			updated = o
			return nil
		}
		if err != nil {
			return err
		}

		if err := s.orderRepo.UpdateStatus(ctx, o); err != nil {
			return fmt.Errorf("update work status: %w", err)
		}
		entry := outbox.NewEntry(aggregateOrder, orderSubject(o.ID), outbox.EventOrderWorkStatusChanged, map[string]any{
			"order_id":        o.ID,
			"old_work_status": string(old),
			"new_work_status": string(o.WorkStatus),
		})
		if err := s.outboxRepo.Insert(ctx, entry); err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	return s.orderRepo.GetByID(ctx, id)
}

// ListByTelegramID returns the newest orders of a mechanic.
func (s *OrderService) ListByTelegramID(ctx context.Context, telegramID string, limit int) ([]*order.Order, error) {
	if telegramID == "" {
		return nil, domainErrors.NewValidationError("telegram_id", "cannot be empty")
	}
	if limit <= 0 || limit > MaxListedOrders {
		limit = MaxListedOrders
	}
	return s.orderRepo.ListByTelegramID(ctx, telegramID, limit)
}

// parseOrderID reads the aggregate id written by this service.
func parseOrderID(aggregateID string) (int64, error) {
	id, err := strconv.ParseInt(aggregateID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: order id %q", domainErrors.ErrInvalidInput, aggregateID)
	}
	return id, nil
}
