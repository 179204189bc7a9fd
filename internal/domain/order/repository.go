package order

import (
	"context"
	"time"
)

// Repository defines the interface for order persistence
type Repository interface {
	Create(ctx context.Context, o *Order) error

	// GetByID returns errors.ErrOrderNotFound when no row matches.
	GetByID(ctx context.Context, id int64) (*Order, error)

	// GetByIDForUpdate locks the row for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, id int64) (*Order, error)

	UpdateStatus(ctx context.Context, o *Order) error

	// ListByTelegramID returns the newest orders of a mechanic first.
	ListByTelegramID(ctx context.Context, telegramID string, limit int) ([]*Order, error)

	// CountStuck counts orders still in status since before the cutoff.
	CountStuck(ctx context.Context, status Status, before time.Time) (int, error)

	// CountCreatedSince counts orders created at or after since.
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}
