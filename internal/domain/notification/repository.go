package notification

import (
	"context"
	"time"
)

type Repository interface {
	Insert(ctx context.Context, r *Record) error

	// HasRecentSuccess reports whether a successful record with hash exists
	// with sent_at at or after since.
	HasRecentSuccess(ctx context.Context, hash string, since time.Time) (bool, error)

	// StatsByType aggregates records sent at or after since, grouped by type.
	StatsByType(ctx context.Context, since time.Time) ([]Stats, error)

	// ListFailures returns failed records newest first.
	ListFailures(ctx context.Context, since time.Time, limit int) ([]*Record, error)
}
