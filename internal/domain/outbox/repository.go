package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Insert creates a new outbox entry (typically inside a transaction)
	Insert(ctx context.Context, entry *Entry) error

	// ClaimPending leases up to limit pending entries for lease, oldest
	// first. Leased entries are skipped by other claims until the lease
	// expires or the entry is marked or released.
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*Entry, error)

	// MarkPublished marks an outbox entry as published
	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed marks an outbox entry as failed and increments retry count
	MarkFailed(ctx context.Context, id uuid.UUID) error

	// Release drops the lease of a claimed entry without counting a retry.
	Release(ctx context.Context, id uuid.UUID) error
}
