package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixhub/workshop/internal/domain/notification"
	"github.com/felixhub/workshop/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeduplicator(repo notification.Repository, now *time.Time) *Deduplicator {
	d := NewDeduplicator(repo, 15*time.Minute, zerolog.Nop())
	d.now = func() time.Time { return *now }
	return d
}

func TestDeduplicator_SuppressesWithinWindow(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockNotificationRepository()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	d := newTestDeduplicator(repo, &now)

	assert.True(t, d.ShouldSend(ctx, notification.TypeOrderReady, "42", "1001"))
	require.NoError(t, d.Record(ctx, notification.TypeOrderReady, "42", "1001", true, nil))

	now = now.Add(5 * time.Minute)
	assert.False(t, d.ShouldSend(ctx, notification.TypeOrderReady, "42", "1001"))

	now = now.Add(11 * time.Minute)
	assert.True(t, d.ShouldSend(ctx, notification.TypeOrderReady, "42", "1001"), "window expired")
}

func TestDeduplicator_FailedDeliveryDoesNotSuppress(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockNotificationRepository()
	now := time.Now()
	d := newTestDeduplicator(repo, &now)

	require.NoError(t, d.Record(ctx, notification.TypeAdminNewOrder, "7", "1", false, errors.New("boom")))
	assert.True(t, d.ShouldSend(ctx, notification.TypeAdminNewOrder, "7", "1"))

	records := repo.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	require.NotNil(t, records[0].ErrorMessage)
	assert.Equal(t, "boom", *records[0].ErrorMessage)
}

func TestDeduplicator_KeyIncludesEveryPart(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockNotificationRepository()
	now := time.Now()
	d := newTestDeduplicator(repo, &now)

	require.NoError(t, d.Record(ctx, notification.TypeOrderReady, "42", "1001", true, nil))

	assert.True(t, d.ShouldSend(ctx, notification.TypeOrderReady, "42", "1002"))
	assert.True(t, d.ShouldSend(ctx, notification.TypeOrderReady, "43", "1001"))
	assert.True(t, d.ShouldSend(ctx, notification.TypeOrderIssued, "42", "1001"))
}

func TestDeduplicator_LookupErrorFailsOpen(t *testing.T) {
	repo := testutil.NewMockNotificationRepository()
	repo.HasRecentSuccessFunc = func(ctx context.Context, hash string, since time.Time) (bool, error) {
		return false, errors.New("db down")
	}
	d := NewDeduplicator(repo, time.Minute, zerolog.Nop())

	assert.True(t, d.ShouldSend(context.Background(), notification.TypeSystemAlert, "x", "1"))
}

func TestDeduplicator_RecordError(t *testing.T) {
	repo := testutil.NewMockNotificationRepository()
	repo.InsertFunc = func(ctx context.Context, r *notification.Record) error {
		return errors.New("insert failed")
	}
	d := NewDeduplicator(repo, 0, zerolog.Nop())

	err := d.Record(context.Background(), notification.TypeOrderReady, "1", "2", true, nil)
	assert.ErrorContains(t, err, "insert failed")
	assert.Equal(t, DefaultDedupWindow, d.Window())
}

// ctxAwareRepo fails inserts on a dead context the way pgx does.
type ctxAwareRepo struct {
	*testutil.MockNotificationRepository
}

func (r ctxAwareRepo) Insert(ctx context.Context, rec *notification.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MockNotificationRepository.Insert(ctx, rec)
}

func TestDeduplicator_RecordOutlivesCancelledContext(t *testing.T) {
	repo := ctxAwareRepo{testutil.NewMockNotificationRepository()}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	d := newTestDeduplicator(repo, &now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Record(ctx, notification.TypeOrderReady, "42", "1001", true, nil))

	assert.Len(t, repo.Records(), 1)
	assert.False(t, d.ShouldSend(context.Background(), notification.TypeOrderReady, "42", "1001"))
}
