package service

import (
	"context"
	"fmt"
	"time"

	"github.com/felixhub/workshop/internal/domain/notification"
	"github.com/rs/zerolog"
)

// DefaultDedupWindow is used when no window is configured.
const DefaultDedupWindow = 15 * time.Minute

const recordTimeout = 5 * time.Second

// Deduplicator suppresses repeats of an outbound notification that already
// succeeded within the trailing window. Two concurrent sends of the same key
// may both pass ShouldSend; the guard is best-effort.
type Deduplicator struct {
	repo   notification.Repository
	window time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func NewDeduplicator(repo notification.Repository, window time.Duration, logger zerolog.Logger) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Deduplicator{
		repo:   repo,
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// Window returns the configured dedup window.
func (d *Deduplicator) Window() time.Duration {
	return d.window
}

// ShouldSend reports whether the notification has not been delivered yet
// within the window. A lookup failure lets the send through.
func (d *Deduplicator) ShouldSend(ctx context.Context, t notification.Type, subjectID, recipientID string) bool {
	hash := notification.ContentHash(t, subjectID, recipientID)
	since := d.now().UTC().Add(-d.window)

	found, err := d.repo.HasRecentSuccess(ctx, hash, since)
	if err != nil {
		d.logger.Warn().Err(err).
			Str("type", string(t)).
			Str("subject_id", subjectID).
			Msg("dedup lookup failed, sending anyway")
		return true
	}
	return !found
}

// Record persists the outcome of one delivery, successful or not. It is
// written even when ctx was cancelled after the send.
func (d *Deduplicator) Record(ctx context.Context, t notification.Type, subjectID, recipientID string, success bool, sendErr error) error {
	rec := notification.NewRecord(t, subjectID, recipientID, success, sendErr)
	rec.SentAt = d.now().UTC()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := d.repo.Insert(ctx, rec); err != nil {
		return fmt.Errorf("record notification outcome: %w", err)
	}
	return nil
}
