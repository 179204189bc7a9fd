package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/felixhub/workshop/internal/domain/outbox"
	"github.com/felixhub/workshop/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

const (
	outboxStream = "outbox"

	// DefaultClaimLease bounds how long a crashed worker keeps entries from
	// other replicas.
	DefaultClaimLease = 5 * time.Minute

	markTimeout = 5 * time.Second
)

// Dispatcher turns one outbox entry into its side effects.
type Dispatcher interface {
	Dispatch(ctx context.Context, e *outbox.Entry) error
}

// OutboxProcessor polls pending outbox entries and hands them to a
// Dispatcher. Entries are leased by a single claim statement and dispatched
// outside any transaction, so several workers can run side by side and a
// failed batch never undoes what was already delivered.
type OutboxProcessor struct {
	outboxRepo outbox.Repository
	dispatcher Dispatcher
	batchSize  int
	interval   time.Duration
	lease      time.Duration
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewOutboxProcessor(
	outboxRepo outbox.Repository,
	dispatcher Dispatcher,
	batchSize int,
	interval time.Duration,
	lease time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *OutboxProcessor {
	if batchSize <= 0 {
		batchSize = 10
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &OutboxProcessor{
		outboxRepo: outboxRepo,
		dispatcher: dispatcher,
		batchSize:  batchSize,
		interval:   interval,
		lease:      lease,
		metrics:    metrics,
		logger:     logger.With().Str("component", "outbox_processor").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxProcessor) Run(ctx context.Context) error {
	p.logger.Info().
		Dur("interval", p.interval).
		Int("batch_size", p.batchSize).
		Msg("outbox processor started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("outbox processor stopped")
			return nil
		case <-ticker.C:
		}

		if _, err := p.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("outbox batch failed")
		}
	}
}

// ProcessBatch dispatches up to one batch of pending entries and returns how
// many were handled. A dispatch error marks the entry failed, which returns
// it to pending until its retries run out. When ctx ends mid-batch the
// remaining entries are released for the next claim.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	entries, err := p.outboxRepo.ClaimPending(ctx, p.batchSize, p.lease)
	if err != nil {
		return 0, fmt.Errorf("claim pending outbox entries: %w", err)
	}

	handled := 0
	for i, entry := range entries {
		if ctx.Err() != nil {
			p.release(ctx, entries[i:])
			return handled, ctx.Err()
		}
		if err := p.process(ctx, entry); err != nil {
			return handled, err
		}
		handled++
	}
	return handled, nil
}

func (p *OutboxProcessor) process(ctx context.Context, entry *outbox.Entry) error {
	logger := p.logger.With().
		Str("outbox_id", entry.ID.String()).
		Str("event_type", entry.EventType).
		Str("aggregate_id", entry.AggregateID).
		Logger()
	start := time.Now()
	defer func() {
		p.metrics.WorkerProcessingDuration.WithLabelValues(outboxStream).Observe(time.Since(start).Seconds())
	}()

	dispatchErr := p.dispatcher.Dispatch(ctx, entry)

	// The outcome is stored even if ctx ended during the dispatch.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()

	if dispatchErr != nil {
		p.metrics.WorkerMessagesProcessed.WithLabelValues(outboxStream, "failed").Inc()
		logger.Error().Err(dispatchErr).Int("retry_count", entry.RetryCount).Msg("outbox dispatch failed")
		if err := p.outboxRepo.MarkFailed(markCtx, entry.ID); err != nil {
			return fmt.Errorf("mark outbox entry %s failed: %w", entry.ID, err)
		}
		return nil
	}

	if err := p.outboxRepo.MarkPublished(markCtx, entry.ID); err != nil {
		return fmt.Errorf("mark outbox entry %s published: %w", entry.ID, err)
	}
	p.metrics.WorkerMessagesProcessed.WithLabelValues(outboxStream, "success").Inc()
	logger.Debug().Msg("outbox entry dispatched")
	return nil
}

func (p *OutboxProcessor) release(ctx context.Context, entries []*outbox.Entry) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	for _, entry := range entries {
		if err := p.outboxRepo.Release(releaseCtx, entry.ID); err != nil {
			p.logger.Warn().Err(err).Str("outbox_id", entry.ID.String()).Msg("failed to release outbox entry")
		}
	}
}
