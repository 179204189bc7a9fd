package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/felixhub/workshop/internal/domain/errors"
	"github.com/felixhub/workshop/internal/infrastructure/observability"
	"github.com/felixhub/workshop/internal/infrastructure/telegram"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler processes one update on the bridge worker.
type Handler func(ctx context.Context, u *telegram.Update) error

type Options struct {
	QueueSize      int
	Concurrency    int
	ReadyTimeout   time.Duration
	DrainTimeout   time.Duration
	HandlerTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		QueueSize:      256,
		Concurrency:    8,
		ReadyTimeout:   5 * time.Second,
		DrainTimeout:   15 * time.Second,
		HandlerTimeout: 30 * time.Second,
	}
}

// Ack is returned to the webhook caller before the update is handled.
type Ack struct {
	OK        bool `json:"ok"`
	Duplicate bool `json:"duplicate,omitempty"`
}

type task struct {
	update        *telegram.Update
	eventID       string
	correlationID string
	enqueuedAt    time.Time
}

// Bridge acknowledges inbound updates synchronously and hands them to a
// long-lived background worker over a bounded queue.
type Bridge struct {
	handler   Handler
	processed *ProcessedSet
	opts      Options
	metrics   *observability.Metrics
	logger    zerolog.Logger

	mu      sync.RWMutex
	running bool
	queue   chan task
	done    chan struct{}
}

func NewBridge(
	handler Handler,
	processed *ProcessedSet,
	opts Options,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Bridge {
	defaults := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaults.ReadyTimeout
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaults.DrainTimeout
	}
	return &Bridge{
		handler:   handler,
		processed: processed,
		opts:      opts,
		metrics:   metrics,
		logger:    logger.With().Str("component", "webhook_bridge").Logger(),
	}
}

// Start launches the worker and waits until it is ready to take updates.
// Calling Start on a running bridge is a no-op.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	queue := make(chan task, b.opts.QueueSize)
	done := make(chan struct{})
	ready := make(chan struct{})
	go b.run(queue, ready, done)

	select {
	case <-ready:
	case <-time.After(b.opts.ReadyTimeout):
		close(queue)
		return fmt.Errorf("webhook worker not ready after %s", b.opts.ReadyTimeout)
	}

	b.queue = queue
	b.done = done
	b.running = true
	b.logger.Info().
		Int("queue_size", b.opts.QueueSize).
		Int("concurrency", b.opts.Concurrency).
		Msg("webhook bridge started")
	return nil
}

// Running reports whether updates are currently accepted.
func (b *Bridge) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// HandleIncomingUpdate parses raw, suppresses redeliveries and enqueues the
// update. It returns as soon as the update is queued.
func (b *Bridge) HandleIncomingUpdate(ctx context.Context, raw []byte) (Ack, error) {
	ctx, correlationID := observability.NewCorrelation(ctx)
	logger := observability.LoggerFrom(ctx, b.logger)

	u, err := telegram.ParseUpdate(raw)
	if err != nil {
		b.metrics.WebhookUpdatesTotal.WithLabelValues("invalid").Inc()
		logger.Warn().Err(err).Msg("rejecting webhook payload")
		return Ack{}, err
	}

	eventID := u.EventID()
	logger = logger.With().Str("event_id", eventID).Str("kind", u.Kind()).Logger()

	// Claim before enqueueing so a redelivery during processing is also caught.
	// Updates without an id cannot be deduplicated and are always processed.
	claimed := eventID != ""
	if claimed && !b.processed.Claim(eventID) {
		b.metrics.WebhookUpdatesTotal.WithLabelValues("duplicate").Inc()
		logger.Info().Msg("duplicate update acknowledged")
		return Ack{OK: true, Duplicate: true}, nil
	}

	if err := b.enqueue(task{
		update:        u,
		eventID:       eventID,
		correlationID: correlationID,
		enqueuedAt:    time.Now(),
	}); err != nil {
		if claimed {
			b.processed.Release(eventID)
		}
		b.metrics.WebhookUpdatesTotal.WithLabelValues("rejected").Inc()
		logger.Error().Err(err).Msg("failed to enqueue update")
		return Ack{}, err
	}

	b.metrics.WebhookUpdatesTotal.WithLabelValues("accepted").Inc()
	logger.Debug().Msg("update queued")
	return Ack{OK: true}, nil
}

func (b *Bridge) enqueue(t task) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.running {
		return domainErrors.ErrBridgeNotRunning
	}
	select {
	case b.queue <- t:
		b.metrics.WebhookQueueDepth.Inc()
		return nil
	default:
		return domainErrors.ErrQueueFull
	}
}

func (b *Bridge) run(queue <-chan task, ready, done chan<- struct{}) {
	defer close(done)

	var g errgroup.Group
	g.SetLimit(b.opts.Concurrency)
	close(ready)

	for t := range queue {
		b.metrics.WebhookQueueDepth.Dec()
		g.Go(func() error {
			b.process(t)
			return nil
		})
	}
	_ = g.Wait()
}

// process runs the handler and logs its outcome. Failures end here.
func (b *Bridge) process(t task) {
	ctx := observability.WithCorrelationID(context.Background(), t.correlationID)
	if b.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.HandlerTimeout)
		defer cancel()
	}

	logger := observability.LoggerFrom(ctx, b.logger).With().
		Str("event_id", t.eventID).
		Str("kind", t.update.Kind()).
		Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			b.metrics.WebhookHandlerDuration.WithLabelValues("panic").Observe(time.Since(start).Seconds())
			logger.Error().Interface("panic", r).Msg("update handler panicked")
		}
	}()

	err := b.handler(ctx, t.update)
	elapsed := time.Since(start)

	if err != nil {
		b.metrics.WebhookHandlerDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		logger.Error().Err(err).
			Dur("duration", elapsed).
			Dur("queued", start.Sub(t.enqueuedAt)).
			Msg("update handler failed")
		return
	}
	b.metrics.WebhookHandlerDuration.WithLabelValues("success").Observe(elapsed.Seconds())
	logger.Info().
		Dur("duration", elapsed).
		Dur("queued", start.Sub(t.enqueuedAt)).
		Msg("update handled")
}

// Close stops accepting updates and waits for queued and in-flight ones,
// bounded by DrainTimeout and ctx. The processed-id set is cleared either way.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		b.processed.Clear()
		return nil
	}
	b.running = false
	close(b.queue)
	done := b.done
	b.mu.Unlock()

	defer b.processed.Clear()

	timer := time.NewTimer(b.opts.DrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
		b.logger.Info().Msg("webhook bridge drained")
		return nil
	case <-timer.C:
		b.logger.Error().Dur("timeout", b.opts.DrainTimeout).Msg("webhook bridge drain timed out")
		return fmt.Errorf("drain webhook bridge: %w", context.DeadlineExceeded)
	case <-ctx.Done():
		b.logger.Error().Err(ctx.Err()).Msg("webhook bridge drain interrupted")
		return fmt.Errorf("drain webhook bridge: %w", ctx.Err())
	}
}

// IsUnavailable reports whether err means the bridge cannot take work now.
func IsUnavailable(err error) bool {
	return errors.Is(err, domainErrors.ErrBridgeNotRunning) || errors.Is(err, domainErrors.ErrQueueFull)
}
