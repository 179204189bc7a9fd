package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/felixhub/workshop/internal/domain/notification"
	"github.com/redis/go-redis/v9"
)

const (
	DeadLetterStream = "notifications:dead_letter"

	// deadLetterMaxLen bounds the stream; older entries are trimmed.
	deadLetterMaxLen = 10000
)

// StreamProducer publishes undeliverable messages to a Redis stream so they
// survive process restarts and can be inspected from the monitoring API.
type StreamProducer struct {
	client redis.StreamCmdable
}

func NewStreamProducer(client redis.StreamCmdable) *StreamProducer {
	return &StreamProducer{client: client}
}

func (p *StreamProducer) PublishDeadLetter(ctx context.Context, dl notification.DeadLetter) error {
	args := &redis.XAddArgs{
		Stream: DeadLetterStream,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		Values: map[string]any{
			"correlation_id": dl.CorrelationID,
			"recipient_id":   dl.RecipientID,
			"subject_id":     dl.SubjectID,
			"attempts":       dl.Attempts,
			"last_error":     dl.LastError,
			"preview":        dl.Preview,
			"timestamp":      dl.FailedAt.Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}
	return nil
}

// RecentDeadLetters returns up to count dead letters, newest first.
func (p *StreamProducer) RecentDeadLetters(ctx context.Context, count int64) ([]notification.DeadLetter, error) {
	msgs, err := p.client.XRevRangeN(ctx, DeadLetterStream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}

	out := make([]notification.DeadLetter, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, decodeDeadLetter(m.Values))
	}
	return out, nil
}

func decodeDeadLetter(v map[string]any) notification.DeadLetter {
	str := func(k string) string {
		s, _ := v[k].(string)
		return s
	}
	dl := notification.DeadLetter{
		CorrelationID: str("correlation_id"),
		RecipientID:   str("recipient_id"),
		SubjectID:     str("subject_id"),
		LastError:     str("last_error"),
		Preview:       str("preview"),
	}
	if n, err := strconv.ParseUint(str("attempts"), 10, 32); err == nil {
		dl.Attempts = uint(n)
	}
	if ts, err := strconv.ParseInt(str("timestamp"), 10, 64); err == nil {
		dl.FailedAt = time.Unix(ts, 0).UTC()
	}
	return dl
}
