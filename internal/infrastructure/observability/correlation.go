package observability

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type correlationKey struct{}

// WithCorrelationID stores id in ctx. An empty id leaves ctx unchanged.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// NewCorrelation returns ctx carrying a correlation id, generating one when
// ctx has none yet.
func NewCorrelation(ctx context.Context) (context.Context, string) {
	if id := CorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithCorrelationID(ctx, id), id
}

func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// LoggerFrom returns base enriched with the correlation id of ctx, if any.
func LoggerFrom(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	id := CorrelationID(ctx)
	if id == "" {
		return base
	}
	return base.With().Str("correlation_id", id).Logger()
}
