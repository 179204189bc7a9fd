package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogger("warn", &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("bogus"))
}

func TestCorrelation_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationID(ctx))

	ctx = WithCorrelationID(ctx, "abc-123")
	assert.Equal(t, "abc-123", CorrelationID(ctx))

	same, id := NewCorrelation(ctx)
	assert.Equal(t, "abc-123", id)
	assert.Equal(t, ctx, same)
}

func TestNewCorrelation_Generates(t *testing.T) {
	ctx, id := NewCorrelation(context.Background())
	require.NotEmpty(t, id)
	assert.Equal(t, id, CorrelationID(ctx))

	_, other := NewCorrelation(context.Background())
	assert.NotEqual(t, id, other)
}

func TestLoggerFrom_AddsCorrelationField(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithCorrelationID(context.Background(), "corr-1")
	logger := LoggerFrom(ctx, base)
	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "corr-1", line["correlation_id"])
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 10))
	assert.Equal(t, "abc...", Preview("abcdef", 3))
	assert.Equal(t, "Зака...", Preview("Заказ готов", 4))
	assert.Equal(t, "", Preview("anything", 0))
}

func TestNewMetrics_RegistersOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.NotificationsTotal.WithLabelValues("order_ready", "success").Inc()
	m.DeadLettersTotal.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("order_ready", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DeadLettersTotal))

	// a second registry must accept the same set
	assert.NotPanics(t, func() { NewMetrics("test", prometheus.NewRegistry()) })
}
