package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(Correlation())
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.Get("/api/v1/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/9", nil)
	req.Header.Set(HeaderCorrelationID, "corr-5")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "/api/v1/orders/{id}", line["route"])
	assert.Equal(t, float64(404), line["status"])
	assert.Equal(t, "corr-5", line["correlation_id"])
}

func TestRequestLogger_ServerErrorsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook/telegram", nil))

	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestRequestLogger_HealthChecksAtDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Empty(t, buf.String())
}
