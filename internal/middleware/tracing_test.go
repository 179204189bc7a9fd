package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder() (*tracetest.SpanRecorder, otelhttp.Option) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return rec, otelhttp.WithTracerProvider(tp)
}

func TestTracing_Success(t *testing.T) {
	rec, opt := newRecorder()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	wrappedHandler := Tracing(opt)(handler)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, "GET /test", rec.Ended()[0].Name())
}

func TestTracing_WithChiRoutePattern(t *testing.T) {
	rec, opt := newRecorder()
	r := chi.NewRouter()
	r.Use(Tracing(opt))
	r.Get("/api/v1/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/v1/orders/123", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, "GET /api/v1/orders/{id}", rec.Ended()[0].Name())
}

func TestTracing_SubrouterBehindContextMiddleware(t *testing.T) {
	rec, opt := newRecorder()
	r := chi.NewRouter()
	r.Use(Tracing(opt))
	r.Use(chimw.Timeout(time.Second))
	r.Route("/api/v1", func(r chi.Router) {
		r.Patch("/orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PATCH", "/api/v1/orders/9/status", nil))

	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, "PATCH /api/v1/orders/{id}/status", rec.Ended()[0].Name())
}

func TestTracing_RecordsCorrelationID(t *testing.T) {
	rec, opt := newRecorder()
	r := chi.NewRouter()
	r.Use(Correlation())
	r.Use(Tracing(opt))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(HeaderCorrelationID, "corr-77")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, rec.Ended(), 1)
	assert.Contains(t, rec.Ended()[0].Attributes(), attribute.String("correlation_id", "corr-77"))
}

func TestTracing_PreservesResponseStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"200 OK", http.StatusOK},
		{"202 Accepted", http.StatusAccepted},
		{"400 Bad Request", http.StatusBadRequest},
		{"503 Service Unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, opt := newRecorder()
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			req := httptest.NewRequest("POST", "/webhook", nil)
			w := httptest.NewRecorder()

			Tracing(opt)(handler).ServeHTTP(w, req)

			assert.Equal(t, tt.statusCode, w.Code)
		})
	}
}

func TestTracing_PreservesResponseBody(t *testing.T) {
	_, opt := newRecorder()
	expectedBody := `{"ok":true}`

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(expectedBody))
	})

	req := httptest.NewRequest("POST", "/webhook", nil)
	w := httptest.NewRecorder()

	Tracing(opt)(handler).ServeHTTP(w, req)

	assert.Equal(t, expectedBody, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}
