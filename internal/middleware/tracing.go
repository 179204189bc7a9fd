package middleware

import (
	"net/http"

	"github.com/felixhub/workshop/internal/infrastructure/observability"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request. The span is renamed to
// "METHOD /route/{pattern}" once chi has matched the route, which keeps span
// names low-cardinality. opts are passed through to otelhttp.
//
// otelhttp renames the span through the formatter after the handler returns
// whenever the request carries a matched pattern, so the formatter resolves
// the chi route as well.
func Tracing(opts ...otelhttp.Option) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			span := trace.SpanFromContext(r.Context())
			span.SetName(spanName(r))
			if id := observability.CorrelationID(r.Context()); id != "" {
				span.SetAttributes(attribute.String("correlation_id", id))
			}
		})
		return otelhttp.NewHandler(named, "http.server", append([]otelhttp.Option{
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return spanName(r)
			}),
		}, opts...)...)
	}
}

func spanName(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return r.Method + " " + r.URL.Path
}
