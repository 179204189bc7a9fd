package middleware

import (
	"net/http"

	"github.com/felixhub/workshop/internal/infrastructure/observability"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
)

// Correlation seeds the request context with a correlation id taken from
// X-Correlation-ID, X-Request-ID or chi's request id, in that order, and
// echoes it back. A fresh id is generated when none is present.
func Correlation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderCorrelationID)
			if id == "" {
				id = r.Header.Get(HeaderRequestID)
			}
			if id == "" {
				id = chimw.GetReqID(r.Context())
			}

			ctx := observability.WithCorrelationID(r.Context(), id)
			ctx, id = observability.NewCorrelation(ctx)

			w.Header().Set(HeaderCorrelationID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
