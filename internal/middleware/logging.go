package middleware

import (
	"net/http"
	"time"

	"github.com/felixhub/workshop/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// RequestLogger writes one structured line per request. Health checks and
// scrapes are logged at debug level.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			l := observability.LoggerFrom(r.Context(), logger)
			event := l.Info()
			switch {
			case ww.statusCode >= http.StatusInternalServerError:
				event = l.Error()
			case isHealthCheck(r.URL.Path):
				event = l.Debug()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routeLabel(r)).
				Int("status", ww.statusCode).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("http request")
		})
	}
}

func isHealthCheck(path string) bool {
	switch path {
	case "/health", "/health/live", "/health/ready", "/metrics":
		return true
	}
	return false
}
