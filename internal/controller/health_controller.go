package controller

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// BridgeStatus reports whether the webhook worker is accepting updates.
type BridgeStatus interface {
	Running() bool
}

type HealthController struct {
	database Pinger
	redis    Pinger
	bridge   BridgeStatus
}

func NewHealthController(database, redis Pinger, bridge BridgeStatus) *HealthController {
	return &HealthController{database: database, redis: redis, bridge: bridge}
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness fails on the first unavailable dependency.
func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.database != nil {
		if err := h.database.Ping(ctx); err != nil {
			notReady(w, "database unavailable")
			return
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			notReady(w, "redis unavailable")
			return
		}
	}

	if h.bridge != nil && !h.bridge.Running() {
		notReady(w, "webhook worker not running")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func notReady(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status": "not ready",
		"reason": reason,
	})
}
