package controller

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	domainErrors "github.com/felixhub/workshop/internal/domain/errors"
	"github.com/felixhub/workshop/internal/webhook"
	"github.com/rs/zerolog"
)

const (
	// SecretTokenHeader carries the secret registered with setWebhook.
	SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

	maxWebhookBody = 1 << 20
)

// UpdateBridge accepts raw updates for asynchronous handling.
type UpdateBridge interface {
	HandleIncomingUpdate(ctx context.Context, raw []byte) (webhook.Ack, error)
}

type WebhookController struct {
	bridge UpdateBridge
	secret string
	logger zerolog.Logger
}

// NewWebhookController builds the Telegram webhook endpoint. An empty secret
// skips the header check.
func NewWebhookController(bridge UpdateBridge, secret string, logger zerolog.Logger) *WebhookController {
	return &WebhookController{bridge: bridge, secret: secret, logger: logger}
}

// Receive acknowledges an update as soon as it is queued. Handling happens on
// the bridge worker and never changes this response.
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	if h.bridge == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "webhook bridge not initialized",
			Code:  "not_initialized",
		})
		return
	}

	if h.secret != "" {
		got := r.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("webhook secret mismatch")
			writeError(w, r, h.logger, domainErrors.ErrUnauthorizedSource)
			return
		}
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, h.logger, domainErrors.ErrInvalidPayload)
		return
	}

	ack, err := h.bridge.HandleIncomingUpdate(r.Context(), raw)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}
