package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/felixhub/workshop/internal/breaker"
	domainerrors "github.com/felixhub/workshop/internal/domain/errors"
	"github.com/felixhub/workshop/internal/domain/notification"
	"github.com/felixhub/workshop/internal/infrastructure/observability"
	"github.com/felixhub/workshop/pkg/retry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// BreakerName is the registry key of the Bot API circuit breaker.
	BreakerName = "telegram"

	previewLength = 100
	maxErrorBody  = 64 << 10
)

// Message is one outbound chat message.
type Message struct {
	Text      string
	ParseMode string
	// SubjectID identifies the order or mechanic the message is about; logs only.
	SubjectID string
}

// DeadLetterSink receives messages abandoned after exhausting retries.
type DeadLetterSink interface {
	PublishDeadLetter(ctx context.Context, dl notification.DeadLetter) error
}

type Options struct {
	Token          string
	BaseURL        string
	ParseMode      string
	RequestTimeout time.Duration
	Retry          retry.Config
	// HTTPClient overrides the default client built from RequestTimeout.
	HTTPClient *http.Client
}

// Client delivers messages through the Telegram Bot API.
type Client struct {
	token       string
	baseURL     string
	parseMode   string
	http        *http.Client
	retry       retry.Config
	breaker     *breaker.Breaker
	deadLetters DeadLetterSink
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

func NewClient(
	opts Options,
	b *breaker.Breaker,
	deadLetters DeadLetterSink,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	rc := opts.Retry
	if rc.MaxAttempts == 0 {
		rc = retry.DefaultConfig()
	}

	return &Client{
		token:       strings.TrimSpace(opts.Token),
		baseURL:     baseURL,
		parseMode:   opts.ParseMode,
		http:        httpClient,
		retry:       rc,
		breaker:     b,
		deadLetters: deadLetters,
		metrics:     metrics,
		logger:      logger.With().Str("component", "telegram").Logger(),
	}
}

// Configured reports whether a bot token is present.
func (c *Client) Configured() bool {
	return c.token != ""
}

// Send delivers msg to recipient. ok is true only when the API accepted the
// message. A false ok is always accompanied by an error describing why:
// errors.ErrNotConfigured, ErrInvalidRecipient, ErrCircuitOpen,
// ErrPermanentDelivery or ErrRetriesExhausted. Exhausted messages are
// dead-lettered before Send returns.
func (c *Client) Send(ctx context.Context, recipient string, msg Message) (ok bool, err error) {
	ctx, _ = observability.NewCorrelation(ctx)
	recipient = strings.TrimSpace(recipient)
	logger := observability.LoggerFrom(ctx, c.logger).With().
		Str("recipient", recipient).
		Str("subject_id", msg.SubjectID).
		Logger()

	if !c.Configured() {
		logger.Error().Msg("Bot token not configured, message not sent")
		c.metrics.DeliveryAttempts.WithLabelValues("not_configured").Inc()
		return false, domainerrors.ErrNotConfigured
	}
	if recipient == "" {
		logger.Error().Msg("Empty recipient, message not sent")
		c.metrics.DeliveryAttempts.WithLabelValues("invalid_recipient").Inc()
		return false, domainerrors.ErrInvalidRecipient
	}
	if c.breaker.IsOpen() {
		logger.Warn().Msg("Circuit open, message not sent")
		c.metrics.DeliveryAttempts.WithLabelValues("circuit_open").Inc()
		return false, fmt.Errorf("%s: %w", BreakerName, domainerrors.ErrCircuitOpen)
	}

	ctx, span := observability.Tracer().Start(ctx, "telegram.send_message")
	defer span.End()
	span.SetAttributes(attribute.String("telegram.recipient", recipient))

	start := time.Now()
	var attempts uint

	cfg := c.retry
	cfg.OnRetry = func(n uint, delay time.Duration, err error) {
		c.metrics.DeliveryRetries.Inc()
		logger.Warn().
			Err(err).
			Uint("attempt", n+1).
			Uint("max_attempts", cfg.MaxAttempts).
			Dur("retry_in", delay).
			Msg("Delivery attempt failed, retrying")
	}

	err = retry.Do(ctx, cfg, func() error {
		attempts++
		var callErr error
		attempted, gateErr := c.breaker.Call(func() error {
			callErr = c.sendMessage(ctx, recipient, msg)
			// A rejected request says nothing about the health of the API.
			if IsClientError(callErr) {
				return nil
			}
			return callErr
		})
		if !attempted {
			c.metrics.DeliveryAttempts.WithLabelValues("circuit_open").Inc()
			return retry.Permanent(gateErr)
		}
		if callErr == nil {
			c.metrics.DeliveryAttempts.WithLabelValues("success").Inc()
			return nil
		}

		c.metrics.DeliveryAttempts.WithLabelValues(attemptResult(callErr)).Inc()
		if IsClientError(callErr) {
			return retry.Permanent(callErr)
		}
		return callErr
	})

	elapsed := time.Since(start)
	switch {
	case err == nil:
		c.metrics.DeliveryDuration.WithLabelValues("success").Observe(elapsed.Seconds())
		logger.Info().Uint("attempts", attempts).Dur("elapsed", elapsed).Msg("Message delivered")
		return true, nil

	case IsClientError(err):
		c.metrics.DeliveryDuration.WithLabelValues("rejected").Observe(elapsed.Seconds())
		span.SetStatus(codes.Error, "rejected")
		logger.Error().Err(err).Str("preview", observability.Preview(msg.Text, previewLength)).Msg("Message rejected by API, not retrying")
		return false, fmt.Errorf("%w: %v", domainerrors.ErrPermanentDelivery, err)

	default:
		c.metrics.DeliveryDuration.WithLabelValues("dead_letter").Observe(elapsed.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "dead letter")
		c.deadLetter(ctx, logger, recipient, msg, attempts, err)
		return false, fmt.Errorf("%w after %d attempts: %w", domainerrors.ErrRetriesExhausted, attempts, err)
	}
}

// AnswerCallback acknowledges a callback query so the client stops its
// progress indicator. It is a single attempt gated by the breaker.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if !c.Configured() {
		return domainerrors.ErrNotConfigured
	}
	var callErr error
	attempted, err := c.breaker.Call(func() error {
		callErr = c.call(ctx, "answerCallbackQuery", map[string]string{"callback_query_id": callbackID})
		if IsClientError(callErr) {
			return nil
		}
		return callErr
	})
	if !attempted {
		return err
	}
	return callErr
}

func (c *Client) deadLetter(ctx context.Context, logger zerolog.Logger, recipient string, msg Message, attempts uint, cause error) {
	dl := notification.DeadLetter{
		CorrelationID: observability.CorrelationID(ctx),
		RecipientID:   recipient,
		SubjectID:     msg.SubjectID,
		Attempts:      attempts,
		LastError:     cause.Error(),
		Preview:       observability.Preview(msg.Text, previewLength),
		FailedAt:      time.Now().UTC(),
	}

	c.metrics.DeadLettersTotal.Inc()
	logger.Error().
		Str("event", "DEAD_LETTER").
		Uint("attempts", attempts).
		Str("last_error", dl.LastError).
		Str("preview", dl.Preview).
		Msg("DEAD_LETTER: message abandoned after exhausting retries")

	if c.deadLetters == nil {
		return
	}
	// The caller's context may already be cancelled; the record must still land.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.deadLetters.PublishDeadLetter(sinkCtx, dl); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish dead letter")
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func (c *Client) sendMessage(ctx context.Context, recipient string, msg Message) error {
	parseMode := msg.ParseMode
	if parseMode == "" {
		parseMode = c.parseMode
	}
	return c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:                recipient,
		Text:                  msg.Text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
	})
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal %s request: %w", method, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build %s request: %w", method, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the bot token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}

	apiErr := &APIError{Method: method, StatusCode: resp.StatusCode}
	var parsed apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&parsed); err == nil {
		apiErr.Description = parsed.Description
		if parsed.Parameters != nil {
			apiErr.RetryAfterSeconds = parsed.Parameters.RetryAfter
		}
	}
	if apiErr.RetryAfterSeconds == 0 {
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			apiErr.RetryAfterSeconds = s
		}
	}
	return apiErr
}

// APIError is a non-200 response from the Bot API.
type APIError struct {
	Method            string
	StatusCode        int
	Description       string
	RetryAfterSeconds int
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram %s: status %d", e.Method, e.StatusCode)
}

// RetryAfter returns the server-requested wait of a 429 response.
func (e *APIError) RetryAfter() (time.Duration, bool) {
	if e.StatusCode != http.StatusTooManyRequests || e.RetryAfterSeconds <= 0 {
		return 0, false
	}
	return time.Duration(e.RetryAfterSeconds) * time.Second, true
}

// IsClientError reports whether err is a 4xx response other than 429.
func IsClientError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
}

func attemptResult(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limited"
		case apiErr.StatusCode >= 500:
			return "server_error"
		default:
			return "client_error"
		}
	}
	return "network_error"
}
