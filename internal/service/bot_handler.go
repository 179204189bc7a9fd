package service

import (
	"context"
	"strings"

	"github.com/felixhub/workshop/internal/domain/order"
	"github.com/felixhub/workshop/internal/infrastructure/observability"
	"github.com/felixhub/workshop/internal/infrastructure/telegram"
	"github.com/rs/zerolog"
)

const (
	callbackMyOrders = "my_orders"
	botOrdersLimit   = 5
)

// BotClient is the chat surface used to answer inbound updates.
type BotClient interface {
	MessageSender
	AnswerCallback(ctx context.Context, callbackID string) error
}

// BotHandler answers bot commands and button presses.
type BotHandler struct {
	client    BotClient
	orderRepo order.Repository
	logger    zerolog.Logger
}

func NewBotHandler(client BotClient, orderRepo order.Repository, logger zerolog.Logger) *BotHandler {
	return &BotHandler{
		client:    client,
		orderRepo: orderRepo,
		logger:    logger,
	}
}

// Handle processes one update. It runs on the webhook bridge worker, so the
// returned error only reaches the completion log.
func (h *BotHandler) Handle(ctx context.Context, u *telegram.Update) error {
	logger := observability.LoggerFrom(ctx, h.logger)

	switch {
	case u.CallbackQuery != nil:
		return h.handleCallback(ctx, u)
	case u.Message != nil:
		return h.handleMessage(ctx, u)
	default:
		logger.Debug().Str("kind", u.Kind()).Msg("ignoring update")
		return nil
	}
}

func (h *BotHandler) handleMessage(ctx context.Context, u *telegram.Update) error {
	chatID, _ := u.ChatID()

	switch command(u.Message.Text) {
	case "/start", "/help":
		return h.reply(ctx, chatID, renderHelp())
	case "/myorders":
		senderID, ok := u.SenderID()
		if !ok {
			senderID = chatID
		}
		return h.replyOrders(ctx, chatID, senderID)
	default:
		return h.reply(ctx, chatID, renderUnknownCommand())
	}
}

func (h *BotHandler) handleCallback(ctx context.Context, u *telegram.Update) error {
	cb := u.CallbackQuery
	logger := observability.LoggerFrom(ctx, h.logger)
	if err := h.client.AnswerCallback(ctx, cb.ID); err != nil {
		logger.Warn().Err(err).Msg("failed to answer callback query")
	}

	if cb.Data != callbackMyOrders {
		logger.Debug().Str("data", cb.Data).Msg("unknown callback data")
		return nil
	}
	chatID, _ := u.ChatID()
	senderID, _ := u.SenderID()
	return h.replyOrders(ctx, chatID, senderID)
}

func (h *BotHandler) replyOrders(ctx context.Context, chatID, telegramID string) error {
	orders, err := h.orderRepo.ListByTelegramID(ctx, telegramID, botOrdersLimit)
	if err != nil {
		return err
	}
	return h.reply(ctx, chatID, renderOrderList(orders))
}

func (h *BotHandler) reply(ctx context.Context, chatID, text string) error {
	ok, err := h.client.Send(ctx, chatID, telegram.Message{Text: text})
	if !ok {
		return err
	}
	return nil
}

// command extracts "/cmd" from "/cmd@BotName args".
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}
