package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	domainerrors "github.com/felixhub/workshop/internal/domain/errors"
)

// Update is one inbound event pushed to the webhook.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *InMessage     `json:"message,omitempty"`
	EditedMessage *InMessage     `json:"edited_message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type InMessage struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

type CallbackQuery struct {
	ID      string     `json:"id"`
	From    User       `json:"from"`
	Message *InMessage `json:"message,omitempty"`
	Data    string     `json:"data,omitempty"`
}

// ParseUpdate decodes a webhook body. An empty body, malformed JSON or a
// body that is not a JSON object yields errors.ErrInvalidPayload. The
// update_id is optional.
func ParseUpdate(raw []byte) (*Update, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", domainerrors.ErrInvalidPayload)
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body is not a JSON object", domainerrors.ErrInvalidPayload)
	}

	var u Update
	if err := json.Unmarshal(trimmed, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
	}
	return &u, nil
}

// EventID is the dedup key of the update, or "" when it carries no id.
func (u *Update) EventID() string {
	if u.UpdateID == 0 {
		return ""
	}
	return strconv.FormatInt(u.UpdateID, 10)
}

// Kind names the update payload for logs and metrics.
func (u *Update) Kind() string {
	switch {
	case u.Message != nil:
		return "message"
	case u.EditedMessage != nil:
		return "edited_message"
	case u.CallbackQuery != nil:
		return "callback_query"
	default:
		return "other"
	}
}

// ChatID returns the chat the update came from, if any.
func (u *Update) ChatID() (string, bool) {
	switch {
	case u.Message != nil:
		return strconv.FormatInt(u.Message.Chat.ID, 10), true
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return strconv.FormatInt(u.CallbackQuery.Message.Chat.ID, 10), true
	case u.CallbackQuery != nil:
		return strconv.FormatInt(u.CallbackQuery.From.ID, 10), true
	default:
		return "", false
	}
}

// SenderID returns the Telegram user id of the update's author.
func (u *Update) SenderID() (string, bool) {
	switch {
	case u.Message != nil && u.Message.From != nil:
		return strconv.FormatInt(u.Message.From.ID, 10), true
	case u.CallbackQuery != nil:
		return strconv.FormatInt(u.CallbackQuery.From.ID, 10), true
	default:
		return "", false
	}
}
