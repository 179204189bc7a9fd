package telegram

import (
	"testing"

	domainerrors "github.com/felixhub/workshop/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUpdate(t *testing.T) {
	u, err := ParseUpdate([]byte(`{"update_id":42,"callback_query":{"id":"cb","from":{"id":7},"data":"my_orders"}}`))
	require.NoError(t, err)
	assert.Equal(t, "42", u.EventID())
	assert.Equal(t, "callback_query", u.Kind())

	chatID, ok := u.ChatID()
	assert.True(t, ok)
	assert.Equal(t, "7", chatID)
}

func TestParseUpdate_WithoutID(t *testing.T) {
	u, err := ParseUpdate([]byte(` {"message":{"chat":{"id":555},"text":"/help"}}`))
	require.NoError(t, err)
	assert.Empty(t, u.EventID())
	assert.Equal(t, "message", u.Kind())
}

func TestParseUpdate_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "{", "[]", "null", `"text"`, `{"update_id":"x"}`} {
		_, err := ParseUpdate([]byte(raw))
		assert.ErrorIs(t, err, domainerrors.ErrInvalidPayload, raw)
	}
}
