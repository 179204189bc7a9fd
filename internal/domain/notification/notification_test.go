package notification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash(TypeOrderReady, "17", "555")
	b := ContentHash(TypeOrderReady, "17", "555")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, ContentHash(TypeOrderIssued, "17", "555"))
	assert.NotEqual(t, a, ContentHash(TypeOrderReady, "18", "555"))
	assert.NotEqual(t, a, ContentHash(TypeOrderReady, "17", "556"))
}

func TestNewRecord(t *testing.T) {
	ok := NewRecord(TypeAdminNewOrder, "1", "2", true, nil)
	assert.True(t, ok.Success)
	assert.Nil(t, ok.ErrorMessage)
	assert.Equal(t, ContentHash(TypeAdminNewOrder, "1", "2"), ok.ContentHash)

	failed := NewRecord(TypeAdminNewOrder, "1", "2", false, errors.New("boom"))
	assert.False(t, failed.Success)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "boom", *failed.ErrorMessage)
	assert.NotEqual(t, ok.ID, failed.ID)
}

func TestStats_SuccessRate(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		want  float64
	}{
		{"no deliveries is healthy", Stats{}, 100},
		{"all successful", Stats{Total: 4, Successful: 4}, 100},
		{"half", Stats{Total: 4, Successful: 2}, 50},
		{"none", Stats{Total: 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.stats.SuccessRate(), 0.0001)
		})
	}

	assert.Equal(t, 2, Stats{Total: 5, Successful: 3}.Failed())
}
