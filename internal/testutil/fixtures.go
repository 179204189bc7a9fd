package testutil

import (
	"time"

	"github.com/felixhub/workshop/internal/domain/order"
)

func NewTestOrder(telegramID string) *order.Order {
	now := time.Now()
	return &order.Order{
		MechanicName:  "Иван Петров",
		TelegramID:    telegramID,
		Category:      "Двигатель",
		VIN:           "WVWZZZ1JZXW000001",
		CarNumber:     "А123ВС77",
		SelectedParts: []string{"Масляный фильтр", "Свеча зажигания"},
		Status:        order.StatusNew,
		WorkStatus:    order.WorkNew,
		Language:      "ru",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func NewOrderWithStatus(telegramID string, status order.Status) *order.Order {
	o := NewTestOrder(telegramID)
	o.Status = status
	return o
}

// NewStaleOrder returns a new-status order created age ago.
func NewStaleOrder(telegramID string, age time.Duration) *order.Order {
	o := NewTestOrder(telegramID)
	o.CreatedAt = time.Now().Add(-age)
	o.UpdatedAt = o.CreatedAt
	return o
}
