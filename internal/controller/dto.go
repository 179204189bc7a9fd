package controller

import (
	"time"

	"github.com/felixhub/workshop/internal/domain/notification"
	"github.com/felixhub/workshop/internal/domain/order"
	"github.com/felixhub/workshop/internal/service"
)

// --- Request DTOs ---

type CreateOrderRequest struct {
	MechanicName  string   `json:"mechanic_name" validate:"required,max=200"`
	TelegramID    string   `json:"telegram_id" validate:"omitempty,numeric,max=32"`
	Category      string   `json:"category" validate:"required,max=100"`
	VIN           string   `json:"vin" validate:"omitempty,max=32"`
	CarNumber     string   `json:"car_number" validate:"omitempty,max=32"`
	SelectedParts []string `json:"selected_parts" validate:"required,min=1,dive,required,max=200"`
	Language      string   `json:"language" validate:"omitempty,oneof=ru en"`
}

func (r CreateOrderRequest) toService() service.CreateOrderRequest {
	return service.CreateOrderRequest{
		MechanicName:  r.MechanicName,
		TelegramID:    r.TelegramID,
		Category:      r.Category,
		VIN:           r.VIN,
		CarNumber:     r.CarNumber,
		SelectedParts: r.SelectedParts,
		Language:      r.Language,
	}
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new in_progress ready issued"`
}

type UpdateWorkStatusRequest struct {
	WorkStatus string `json:"work_status" validate:"required,oneof=new in_progress paused completed"`
}

type windowQuery struct {
	Hours int `validate:"min=1,max=168"`
}

type failuresQuery struct {
	Hours int `validate:"min=1,max=168"`
	Limit int `validate:"min=1,max=1000"`
}

type deadLetterQuery struct {
	Count int `validate:"min=1,max=500"`
}

// --- Response DTOs ---

type OrderResponse struct {
	ID                 int64     `json:"id"`
	MechanicName       string    `json:"mechanic_name"`
	TelegramID         string    `json:"telegram_id,omitempty"`
	Category           string    `json:"category"`
	VIN                string    `json:"vin,omitempty"`
	CarNumber          string    `json:"car_number,omitempty"`
	SelectedParts      []string  `json:"selected_parts"`
	Status             string    `json:"status"`
	WorkStatus         string    `json:"work_status"`
	AssignedMechanicID *int64    `json:"assigned_mechanic_id,omitempty"`
	Language           string    `json:"language"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type SuccessRateResponse struct {
	Hours int                            `json:"hours"`
	Rates map[string]service.RateSummary `json:"rates"`
}

type FailureResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	SubjectID    string    `json:"subject_id"`
	RecipientID  string    `json:"recipient_id"`
	SentAt       time.Time `json:"sent_at"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}

type FailuresResponse struct {
	Hours    int               `json:"hours"`
	Count    int               `json:"count"`
	Failures []FailureResponse `json:"failures"`
}

type DeadLetterResponse struct {
	CorrelationID string    `json:"correlation_id"`
	RecipientID   string    `json:"recipient_id"`
	SubjectID     string    `json:"subject_id,omitempty"`
	Attempts      uint      `json:"attempts"`
	LastError     string    `json:"last_error"`
	Preview       string    `json:"preview"`
	FailedAt      time.Time `json:"failed_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

func FromOrder(o *order.Order) *OrderResponse {
	parts := o.SelectedParts
	if parts == nil {
		parts = []string{}
	}
	return &OrderResponse{
		ID:                 o.ID,
		MechanicName:       o.MechanicName,
		TelegramID:         o.TelegramID,
		Category:           o.Category,
		VIN:                o.VIN,
		CarNumber:          o.CarNumber,
		SelectedParts:      parts,
		Status:             string(o.Status),
		WorkStatus:         string(o.WorkStatus),
		AssignedMechanicID: o.AssignedMechanicID,
		Language:           o.Language,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func FromFailure(r *notification.Record) FailureResponse {
	return FailureResponse{
		ID:           r.ID.String(),
		Type:         string(r.Type),
		SubjectID:    r.SubjectID,
		RecipientID:  r.RecipientID,
		SentAt:       r.SentAt,
		ErrorMessage: r.ErrorMessage,
	}
}

func FromDeadLetter(d notification.DeadLetter) DeadLetterResponse {
	return DeadLetterResponse{
		CorrelationID: d.CorrelationID,
		RecipientID:   d.RecipientID,
		SubjectID:     d.SubjectID,
		Attempts:      d.Attempts,
		LastError:     d.LastError,
		Preview:       d.Preview,
		FailedAt:      d.FailedAt,
	}
}
