package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixhub/workshop/internal/domain/errors"
)

// Status is the customer-facing order state.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
	StatusIssued     Status = "issued"
)

// WorkStatus is the mechanic-side work state.
type WorkStatus string

const (
	WorkNew        WorkStatus = "new"
	WorkInProgress WorkStatus = "in_progress"
	WorkPaused     WorkStatus = "paused"
	WorkCompleted  WorkStatus = "completed"
)

var statusLabels = map[Status]string{
	StatusNew:        "Новый",
	StatusInProgress: "В работе",
	StatusReady:      "Готов",
	StatusIssued:     "Выдан",
}

var workStatusLabels = map[WorkStatus]string{
	WorkNew:        "Новый",
	WorkInProgress: "В работе",
	WorkPaused:     "На паузе",
	WorkCompleted:  "Завершен",
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the display name used in chat messages.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s WorkStatus) Valid() bool {
	_, ok := workStatusLabels[s]
	return ok
}

func (s WorkStatus) Label() string {
	if l, ok := workStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Order is a repair order placed by a mechanic through the bot or the web app.
type Order struct {
	ID                 int64
	MechanicName       string
	TelegramID         string
	Category           string
	VIN                string
	CarNumber          string
	SelectedParts      []string
	Status             Status
	WorkStatus         WorkStatus
	AssignedMechanicID *int64
	Language           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewOrder validates input and returns an order in its initial state.
func NewOrder(mechanicName, telegramID, category, vin, carNumber string, parts []string) (*Order, error) {
	if strings.TrimSpace(mechanicName) == "" {
		return nil, errors.NewValidationError("mechanic_name", "cannot be empty")
	}
	if strings.TrimSpace(category) == "" {
		return nil, errors.NewValidationError("category", "cannot be empty")
	}
	if len(parts) == 0 {
		return nil, errors.NewValidationError("selected_parts", "at least one part is required")
	}

	now := time.Now()
	return &Order{
		MechanicName:  strings.TrimSpace(mechanicName),
		TelegramID:    strings.TrimSpace(telegramID),
		Category:      category,
		VIN:           strings.ToUpper(strings.TrimSpace(vin)),
		CarNumber:     strings.TrimSpace(carNumber),
		SelectedParts: parts,
		Status:        StatusNew,
		WorkStatus:    WorkNew,
		Language:      "ru",
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ChangeStatus moves the order to s and returns the previous status.
func (o *Order) ChangeStatus(s Status) (Status, error) {
	if !s.Valid() {
		return o.Status, fmt.Errorf("%w: %q", errors.ErrInvalidStatus, s)
	}
	if o.Status == s {
		return o.Status, errors.ErrStatusUnchanged
	}
	old := o.Status
	o.Status = s
	o.UpdatedAt = time.Now()
	return old, nil
}

// ChangeWorkStatus moves the work state to s and returns the previous one.
func (o *Order) ChangeWorkStatus(s WorkStatus) (WorkStatus, error) {
	if !s.Valid() {
		return o.WorkStatus, fmt.Errorf("%w: %q", errors.ErrInvalidWorkStatus, s)
	}
	if o.WorkStatus == s {
		return o.WorkStatus, errors.ErrStatusUnchanged
	}
	old := o.WorkStatus
	o.WorkStatus = s
	o.UpdatedAt = time.Now()
	return old, nil
}

// PartsSummary joins the selected parts for display.
func (o *Order) PartsSummary() string {
	return strings.Join(o.SelectedParts, ", ")
}
