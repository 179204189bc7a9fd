package notification

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies a notification category.
type Type string

const (
	TypeAdminNewOrder         Type = "admin_new_order"
	TypeOrderReady            Type = "order_ready"
	TypeOrderIssued           Type = "order_issued"
	TypeOrderStatusChanged    Type = "order_status_changed"
	TypeMechanicStatusChanged Type = "mechanic_status_changed"
	TypeSystemAlert           Type = "system_alert"
	TypeBotReply              Type = "bot_reply"
)

// Record is the persisted outcome of one delivery. Records are never updated.
type Record struct {
	ID           uuid.UUID
	Type         Type
	SubjectID    string
	RecipientID  string
	ContentHash  string
	SentAt       time.Time
	Success      bool
	ErrorMessage *string
}

// NewRecord builds an outcome record; err is stored as its message.
func NewRecord(t Type, subjectID, recipientID string, success bool, err error) *Record {
	r := &Record{
		ID:          uuid.New(),
		Type:        t,
		SubjectID:   subjectID,
		RecipientID: recipientID,
		ContentHash: ContentHash(t, subjectID, recipientID),
		SentAt:      time.Now().UTC(),
		Success:     success,
	}
	if err != nil {
		msg := err.Error()
		r.ErrorMessage = &msg
	}
	return r
}

// ContentHash identifies one logical notification.
func ContentHash(t Type, subjectID, recipientID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", t, subjectID, recipientID)))
	return hex.EncodeToString(sum[:])
}

// Stats aggregates outcomes for one notification type.
type Stats struct {
	Type       Type
	Total      int
	Successful int
}

// Failed returns the number of unsuccessful deliveries.
func (s Stats) Failed() int {
	return s.Total - s.Successful
}

// SuccessRate is successful/total*100, or 100 when there were no deliveries.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 100.0
	}
	return float64(s.Successful) / float64(s.Total) * 100
}

// DeadLetter describes a message abandoned after exhausting retries.
type DeadLetter struct {
	CorrelationID string
	RecipientID   string
	SubjectID     string
	Attempts      uint
	LastError     string
	Preview       string
	FailedAt      time.Time
}
