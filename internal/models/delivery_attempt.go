package models

import (
	"time"

	"github.com/google/uuid"
)

// OutboundDeliveryAttempt is one outbound HTTP try. Append-only: one row
// per attempt, never updated after insert. The full history of a logical
// delivery is the set of rows sharing event id + subscription id.
type OutboundDeliveryAttempt struct {
	ID                  int64     `gorm:"primary_key;autoIncrement" json:"id"`
	DeliveryID          uuid.UUID `gorm:"type:uuid;not null;index" json:"delivery_id"`
	SubscriptionID      uuid.UUID `gorm:"type:uuid;not null;index:idx_delivery_attempts_event_sub" json:"subscription_id"`
	EventID             string    `gorm:"size:191;not null;index:idx_delivery_attempts_event_sub" json:"event_id"`
	EventType           string    `gorm:"not null" json:"event_type"`
	AttemptNumber       int       `gorm:"not null" json:"attempt_number"`
	RequestBody         string    `gorm:"type:text" json:"request_body"`
	ResponseStatus      int       `gorm:"not null;default:0" json:"response_status"` // 0 = request never returned
	ResponseBodyExcerpt string    `gorm:"type:text" json:"response_body_excerpt"`
	DurationMs          int       `gorm:"not null;default:0" json:"duration_ms"`
	Success             bool      `gorm:"not null;default:false" json:"success"`
	CreatedAt           time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (OutboundDeliveryAttempt) TableName() string {
	return "outbound_delivery_attempts"
}
