package models

import (
	"time"

	"github.com/google/uuid"
)

// Delivery statuses for the durable outbound job row.
const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessing = "processing"
	DeliveryStatusSucceeded  = "succeeded"
	DeliveryStatusFailed     = "failed"
)

// OutboundDelivery is one logical delivery of an event to one subscription.
// It is the durable job record the retry scheduler operates on; the
// per-try history lives in OutboundDeliveryAttempt rows.
type OutboundDelivery struct {
	ID             uuid.UUID           `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	SubscriptionID uuid.UUID           `gorm:"type:uuid;not null;index" json:"subscription_id"`
	Subscription   WebhookSubscription `gorm:"foreignKey:SubscriptionID" json:"subscription,omitempty"`
	EventID        string              `gorm:"size:191;not null;index" json:"event_id"`
	EventType      string              `gorm:"not null" json:"event_type"`
	TenantID       string              `gorm:"size:64;not null" json:"tenant_id"`
	Payload        string              `gorm:"type:text;not null" json:"payload"`
	Status         string              `gorm:"not null;default:'pending';index" json:"status"`
	AttemptCount   int                 `gorm:"not null;default:0" json:"attempt_count"`
	MaxAttempts    int                 `gorm:"not null;default:3" json:"max_attempts"`
	NextAttemptAt  time.Time           `gorm:"not null;default:now();index" json:"next_attempt_at"`
	LastError      *string             `json:"last_error"`
	CreatedAt      time.Time           `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"not null;default:now()" json:"updated_at"`
}

func (OutboundDelivery) TableName() string {
	return "outbound_deliveries"
}

// DeliveryMessage is the message published to the delivery queue.
type DeliveryMessage struct {
	DeliveryID string `json:"delivery_id"`
}
