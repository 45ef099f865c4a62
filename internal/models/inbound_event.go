package models

import (
	"time"
)

// Claim states for an inbound provider event.
const (
	ClaimStateClaimed   = "CLAIMED"
	ClaimStateProcessed = "PROCESSED"
	ClaimStateFailed    = "FAILED"
)

// InboundEvent is the idempotency claim record for one provider event.
// The provider-assigned event id is the primary key, so the insert itself
// is the dedupe gate: exactly one delivery of a given event id can create
// the row, every other concurrent or later delivery hits the uniqueness
// constraint and is acknowledged without reprocessing.
type InboundEvent struct {
	EventID            string    `gorm:"primary_key;size:191" json:"event_id"`
	EventType          string    `gorm:"not null;index" json:"event_type"`
	ReceivedAt         time.Time `gorm:"not null" json:"received_at"`
	RawPayload         []byte    `gorm:"type:bytea;not null" json:"-"`
	ClaimState         string    `gorm:"not null;default:'CLAIMED';index" json:"claim_state"`
	HTTPStatusRecorded *int      `gorm:"type:integer" json:"http_status_recorded"`
	ResponseSummary    *string   `gorm:"type:text" json:"response_summary"`
	CreatedAt          time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (InboundEvent) TableName() string {
	return "inbound_events"
}
