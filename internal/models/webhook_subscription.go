package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookSubscription is a tenant-configured outbound webhook endpoint.
// Created and edited by tenant administrators elsewhere in the application;
// this service only reads it when fanning out deliveries.
type WebhookSubscription struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID    string         `gorm:"size:64;not null;index" json:"tenant_id"`
	URL         string         `gorm:"not null" json:"url"`
	EventFilter string         `gorm:"not null;default:''" json:"event_filter"` // comma-separated event types, empty = all
	Secret      string         `json:"-"`                                       // shared secret for outbound HMAC
	Active      bool           `gorm:"default:true" json:"active"`
	CreatedAt   time.Time      `gorm:"default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (WebhookSubscription) TableName() string {
	return "webhook_subscriptions"
}

// WantsEvent reports whether the subscription's filter includes the event
// type. An empty filter subscribes to everything.
func (s *WebhookSubscription) WantsEvent(eventType string) bool {
	filter := strings.TrimSpace(s.EventFilter)
	if filter == "" {
		return true
	}
	for _, entry := range strings.Split(filter, ",") {
		if strings.TrimSpace(entry) == eventType {
			return true
		}
	}
	return false
}
