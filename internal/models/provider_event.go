package models

import (
	"fmt"
	"strings"
	"time"
)

// BillingEventType identifies the kind of provider event.
type BillingEventType string

const (
	EventPaymentFailed       BillingEventType = "payment_failed"
	EventPaymentSucceeded    BillingEventType = "payment_succeeded"
	EventSubscriptionCreated BillingEventType = "subscription_created"
	EventSubscriptionUpdated BillingEventType = "subscription_updated"
	EventSubscriptionDeleted BillingEventType = "subscription_deleted"
	EventUsageUpdated        BillingEventType = "usage_updated"
)

// ParseBillingEventType parses a string into a BillingEventType.
// Returns an error if the event type is unknown; unknown types are still
// acknowledged upstream, this just tells the dispatcher to no-op.
func ParseBillingEventType(name string) (BillingEventType, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	validTypes := []BillingEventType{
		EventPaymentFailed,
		EventPaymentSucceeded,
		EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted,
		EventUsageUpdated,
	}

	for _, eventType := range validTypes {
		if string(eventType) == name {
			return eventType, nil
		}
	}

	return "", fmt.Errorf("unknown billing event type: %s", name)
}

// ProviderEvent is the decoded envelope of an inbound provider notification.
// The raw bytes are kept separately on the claim record; this struct only
// carries the fields the state machine reads.
type ProviderEvent struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	TenantID string            `json:"tenant_id"`
	Created  int64             `json:"created"` // unix seconds, provider clock
	Data     ProviderEventData `json:"data"`
}

// ProviderEventData is the typed payload of a provider event. Fields are
// populated depending on the event type.
type ProviderEventData struct {
	CustomerRef      string `json:"customer_ref"`
	SubscriptionRef  string `json:"subscription_ref"`
	PlanRef          string `json:"plan_ref"`
	Status           string `json:"status"`
	AttemptCount     int    `json:"attempt_count"` // provider-side dunning counter
	CurrentPeriodEnd int64  `json:"current_period_end"`
	UsageUnits       int64  `json:"usage_units"`
}

// PeriodEnd converts the provider's unix-seconds period end to a time,
// or nil when absent.
func (d ProviderEventData) PeriodEnd() *time.Time {
	if d.CurrentPeriodEnd <= 0 {
		return nil
	}
	t := time.Unix(d.CurrentPeriodEnd, 0).UTC()
	return &t
}
