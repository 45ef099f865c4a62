package models

import (
	"time"
)

// Account standings derived from billing events.
const (
	StandingActive   = "ACTIVE"
	StandingPastDue  = "PAST_DUE"
	StandingUnpaid   = "UNPAID"
	StandingCanceled = "CANCELED"
)

// Subscription tiers.
const (
	TierFree       = "FREE"
	TierPro        = "PRO"
	TierEnterprise = "ENTERPRISE"
)

// TenantBillingState is the per-tenant subscription and standing row.
// It is written only by the billing state machine, driven by verified,
// claimed provider events. Version is bumped on every write and used as
// an optimistic concurrency check so concurrent dispatches for the same
// tenant cannot silently overwrite each other.
type TenantBillingState struct {
	TenantID                string     `gorm:"primary_key;size:64" json:"tenant_id"`
	ProviderCustomerRef     string     `gorm:"size:191" json:"provider_customer_ref"`
	ProviderSubscriptionRef string     `gorm:"size:191" json:"provider_subscription_ref"`
	Tier                    string     `gorm:"not null;default:'FREE'" json:"tier"`
	Standing                string     `gorm:"not null;default:'ACTIVE'" json:"standing"`
	CurrentPeriodEnd        *time.Time `json:"current_period_end"`
	UsageUnits              int64      `gorm:"not null;default:0" json:"usage_units"`
	Version                 int64      `gorm:"not null;default:0" json:"version"`
	CreatedAt               time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (TenantBillingState) TableName() string {
	return "tenant_billing_states"
}
