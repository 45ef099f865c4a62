package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/relaygrid/billing-events/internal/models"
)

// ClaimResult is the outcome of a claim attempt.
type ClaimResult int

const (
	// Claimed means the caller now exclusively owns processing for the
	// event and must eventually mark it PROCESSED or FAILED.
	Claimed ClaimResult = iota
	// AlreadyClaimed means another delivery of the same event owns it;
	// the correct response to the provider is a success ack.
	AlreadyClaimed
)

// ErrVersionConflict is returned when an optimistic billing-state update
// lost a race to a concurrent writer. Callers reload and retry.
var ErrVersionConflict = errors.New("billing state version conflict")

// ClaimStore is the idempotency ledger for inbound events. Claim must be
// atomic with respect to concurrent callers across process instances: the
// uniqueness constraint on the event id is the only serialization point.
type ClaimStore interface {
	Claim(ctx context.Context, eventID, eventType string, rawPayload []byte) (ClaimResult, error)
	MarkProcessed(ctx context.Context, eventID string, httpStatus int, summary string) error
	MarkFailed(ctx context.Context, eventID string, httpStatus int, summary string) error
}

// BillingStateStore owns TenantBillingState rows. UpdateVersioned applies
// the write only when the in-memory version matches the stored one and
// returns ErrVersionConflict otherwise.
type BillingStateStore interface {
	GetOrCreate(ctx context.Context, tenantID string) (*models.TenantBillingState, error)
	UpdateVersioned(ctx context.Context, state *models.TenantBillingState) error
}

// SubscriptionStore reads tenant webhook subscriptions. This service never
// writes them.
type SubscriptionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error)
	ListActiveForTenant(ctx context.Context, tenantID string) ([]models.WebhookSubscription, error)
}

// DeliveryStore manages durable outbound delivery rows and their
// append-only attempt history.
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, delivery *models.OutboundDelivery) error
	RecordAttempt(ctx context.Context, attempt *models.OutboundDeliveryAttempt) error
	ListAttempts(ctx context.Context, eventID string, subscriptionID uuid.UUID) ([]models.OutboundDeliveryAttempt, error)
}
