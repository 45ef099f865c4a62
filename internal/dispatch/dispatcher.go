package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/relaygrid/billing-events/internal/billing"
	"github.com/relaygrid/billing-events/internal/models"
	"github.com/relaygrid/billing-events/internal/store"
)

// Outcome classifies the result of dispatching a claimed event.
type Outcome int

const (
	// OutcomeProcessed means the state-machine transition was applied and
	// the claim is marked PROCESSED.
	OutcomeProcessed Outcome = iota
	// OutcomeIgnored means the event type is not one this subsystem
	// understands; it is acknowledged so the provider stops retrying,
	// and the claim is marked PROCESSED with a note.
	OutcomeIgnored
	// OutcomeFailed means the transition errored; the claim is marked
	// FAILED and the HTTP layer should return 5xx so the provider
	// redelivers.
	OutcomeFailed
)

// Dispatcher routes a claimed inbound event to its state-machine
// transition and finalizes the claim record.
type Dispatcher struct {
	engine *billing.Engine
	claims store.ClaimStore
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher with dependencies.
func NewDispatcher(engine *billing.Engine, claims store.ClaimStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		engine: engine,
		claims: claims,
		logger: logger,
	}
}

// Dispatch applies the transition for a claimed event. The caller must own
// the claim; Dispatch is responsible for moving it to PROCESSED or FAILED.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.ProviderEvent) Outcome {
	eventType, err := models.ParseBillingEventType(event.Type)
	if err != nil {
		// Unrecognized types must not make the provider retry.
		d.logger.Info("Ignoring unrecognized event type",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		d.finalizeProcessed(ctx, event.ID, fmt.Sprintf("ignored: %s", event.Type))
		return OutcomeIgnored
	}

	if err := d.apply(ctx, eventType, event); err != nil {
		d.logger.Error("Dispatch failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.String("tenant_id", event.TenantID),
			zap.Error(err),
		)
		if markErr := d.claims.MarkFailed(ctx, event.ID, 500, err.Error()); markErr != nil {
			d.logger.Error("Failed to mark claim FAILED",
				zap.String("event_id", event.ID),
				zap.Error(markErr),
			)
		}
		return OutcomeFailed
	}

	d.finalizeProcessed(ctx, event.ID, "processed")
	return OutcomeProcessed
}

func (d *Dispatcher) apply(ctx context.Context, eventType models.BillingEventType, event *models.ProviderEvent) error {
	if event.TenantID == "" {
		return fmt.Errorf("event %s has no tenant id", event.ID)
	}

	switch eventType {
	case models.EventPaymentFailed:
		return d.engine.HandlePaymentFailed(ctx, event)
	case models.EventPaymentSucceeded:
		return d.engine.HandlePaymentSucceeded(ctx, event)
	case models.EventSubscriptionCreated, models.EventSubscriptionUpdated:
		return d.engine.HandleSubscriptionChanged(ctx, event)
	case models.EventSubscriptionDeleted:
		return d.engine.HandleSubscriptionDeleted(ctx, event)
	case models.EventUsageUpdated:
		return d.engine.HandleUsageUpdated(ctx, event)
	default:
		return fmt.Errorf("no handler for event type %s", eventType)
	}
}

func (d *Dispatcher) finalizeProcessed(ctx context.Context, eventID, summary string) {
	if err := d.claims.MarkProcessed(ctx, eventID, 200, summary); err != nil {
		// The transition is already durable; a failed audit update must
		// not turn a processed event into a provider retry.
		d.logger.Error("Failed to mark claim PROCESSED",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
}
