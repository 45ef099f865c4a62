package billing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/relaygrid/billing-events/internal/models"
	"github.com/relaygrid/billing-events/internal/store"
)

// Notice identifies an admin-facing notification raised by a standing
// transition.
type Notice string

const (
	NoticePaymentWarning          Notice = "payment_warning"
	NoticePaymentWarningEscalated Notice = "payment_warning_escalated"
	NoticeAccountSoftLocked       Notice = "account_soft_locked"
	NoticeAccessRestored          Notice = "access_restored"
)

// Notifier delivers admin notifications for standing changes. Failures are
// logged by the engine but never fail inbound processing: outbound delivery
// is an independent failure domain.
type Notifier interface {
	Notify(ctx context.Context, tenantID string, notice Notice, event *models.ProviderEvent) error
}

// How many times a transition is retried when a concurrent dispatch for the
// same tenant advanced the state row first.
const maxVersionRetries = 3

// Engine is the billing state machine. It owns all writes to
// TenantBillingState; every mutation enters through a verified, claimed
// provider event.
type Engine struct {
	states   store.BillingStateStore
	notifier Notifier
	logger   *zap.Logger
}

// NewEngine creates a billing engine with dependencies.
func NewEngine(states store.BillingStateStore, notifier Notifier, logger *zap.Logger) *Engine {
	return &Engine{
		states:   states,
		notifier: notifier,
		logger:   logger,
	}
}

// transition mutates one tenant's state. The mutate callback returns the
// notice to raise (or "") and whether the row changed; the versioned update
// is retried on conflict with a freshly loaded row.
func (e *Engine) transition(
	ctx context.Context,
	event *models.ProviderEvent,
	mutate func(state *models.TenantBillingState) (Notice, bool),
) error {
	for retry := 0; retry < maxVersionRetries; retry++ {
		state, err := e.states.GetOrCreate(ctx, event.TenantID)
		if err != nil {
			return err
		}

		notice, changed := mutate(state)
		if !changed {
			return nil
		}

		if err := e.states.UpdateVersioned(ctx, state); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				e.logger.Debug("Billing state version conflict, retrying",
					zap.String("tenant_id", event.TenantID),
					zap.String("event_id", event.ID),
					zap.Int("retry", retry+1),
				)
				continue
			}
			return err
		}

		if notice != "" {
			e.sendNotice(ctx, event, notice)
		}
		return nil
	}

	return fmt.Errorf("billing state for tenant %s kept changing after %d retries", event.TenantID, maxVersionRetries)
}

func (e *Engine) sendNotice(ctx context.Context, event *models.ProviderEvent, notice Notice) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event.TenantID, notice, event); err != nil {
		// Losing a notification is acceptable; losing the state
		// transition is not. The transition is already committed.
		e.logger.Error("Failed to send billing notice",
			zap.String("tenant_id", event.TenantID),
			zap.String("event_id", event.ID),
			zap.String("notice", string(notice)),
			zap.Error(err),
		)
	}
}

// HandlePaymentFailed applies the dunning escalation. The attempt counter
// comes from the provider payload, not local state, so redelivered or
// out-of-order failures land on the same standing.
func (e *Engine) HandlePaymentFailed(ctx context.Context, event *models.ProviderEvent) error {
	attempt := event.Data.AttemptCount
	if attempt < 1 {
		attempt = 1
	}

	return e.transition(ctx, event, func(state *models.TenantBillingState) (Notice, bool) {
		switch {
		case attempt == 1:
			state.Standing = models.StandingPastDue
			return NoticePaymentWarning, true
		case attempt == 2:
			state.Standing = models.StandingPastDue
			return NoticePaymentWarningEscalated, true
		default:
			state.Standing = models.StandingUnpaid
			return NoticeAccountSoftLocked, true
		}
	})
}

// HandlePaymentSucceeded restores standing after dunning. A success while
// already ACTIVE is a no-op, so a redelivered or reordered success never
// fires a duplicate restoration notice.
func (e *Engine) HandlePaymentSucceeded(ctx context.Context, event *models.ProviderEvent) error {
	return e.transition(ctx, event, func(state *models.TenantBillingState) (Notice, bool) {
		if state.Standing != models.StandingPastDue && state.Standing != models.StandingUnpaid {
			return "", false
		}
		state.Standing = models.StandingActive
		return NoticeAccessRestored, true
	})
}

// HandleSubscriptionChanged syncs provider subscription data: tier is
// recomputed from the plan identifier and standing mirrors the provider
// status.
func (e *Engine) HandleSubscriptionChanged(ctx context.Context, event *models.ProviderEvent) error {
	return e.transition(ctx, event, func(state *models.TenantBillingState) (Notice, bool) {
		if ref := event.Data.CustomerRef; ref != "" {
			state.ProviderCustomerRef = ref
		}
		if ref := event.Data.SubscriptionRef; ref != "" {
			state.ProviderSubscriptionRef = ref
		}
		state.Tier = TierFromPlanRef(event.Data.PlanRef)
		state.Standing = StandingFromProviderStatus(event.Data.Status)
		if periodEnd := event.Data.PeriodEnd(); periodEnd != nil {
			state.CurrentPeriodEnd = periodEnd
		}
		return "", true
	})
}

// HandleSubscriptionDeleted cancels the tenant's subscription.
func (e *Engine) HandleSubscriptionDeleted(ctx context.Context, event *models.ProviderEvent) error {
	return e.transition(ctx, event, func(state *models.TenantBillingState) (Notice, bool) {
		state.Standing = models.StandingCanceled
		state.Tier = models.TierFree
		state.ProviderSubscriptionRef = ""
		return "", true
	})
}

// HandleUsageUpdated records the provider's metered-usage summary.
func (e *Engine) HandleUsageUpdated(ctx context.Context, event *models.ProviderEvent) error {
	return e.transition(ctx, event, func(state *models.TenantBillingState) (Notice, bool) {
		state.UsageUnits = event.Data.UsageUnits
		return "", true
	})
}
