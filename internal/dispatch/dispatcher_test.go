package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaygrid/billing-events/internal/billing"
	"github.com/relaygrid/billing-events/internal/models"
	"github.com/relaygrid/billing-events/internal/store"
)

type memClaimStore struct {
	mu        sync.Mutex
	states    map[string]string
	summaries map[string]string
}

func newMemClaimStore() *memClaimStore {
	return &memClaimStore{
		states:    make(map[string]string),
		summaries: make(map[string]string),
	}
}

func (s *memClaimStore) Claim(_ context.Context, eventID, _ string, _ []byte) (store.ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[eventID]; ok && state != models.ClaimStateFailed {
		return store.AlreadyClaimed, nil
	}
	s.states[eventID] = models.ClaimStateClaimed
	return store.Claimed, nil
}

func (s *memClaimStore) MarkProcessed(_ context.Context, eventID string, _ int, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[eventID] = models.ClaimStateProcessed
	s.summaries[eventID] = summary
	return nil
}

func (s *memClaimStore) MarkFailed(_ context.Context, eventID string, _ int, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[eventID] = models.ClaimStateFailed
	s.summaries[eventID] = summary
	return nil
}

type memStateStore struct {
	states map[string]*models.TenantBillingState
	getErr error
}

func (s *memStateStore) GetOrCreate(_ context.Context, tenantID string) (*models.TenantBillingState, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	state, ok := s.states[tenantID]
	if !ok {
		state = &models.TenantBillingState{
			TenantID: tenantID,
			Tier:     models.TierFree,
			Standing: models.StandingActive,
		}
		s.states[tenantID] = state
	}
	clone := *state
	return &clone, nil
}

func (s *memStateStore) UpdateVersioned(_ context.Context, state *models.TenantBillingState) error {
	current := s.states[state.TenantID]
	if current.Version != state.Version {
		return store.ErrVersionConflict
	}
	clone := *state
	clone.Version++
	s.states[state.TenantID] = &clone
	return nil
}

func newTestDispatcher(states *memStateStore) (*Dispatcher, *memClaimStore) {
	claims := newMemClaimStore()
	engine := billing.NewEngine(states, nil, zap.NewNop())
	return NewDispatcher(engine, claims, zap.NewNop()), claims
}

func claimedEvent(t *testing.T, claims *memClaimStore, id, eventType, tenantID string) *models.ProviderEvent {
	t.Helper()
	result, err := claims.Claim(context.Background(), id, eventType, []byte("{}"))
	require.NoError(t, err)
	require.Equal(t, store.Claimed, result)
	return &models.ProviderEvent{ID: id, Type: eventType, TenantID: tenantID}
}

func TestDispatch_ProcessedFinalizesClaim(t *testing.T) {
	states := &memStateStore{states: make(map[string]*models.TenantBillingState)}
	dispatcher, claims := newTestDispatcher(states)

	event := claimedEvent(t, claims, "evt_1", string(models.EventPaymentFailed), "tenant_1")
	event.Data.AttemptCount = 1

	outcome := dispatcher.Dispatch(context.Background(), event)

	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, models.ClaimStateProcessed, claims.states["evt_1"])
	assert.Equal(t, "processed", claims.summaries["evt_1"])
	assert.Equal(t, models.StandingPastDue, states.states["tenant_1"].Standing)
}

func TestDispatch_RoutesAllEventTypes(t *testing.T) {
	tests := []struct {
		eventType string
		verify    func(t *testing.T, state *models.TenantBillingState)
	}{
		{
			eventType: "payment_failed",
			verify: func(t *testing.T, state *models.TenantBillingState) {
				assert.Equal(t, models.StandingPastDue, state.Standing)
			},
		},
		{
			eventType: "subscription_created",
			verify: func(t *testing.T, state *models.TenantBillingState) {
				assert.Equal(t, models.TierPro, state.Tier)
			},
		},
		{
			eventType: "subscription_updated",
			verify: func(t *testing.T, state *models.TenantBillingState) {
				assert.Equal(t, models.TierPro, state.Tier)
			},
		},
		{
			eventType: "subscription_deleted",
			verify: func(t *testing.T, state *models.TenantBillingState) {
				assert.Equal(t, models.StandingCanceled, state.Standing)
			},
		},
		{
			eventType: "usage_updated",
			verify: func(t *testing.T, state *models.TenantBillingState) {
				assert.Equal(t, int64(900), state.UsageUnits)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			states := &memStateStore{states: make(map[string]*models.TenantBillingState)}
			dispatcher, claims := newTestDispatcher(states)

			event := claimedEvent(t, claims, "evt_1", tt.eventType, "tenant_1")
			event.Data = models.ProviderEventData{
				AttemptCount: 1,
				PlanRef:      "plan_pro",
				Status:       "active",
				UsageUnits:   900,
			}

			outcome := dispatcher.Dispatch(context.Background(), event)

			require.Equal(t, OutcomeProcessed, outcome)
			tt.verify(t, states.states["tenant_1"])
		})
	}
}

func TestDispatch_UnrecognizedTypeIgnoredAndAcked(t *testing.T) {
	states := &memStateStore{states: make(map[string]*models.TenantBillingState)}
	dispatcher, claims := newTestDispatcher(states)

	event := claimedEvent(t, claims, "evt_1", "invoice.finalized", "tenant_1")

	outcome := dispatcher.Dispatch(context.Background(), event)

	// Unknown types are finalized as processed so the provider stops
	// retrying, with the skip recorded on the claim.
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, models.ClaimStateProcessed, claims.states["evt_1"])
	assert.Equal(t, "ignored: invoice.finalized", claims.summaries["evt_1"])
	assert.Empty(t, states.states, "ignored events must not touch billing state")
}

func TestDispatch_FailureMarksClaimFailed(t *testing.T) {
	states := &memStateStore{
		states: make(map[string]*models.TenantBillingState),
		getErr: errors.New("connection refused"),
	}
	dispatcher, claims := newTestDispatcher(states)

	event := claimedEvent(t, claims, "evt_1", string(models.EventPaymentFailed), "tenant_1")
	event.Data.AttemptCount = 1

	outcome := dispatcher.Dispatch(context.Background(), event)

	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, models.ClaimStateFailed, claims.states["evt_1"])
	assert.Contains(t, claims.summaries["evt_1"], "connection refused")
}

func TestDispatch_MissingTenantFails(t *testing.T) {
	states := &memStateStore{states: make(map[string]*models.TenantBillingState)}
	dispatcher, claims := newTestDispatcher(states)

	event := claimedEvent(t, claims, "evt_1", string(models.EventPaymentFailed), "")

	outcome := dispatcher.Dispatch(context.Background(), event)

	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, models.ClaimStateFailed, claims.states["evt_1"])
}

func TestDispatch_FailedClaimCanBeReclaimed(t *testing.T) {
	states := &memStateStore{states: make(map[string]*models.TenantBillingState)}
	dispatcher, claims := newTestDispatcher(states)

	event := claimedEvent(t, claims, "evt_1", string(models.EventPaymentFailed), "")
	require.Equal(t, OutcomeFailed, dispatcher.Dispatch(context.Background(), event))

	// A redelivery of a FAILED event gets a fresh claim and can succeed.
	result, err := claims.Claim(context.Background(), "evt_1", string(models.EventPaymentFailed), []byte("{}"))
	require.NoError(t, err)
	require.Equal(t, store.Claimed, result)

	event.TenantID = "tenant_1"
	event.Data.AttemptCount = 1
	assert.Equal(t, OutcomeProcessed, dispatcher.Dispatch(context.Background(), event))
	assert.Equal(t, models.ClaimStateProcessed, claims.states["evt_1"])
}
