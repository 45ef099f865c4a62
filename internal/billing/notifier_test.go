package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaygrid/billing-events/internal/models"
)

type memSubscriptionStore struct {
	subs    []models.WebhookSubscription
	listErr error
}

func (s *memSubscriptionStore) Get(_ context.Context, id uuid.UUID) (*models.WebhookSubscription, error) {
	for i := range s.subs {
		if s.subs[i].ID == id {
			return &s.subs[i], nil
		}
	}
	return nil, errors.New("subscription not found")
}

func (s *memSubscriptionStore) ListActiveForTenant(_ context.Context, tenantID string) ([]models.WebhookSubscription, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var active []models.WebhookSubscription
	for _, sub := range s.subs {
		if sub.TenantID == tenantID && sub.Active {
			active = append(active, sub)
		}
	}
	return active, nil
}

type memDeliveryStore struct {
	deliveries []models.OutboundDelivery
	createErr  error
}

func (s *memDeliveryStore) CreateDelivery(_ context.Context, delivery *models.OutboundDelivery) error {
	if s.createErr != nil {
		return s.createErr
	}
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	s.deliveries = append(s.deliveries, *delivery)
	return nil
}

func (s *memDeliveryStore) RecordAttempt(_ context.Context, attempt *models.OutboundDeliveryAttempt) error {
	return nil
}

func (s *memDeliveryStore) ListAttempts(_ context.Context, _ string, _ uuid.UUID) ([]models.OutboundDeliveryAttempt, error) {
	return nil, nil
}

type memPublisher struct {
	published []string
	err       error
}

func (p *memPublisher) PublishDelivery(_ context.Context, deliveryID string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, deliveryID)
	return nil
}

func testEvent() *models.ProviderEvent {
	return &models.ProviderEvent{
		ID:       "evt_100",
		Type:     string(models.EventPaymentFailed),
		TenantID: "tenant_1",
	}
}

func TestNotify_FansOutToMatchingSubscriptions(t *testing.T) {
	subs := &memSubscriptionStore{subs: []models.WebhookSubscription{
		{ID: uuid.New(), TenantID: "tenant_1", URL: "https://a.example.com/hook", Active: true},
		{ID: uuid.New(), TenantID: "tenant_1", URL: "https://b.example.com/hook", Active: true, EventFilter: "payment_failed,payment_succeeded"},
		{ID: uuid.New(), TenantID: "tenant_1", URL: "https://c.example.com/hook", Active: true, EventFilter: "usage_updated"},
		{ID: uuid.New(), TenantID: "tenant_2", URL: "https://other.example.com/hook", Active: true},
	}}
	deliveries := &memDeliveryStore{}
	publisher := &memPublisher{}
	notifier := NewWebhookNotifier(subs, deliveries, publisher, 3, zap.NewNop())

	err := notifier.Notify(context.Background(), "tenant_1", NoticePaymentWarning, testEvent())
	require.NoError(t, err)

	// Empty filter matches everything; "usage_updated" filter does not
	// match payment_failed; tenant_2 is not fanned out.
	require.Len(t, deliveries.deliveries, 2)
	assert.Len(t, publisher.published, 2)

	for _, d := range deliveries.deliveries {
		assert.Equal(t, "evt_100", d.EventID)
		assert.Equal(t, "tenant_1", d.TenantID)
		assert.Equal(t, models.DeliveryStatusPending, d.Status)
		assert.Equal(t, 3, d.MaxAttempts)
		assert.Equal(t, 0, d.AttemptCount)
	}
}

func TestNotify_PayloadShape(t *testing.T) {
	subs := &memSubscriptionStore{subs: []models.WebhookSubscription{
		{ID: uuid.New(), TenantID: "tenant_1", URL: "https://a.example.com/hook", Active: true},
	}}
	deliveries := &memDeliveryStore{}
	notifier := NewWebhookNotifier(subs, deliveries, &memPublisher{}, 3, zap.NewNop())

	require.NoError(t, notifier.Notify(context.Background(), "tenant_1", NoticeAccountSoftLocked, testEvent()))
	require.Len(t, deliveries.deliveries, 1)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(deliveries.deliveries[0].Payload), &payload))
	assert.Equal(t, "evt_100", payload["event_id"])
	assert.Equal(t, "payment_failed", payload["event_type"])
	assert.Equal(t, "tenant_1", payload["tenant_id"])
	assert.Equal(t, "account_soft_locked", payload["notice"])
	assert.NotEmpty(t, payload["occurred_at"])
}

func TestNotify_NoSubscriptionsIsNoOp(t *testing.T) {
	deliveries := &memDeliveryStore{}
	publisher := &memPublisher{}
	notifier := NewWebhookNotifier(&memSubscriptionStore{}, deliveries, publisher, 3, zap.NewNop())

	require.NoError(t, notifier.Notify(context.Background(), "tenant_1", NoticePaymentWarning, testEvent()))
	assert.Empty(t, deliveries.deliveries)
	assert.Empty(t, publisher.published)
}

func TestNotify_PublishFailureLeavesDurableRow(t *testing.T) {
	subs := &memSubscriptionStore{subs: []models.WebhookSubscription{
		{ID: uuid.New(), TenantID: "tenant_1", URL: "https://a.example.com/hook", Active: true},
	}}
	deliveries := &memDeliveryStore{}
	publisher := &memPublisher{err: errors.New("broker down")}
	notifier := NewWebhookNotifier(subs, deliveries, publisher, 3, zap.NewNop())

	// The queue publish is best effort; the pending row is what the
	// sweep re-publishes later.
	require.NoError(t, notifier.Notify(context.Background(), "tenant_1", NoticePaymentWarning, testEvent()))
	assert.Len(t, deliveries.deliveries, 1)
}

func TestNotify_ListFailurePropagates(t *testing.T) {
	subs := &memSubscriptionStore{listErr: errors.New("connection refused")}
	notifier := NewWebhookNotifier(subs, &memDeliveryStore{}, &memPublisher{}, 3, zap.NewNop())

	err := notifier.Notify(context.Background(), "tenant_1", NoticePaymentWarning, testEvent())
	assert.Error(t, err)
}
