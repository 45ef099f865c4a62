package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relaygrid/billing-events/internal/models"
	"github.com/relaygrid/billing-events/internal/store"
)

// DeliveryPublisher hands a delivery id to the outbound queue. Implemented
// by the RabbitMQ-backed publisher in the outbound package.
type DeliveryPublisher interface {
	PublishDelivery(ctx context.Context, deliveryID string) error
}

// WebhookNotifier turns billing notices into outbound webhook deliveries.
// For each active subscription of the tenant whose filter matches the event
// type, it creates a durable delivery row and publishes it to the delivery
// queue. It never blocks on the actual HTTP calls; the retry scheduler
// executes those on its own schedule.
type WebhookNotifier struct {
	subscriptions store.SubscriptionStore
	deliveries    store.DeliveryStore
	publisher     DeliveryPublisher
	maxAttempts   int
	logger        *zap.Logger
}

// NewWebhookNotifier creates a notifier with dependencies.
func NewWebhookNotifier(
	subscriptions store.SubscriptionStore,
	deliveries store.DeliveryStore,
	publisher DeliveryPublisher,
	maxAttempts int,
	logger *zap.Logger,
) *WebhookNotifier {
	return &WebhookNotifier{
		subscriptions: subscriptions,
		deliveries:    deliveries,
		publisher:     publisher,
		maxAttempts:   maxAttempts,
		logger:        logger,
	}
}

// noticePayload is the JSON body delivered to tenant endpoints.
type noticePayload struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	TenantID   string `json:"tenant_id"`
	Notice     string `json:"notice"`
	OccurredAt string `json:"occurred_at"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, tenantID string, notice Notice, event *models.ProviderEvent) error {
	subs, err := n.subscriptions.ListActiveForTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions for tenant %s: %w", tenantID, err)
	}

	body, err := json.Marshal(noticePayload{
		EventID:    event.ID,
		EventType:  event.Type,
		TenantID:   tenantID,
		Notice:     string(notice),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notice payload: %w", err)
	}

	for i := range subs {
		sub := &subs[i]
		if !sub.WantsEvent(event.Type) {
			continue
		}

		delivery := &models.OutboundDelivery{
			SubscriptionID: sub.ID,
			EventID:        event.ID,
			EventType:      event.Type,
			TenantID:       tenantID,
			Payload:        string(body),
			Status:         models.DeliveryStatusPending,
			MaxAttempts:    n.maxAttempts,
			NextAttemptAt:  time.Now().UTC(),
		}
		if err := n.deliveries.CreateDelivery(ctx, delivery); err != nil {
			n.logger.Error("Failed to create outbound delivery",
				zap.String("tenant_id", tenantID),
				zap.String("event_id", event.ID),
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err),
			)
			continue
		}

		if err := n.publisher.PublishDelivery(ctx, delivery.ID.String()); err != nil {
			// Row is already durable; the pending sweep will pick it
			// up when next_attempt_at comes due.
			n.logger.Warn("Failed to publish delivery, leaving for sweep",
				zap.String("delivery_id", delivery.ID.String()),
				zap.Error(err),
			)
		}
	}

	return nil
}
