package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/relaygrid/billing-events/internal/config"
	"github.com/relaygrid/billing-events/internal/models"
	"github.com/relaygrid/billing-events/internal/store"
)

// HandleDeliveryMessage executes one delivery attempt for a queued
// delivery id. The row lock plus the pending/due predicate makes attempts
// single-winner: a duplicate or early message finds nothing to lock and is
// acked without side effects.
func HandleDeliveryMessage(
	db *gorm.DB,
	subscriptions store.SubscriptionStore,
	deliveries store.DeliveryStore,
	cfg *config.OutboundConfig,
	logger *zap.Logger,
	deliveryIDStr string,
) error {
	deliveryID, err := uuid.Parse(deliveryIDStr)
	if err != nil {
		logger.Error("Invalid delivery_id in queue message",
			zap.String("delivery_id", deliveryIDStr),
			zap.Error(err),
		)
		// ACK: malformed message, nothing to retry.
		return nil
	}

	now := time.Now().UTC()

	var delivery *models.OutboundDelivery
	err = db.Transaction(func(tx *gorm.DB) error {
		var lockErr error
		delivery, lockErr = lockDueDelivery(tx, deliveryID, now)
		if lockErr != nil {
			return lockErr
		}
		if delivery == nil {
			return nil
		}
		return markDeliveryProcessing(tx, deliveryID)
	})
	if err != nil {
		logger.Error("Failed to lock delivery",
			zap.String("delivery_id", deliveryIDStr),
			zap.Error(err),
		)
		// NACK: lock contention or store trouble, the sweep re-arms it.
		return err
	}
	if delivery == nil {
		logger.Debug("Delivery not pending or not due, skipping",
			zap.String("delivery_id", deliveryIDStr),
		)
		return nil
	}

	sub, err := subscriptions.Get(context.Background(), delivery.SubscriptionID)
	if err != nil {
		// A deleted subscription can never be delivered to; re-arming it
		// would loop through the sweep forever without ever consuming an
		// attempt. Only transient store errors get the revert.
		if subscriptionGone(err) {
			logger.Info("Subscription no longer exists, abandoning delivery",
				zap.String("delivery_id", deliveryIDStr),
				zap.String("subscription_id", delivery.SubscriptionID.String()),
			)
			return abandonDelivery(db, deliveryID, "subscription not found")
		}

		logger.Error("Failed to load subscription for delivery, re-arming",
			zap.String("delivery_id", deliveryIDStr),
			zap.String("subscription_id", delivery.SubscriptionID.String()),
			zap.Error(err),
		)
		if revertErr := revertDeliveryToPending(db, deliveryID, time.Minute); revertErr != nil {
			return revertErr
		}
		return nil
	}

	// Inactive subscription: abort with no attempt recorded.
	if !sub.Active {
		logger.Info("Subscription inactive, abandoning delivery",
			zap.String("delivery_id", deliveryIDStr),
			zap.String("subscription_id", sub.ID.String()),
		)
		return abandonDelivery(db, deliveryID, "subscription inactive")
	}

	attemptNumber := delivery.AttemptCount + 1
	payload := []byte(delivery.Payload)

	result := DeliverWebhook(
		sub.URL,
		payload,
		sub.Secret,
		delivery.EventType,
		attemptNumber,
		cfg.HTTPTimeout,
		cfg.MaxResponseBodySize,
	)

	decision := ProcessDeliveryResult(result, attemptNumber, delivery.MaxAttempts)

	recordAttempt(context.Background(), deliveries, logger, delivery, attemptNumber, result, decision)

	if err := updateDeliveryAfterAttempt(db, deliveryID, decision, attemptNumber); err != nil {
		logger.Error("Failed to update delivery after attempt",
			zap.String("delivery_id", deliveryIDStr),
			zap.Error(err),
		)
		// NACK; the row is stuck in processing until the stale sweep
		// re-arms it.
		return err
	}

	switch decision.Status {
	case models.DeliveryStatusSucceeded:
		logger.Info("Webhook delivery succeeded",
			zap.String("delivery_id", deliveryIDStr),
			zap.String("event_id", delivery.EventID),
			zap.Int("attempt_number", attemptNumber),
			zap.Int("http_status", statusOrZero(result.HTTPStatus)),
			zap.Int("duration_ms", result.DurationMs),
		)
	case models.DeliveryStatusFailed:
		logger.Warn("Webhook delivery abandoned",
			zap.String("delivery_id", deliveryIDStr),
			zap.String("event_id", delivery.EventID),
			zap.Int("attempt_number", attemptNumber),
			zap.Stringp("last_error", decision.LastError),
		)
	default:
		logger.Info("Webhook delivery will be retried",
			zap.String("delivery_id", deliveryIDStr),
			zap.String("event_id", delivery.EventID),
			zap.Int("attempt_number", attemptNumber),
			zap.Time("next_attempt_at", decision.NextAttemptAt),
			zap.Stringp("last_error", decision.LastError),
		)
	}

	return nil
}

// subscriptionGone reports whether a subscription lookup failed because the
// row no longer exists. Subscriptions are soft-deleted, so reads scope a
// deleted row out and surface ErrRecordNotFound.
func subscriptionGone(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// recordAttempt appends the audit row for one attempt. The row is audit
// data: losing it is acceptable, blocking the delivery state update on it
// is not.
func recordAttempt(
	ctx context.Context,
	deliveries store.DeliveryStore,
	logger *zap.Logger,
	delivery *models.OutboundDelivery,
	attemptNumber int,
	result *DeliveryResult,
	decision DeliveryDecision,
) {
	attempt := &models.OutboundDeliveryAttempt{
		DeliveryID:          delivery.ID,
		SubscriptionID:      delivery.SubscriptionID,
		EventID:             delivery.EventID,
		EventType:           delivery.EventType,
		AttemptNumber:       attemptNumber,
		RequestBody:         delivery.Payload,
		ResponseStatus:      statusOrZero(result.HTTPStatus),
		ResponseBodyExcerpt: result.ResponseBodyExcerpt,
		DurationMs:          result.DurationMs,
		Success:             decision.Status == models.DeliveryStatusSucceeded,
	}
	if err := deliveries.RecordAttempt(ctx, attempt); err != nil {
		logger.Error("Failed to record delivery attempt",
			zap.String("delivery_id", delivery.ID.String()),
			zap.Int("attempt_number", attemptNumber),
			zap.Error(err),
		)
	}
}

func statusOrZero(status *int) int {
	if status == nil {
		return 0
	}
	return *status
}
