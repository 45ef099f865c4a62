package outbound

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/relaygrid/billing-events/internal/models"
)

// Processing rows older than this are assumed orphaned by a crashed worker
// and re-armed by the sweep.
const staleProcessingAge = 5 * time.Minute

// lockDueDelivery locks and loads a delivery that is pending and due.
// Returns nil when the row doesn't exist, isn't pending, or isn't due yet;
// the caller acks and moves on.
func lockDueDelivery(tx *gorm.DB, deliveryID uuid.UUID, now time.Time) (*models.OutboundDelivery, error) {
	var delivery models.OutboundDelivery
	err := tx.Raw(`
		SELECT *
		FROM outbound_deliveries
		WHERE id = $1 AND status = 'pending' AND next_attempt_at <= $2
		FOR UPDATE
	`, deliveryID, now).Scan(&delivery).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock delivery: %w", err)
	}

	// Raw scans don't return ErrRecordNotFound; an empty id means no row
	// matched.
	if delivery.ID == uuid.Nil {
		return nil, nil
	}
	return &delivery, nil
}

func markDeliveryProcessing(tx *gorm.DB, deliveryID uuid.UUID) error {
	return tx.Model(&models.OutboundDelivery{}).
		Where("id = ?", deliveryID).
		Updates(map[string]interface{}{
			"status":     models.DeliveryStatusProcessing,
			"updated_at": time.Now().UTC(),
		}).Error
}

// revertDeliveryToPending re-arms a delivery after a transient internal
// error (e.g. subscription lookup failed) without consuming an attempt.
func revertDeliveryToPending(db *gorm.DB, deliveryID uuid.UUID, delay time.Duration) error {
	now := time.Now().UTC()
	return db.Model(&models.OutboundDelivery{}).
		Where("id = ?", deliveryID).
		Updates(map[string]interface{}{
			"status":          models.DeliveryStatusPending,
			"next_attempt_at": now.Add(delay),
			"updated_at":      now,
		}).Error
}

// abandonDelivery marks a delivery failed without recording an attempt.
// Used when the subscription is inactive: no request is made, so there is
// no attempt to audit.
func abandonDelivery(db *gorm.DB, deliveryID uuid.UUID, reason string) error {
	return db.Model(&models.OutboundDelivery{}).
		Where("id = ?", deliveryID).
		Updates(map[string]interface{}{
			"status":     models.DeliveryStatusFailed,
			"last_error": reason,
			"updated_at": time.Now().UTC(),
		}).Error
}

func updateDeliveryAfterAttempt(db *gorm.DB, deliveryID uuid.UUID, decision DeliveryDecision, attemptCount int) error {
	updates := map[string]interface{}{
		"status":        decision.Status,
		"attempt_count": attemptCount,
		"updated_at":    time.Now().UTC(),
	}
	if !decision.NextAttemptAt.IsZero() {
		updates["next_attempt_at"] = decision.NextAttemptAt
	}
	if decision.LastError != nil {
		updates["last_error"] = *decision.LastError
	}

	return db.Model(&models.OutboundDelivery{}).
		Where("id = ?", deliveryID).
		Updates(updates).Error
}

// findDueDeliveryIDs returns pending deliveries whose next attempt is due,
// for the sweep to republish.
func findDueDeliveryIDs(db *gorm.DB, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := db.Model(&models.OutboundDelivery{}).
		Where("status = ? AND next_attempt_at <= ?", models.DeliveryStatusPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find due deliveries: %w", err)
	}
	return ids, nil
}

// resetStaleProcessing re-arms deliveries stuck in processing, which
// happens when a worker dies between locking the row and recording the
// result.
func resetStaleProcessing(db *gorm.DB, now time.Time) (int64, error) {
	res := db.Model(&models.OutboundDelivery{}).
		Where("status = ? AND updated_at < ?", models.DeliveryStatusProcessing, now.Add(-staleProcessingAge)).
		Updates(map[string]interface{}{
			"status":          models.DeliveryStatusPending,
			"next_attempt_at": now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reset stale processing deliveries: %w", res.Error)
	}
	return res.RowsAffected, nil
}
