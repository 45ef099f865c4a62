package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/relaygrid/billing-events/internal/models"
)

type gormClaimStore struct {
	db *gorm.DB
}

// NewClaimStore creates a ClaimStore backed by GORM.
func NewClaimStore(db *gorm.DB) ClaimStore {
	return &gormClaimStore{db: db}
}

// Claim inserts the claim row with ON CONFLICT DO NOTHING on the event id.
// Insert-before-process is the core correctness mechanism: claiming happens
// strictly before any state-machine mutation, so two concurrent deliveries
// of the same event cannot both pass a check-then-act race.
//
// A conflicting row in FAILED state is eligible for takeover: a provider
// redelivery after a transient dispatch failure re-claims it instead of
// being swallowed as a duplicate. The conditional UPDATE keeps the takeover
// single-winner under concurrency.
func (s *gormClaimStore) Claim(ctx context.Context, eventID, eventType string, rawPayload []byte) (ClaimResult, error) {
	now := time.Now().UTC()
	event := models.InboundEvent{
		EventID:    eventID,
		EventType:  eventType,
		ReceivedAt: now,
		RawPayload: rawPayload,
		ClaimState: models.ClaimStateClaimed,
	}

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&event)
	if tx.Error != nil {
		return AlreadyClaimed, fmt.Errorf("failed to insert claim: %w", tx.Error)
	}
	if tx.RowsAffected > 0 {
		return Claimed, nil
	}

	takeover := s.db.WithContext(ctx).Model(&models.InboundEvent{}).
		Where("event_id = ? AND claim_state = ?", eventID, models.ClaimStateFailed).
		Updates(map[string]interface{}{
			"claim_state":          models.ClaimStateClaimed,
			"received_at":          now,
			"http_status_recorded": nil,
			"response_summary":     nil,
			"updated_at":           now,
		})
	if takeover.Error != nil {
		return AlreadyClaimed, fmt.Errorf("failed to re-claim failed event: %w", takeover.Error)
	}
	if takeover.RowsAffected > 0 {
		return Claimed, nil
	}

	return AlreadyClaimed, nil
}

func (s *gormClaimStore) MarkProcessed(ctx context.Context, eventID string, httpStatus int, summary string) error {
	return s.finalize(ctx, eventID, models.ClaimStateProcessed, httpStatus, summary)
}

func (s *gormClaimStore) MarkFailed(ctx context.Context, eventID string, httpStatus int, summary string) error {
	return s.finalize(ctx, eventID, models.ClaimStateFailed, httpStatus, summary)
}

func (s *gormClaimStore) finalize(ctx context.Context, eventID, state string, httpStatus int, summary string) error {
	err := s.db.WithContext(ctx).Model(&models.InboundEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"claim_state":          state,
			"http_status_recorded": httpStatus,
			"response_summary":     summary,
			"updated_at":           time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark claim %s: %w", state, err)
	}
	return nil
}
