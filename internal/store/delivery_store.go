package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/relaygrid/billing-events/internal/models"
)

type gormDeliveryStore struct {
	db *gorm.DB
}

// NewDeliveryStore creates a DeliveryStore backed by GORM.
func NewDeliveryStore(db *gorm.DB) DeliveryStore {
	return &gormDeliveryStore{db: db}
}

func (s *gormDeliveryStore) CreateDelivery(ctx context.Context, delivery *models.OutboundDelivery) error {
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return fmt.Errorf("failed to create outbound delivery: %w", err)
	}
	return nil
}

func (s *gormDeliveryStore) RecordAttempt(ctx context.Context, attempt *models.OutboundDeliveryAttempt) error {
	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return nil
}

func (s *gormDeliveryStore) ListAttempts(ctx context.Context, eventID string, subscriptionID uuid.UUID) ([]models.OutboundDeliveryAttempt, error) {
	var attempts []models.OutboundDeliveryAttempt
	query := s.db.WithContext(ctx).Order("attempt_number ASC")
	if eventID != "" {
		query = query.Where("event_id = ?", eventID)
	}
	if subscriptionID != uuid.Nil {
		query = query.Where("subscription_id = ?", subscriptionID)
	}
	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	return attempts, nil
}
