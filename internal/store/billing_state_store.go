package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/relaygrid/billing-events/internal/models"
)

type gormBillingStateStore struct {
	db *gorm.DB
}

// NewBillingStateStore creates a BillingStateStore backed by GORM.
func NewBillingStateStore(db *gorm.DB) BillingStateStore {
	return &gormBillingStateStore{db: db}
}

func (s *gormBillingStateStore) GetOrCreate(ctx context.Context, tenantID string) (*models.TenantBillingState, error) {
	state := models.TenantBillingState{
		TenantID: tenantID,
		Tier:     models.TierFree,
		Standing: models.StandingActive,
	}

	// Insert-if-absent then read back, so two concurrent first events for
	// a tenant converge on one row.
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoNothing: true,
	}).Create(&state)
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to create billing state: %w", tx.Error)
	}

	var stored models.TenantBillingState
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load billing state: %w", err)
	}
	return &stored, nil
}

// UpdateVersioned writes the state only if no concurrent writer advanced
// the row since it was read. The version bump doubles as the per-tenant
// sequencing check.
func (s *gormBillingStateStore) UpdateVersioned(ctx context.Context, state *models.TenantBillingState) error {
	res := s.db.WithContext(ctx).Model(&models.TenantBillingState{}).
		Where("tenant_id = ? AND version = ?", state.TenantID, state.Version).
		Updates(map[string]interface{}{
			"provider_customer_ref":     state.ProviderCustomerRef,
			"provider_subscription_ref": state.ProviderSubscriptionRef,
			"tier":                      state.Tier,
			"standing":                  state.Standing,
			"current_period_end":        state.CurrentPeriodEnd,
			"usage_units":               state.UsageUnits,
			"version":                   state.Version + 1,
			"updated_at":                time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update billing state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	state.Version++
	return nil
}
