package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaygrid/billing-events/internal/models"
)

func TestTierFromPlanRef(t *testing.T) {
	tests := []struct {
		planRef string
		want    string
	}{
		{planRef: "plan_free", want: models.TierFree},
		{planRef: "plan_pro", want: models.TierPro},
		{planRef: "plan_enterprise", want: models.TierEnterprise},
		{planRef: "PLAN_PRO", want: models.TierPro},
		{planRef: " plan_enterprise ", want: models.TierEnterprise},
		{planRef: "plan_pro_monthly", want: models.TierPro},
		{planRef: "plan_enterprise_annual", want: models.TierEnterprise},
		{planRef: "plan_unknown", want: models.TierFree},
		{planRef: "", want: models.TierFree},
	}

	for _, tt := range tests {
		t.Run(tt.planRef, func(t *testing.T) {
			assert.Equal(t, tt.want, TierFromPlanRef(tt.planRef))
		})
	}
}

func TestStandingFromProviderStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{status: "active", want: models.StandingActive},
		{status: "trialing", want: models.StandingActive},
		{status: "past_due", want: models.StandingPastDue},
		{status: "unpaid", want: models.StandingUnpaid},
		{status: "canceled", want: models.StandingCanceled},
		{status: "cancelled", want: models.StandingCanceled},
		{status: "ACTIVE", want: models.StandingActive},
		{status: "something_new", want: models.StandingActive},
		{status: "", want: models.StandingActive},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, StandingFromProviderStatus(tt.status))
		})
	}
}
