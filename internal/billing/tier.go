package billing

import (
	"strings"

	"github.com/relaygrid/billing-events/internal/models"
)

// Known provider plan identifiers. Anything unmapped resolves to FREE so a
// renamed plan degrades entitlements instead of granting them.
var planTiers = map[string]string{
	"plan_free":       models.TierFree,
	"plan_pro":        models.TierPro,
	"plan_enterprise": models.TierEnterprise,
}

// TierFromPlanRef maps a provider plan identifier to an internal tier.
func TierFromPlanRef(planRef string) string {
	ref := strings.ToLower(strings.TrimSpace(planRef))
	if tier, ok := planTiers[ref]; ok {
		return tier
	}

	// Interval-suffixed variants like "plan_pro_monthly".
	switch {
	case strings.Contains(ref, "enterprise"):
		return models.TierEnterprise
	case strings.Contains(ref, "pro"):
		return models.TierPro
	default:
		return models.TierFree
	}
}

// StandingFromProviderStatus maps a provider subscription status to an
// internal standing.
func StandingFromProviderStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing":
		return models.StandingActive
	case "past_due":
		return models.StandingPastDue
	case "unpaid":
		return models.StandingUnpaid
	case "canceled", "cancelled":
		return models.StandingCanceled
	default:
		return models.StandingActive
	}
}
