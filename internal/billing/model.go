package billing

import (
	"time"

	"github.com/molarlink/molarlink/internal/authz"
)

// Plan describes a purchasable subscription tier.
type Plan struct {
	Tier         authz.Tier   `json:"tier"`
	Name         string       `json:"name"`
	PriceCents   int          `json:"price_cents"`
	BillingCycle string       `json:"billing_cycle"`
	Limits       authz.Limits `json:"limits"`
	Public       bool         `json:"public"`
}

// Plans is the fixed plan catalog. The celestial tier is not publicly
// purchasable; only a super admin can assign it.
func Plans() []Plan {
	return []Plan{
		{Tier: authz.TierStarter, Name: "Starter", PriceCents: 0, BillingCycle: "monthly", Limits: authz.LimitsFor(authz.TierStarter), Public: true},
		{Tier: authz.TierProfessional, Name: "Professional", PriceCents: 9900, BillingCycle: "monthly", Limits: authz.LimitsFor(authz.TierProfessional), Public: true},
		{Tier: authz.TierEnterprise, Name: "Enterprise", PriceCents: 29900, BillingCycle: "monthly", Limits: authz.LimitsFor(authz.TierEnterprise), Public: true},
		{Tier: authz.TierCelestial, Name: "Celestial", PriceCents: 0, BillingCycle: "none", Limits: authz.LimitsFor(authz.TierCelestial), Public: false},
	}
}

// Invoice is a billing record for a user account.
type Invoice struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Tier        authz.Tier `json:"tier" db:"tier"`
	AmountCents int        `json:"amount_cents" db:"amount_cents"`
	Status      string     `json:"status" db:"status"`
	IssuedAt    time.Time  `json:"issued_at" db:"issued_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty" db:"paid_at"`
}

// ChangeTierRequest asks to move a user to another subscription tier.
type ChangeTierRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Tier   string `json:"tier" validate:"required"`
}
