package authz

import "context"

// ResolutionState tracks the lifecycle of principal binding. Guards must
// treat anything other than StateResolved as "not yet known", never as a
// grant or a denial.
type ResolutionState int

const (
	StateUnresolved ResolutionState = iota
	StateResolving
	StateResolved
)

// Tier is the subscription level of the owning account. It gates quotas and
// features, orthogonal to role authority.
type Tier string

const (
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
	TierCelestial    Tier = "celestial"
)

// KnownTier reports whether t is a recognised subscription tier.
func KnownTier(t Tier) bool {
	switch t {
	case TierStarter, TierProfessional, TierEnterprise, TierCelestial:
		return true
	}
	return false
}

// Limits describes the quota envelope of a subscription tier.
// -1 denotes unlimited.
type Limits struct {
	ReferralQuota int    `json:"referral_quota"`
	UserQuota     int    `json:"user_quota"`
	FeatureTier   string `json:"feature_tier"`
}

var tierLimits = map[Tier]Limits{
	TierStarter:      {ReferralQuota: 10, UserQuota: 3, FeatureTier: "basic"},
	TierProfessional: {ReferralQuota: 100, UserQuota: 10, FeatureTier: "advanced"},
	TierEnterprise:   {ReferralQuota: -1, UserQuota: 50, FeatureTier: "premium"},
	TierCelestial:    {ReferralQuota: -1, UserQuota: -1, FeatureTier: "celestial"},
}

// LimitsFor returns the quota envelope for a tier, defaulting unknown tiers
// to the starter envelope.
func LimitsFor(t Tier) Limits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierStarter]
}

// Identity is the authenticated-identity event supplied by the auth collaborator.
type Identity struct {
	ID    string
	Email string
}

// Principal is the resolved actor: identity, role, copied permission set and
// subscription tier. It is passed explicitly to evaluator and guard calls;
// there is no ambient global.
type Principal struct {
	UserID       string          `json:"user_id"`
	Email        string          `json:"email"`
	Role         RoleKey         `json:"role"`
	Permissions  []Permission    `json:"permissions"`
	Subscription Tier            `json:"subscription"`
	State        ResolutionState `json:"-"`
}

// Resolved reports whether binding completed for this principal.
func (p *Principal) Resolved() bool {
	return p != nil && p.State == StateResolved
}

// IsSuperAdmin reports whether the principal holds the super admin role.
func (p *Principal) IsSuperAdmin() bool {
	return p != nil && p.Role == RoleSuperAdmin
}

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context, nil when absent.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
