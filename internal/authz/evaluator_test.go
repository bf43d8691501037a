package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func principalWithRole(t *testing.T, catalog *Catalog, role RoleKey) *Principal {
	t.Helper()
	def, ok := catalog.Get(role)
	require.True(t, ok, "role %s must exist in catalog", role)
	return &Principal{
		UserID:       "u-" + string(role),
		Email:        string(role) + "@test.local",
		Role:         role,
		Permissions:  def.Permissions,
		Subscription: TierStarter,
		State:        StateResolved,
	}
}

func TestHasMinimumRoleReflexive(t *testing.T) {
	catalog := NewCatalog(nil)
	eval := NewEvaluator(catalog)

	for _, def := range catalog.List() {
		p := principalWithRole(t, catalog, def.Key)
		assert.True(t, eval.HasMinimumRole(p, def.Key), "role %s must satisfy its own minimum", def.Key)
	}
}

func TestHasMinimumRoleOrdering(t *testing.T) {
	catalog := NewCatalog(nil)
	eval := NewEvaluator(catalog)
	roles := catalog.List()

	for _, higher := range roles {
		for _, lower := range roles {
			if higher.Level <= lower.Level {
				continue
			}
			hp := principalWithRole(t, catalog, higher.Key)
			lp := principalWithRole(t, catalog, lower.Key)
			assert.True(t, eval.HasMinimumRole(hp, lower.Key),
				"%s (level %d) must satisfy minimum %s (level %d)", higher.Key, higher.Level, lower.Key, lower.Level)
			assert.False(t, eval.HasMinimumRole(lp, higher.Key),
				"%s (level %d) must not satisfy minimum %s (level %d)", lower.Key, lower.Level, higher.Key, higher.Level)
		}
	}
}

func TestHasMinimumRoleUnknownFailsClosed(t *testing.T) {
	catalog := NewCatalog(nil)
	eval := NewEvaluator(catalog)

	p := principalWithRole(t, catalog, RoleDentistAdmin)
	assert.False(t, eval.HasMinimumRole(p, "NOT_A_ROLE"))

	ghost := &Principal{Role: "NOT_A_ROLE", State: StateResolved}
	assert.False(t, eval.HasMinimumRole(ghost, RolePatient))
}

func TestSuperAdminPermissionBypass(t *testing.T) {
	catalog := NewCatalog(nil)
	eval := NewEvaluator(catalog)

	// Strip the catalog permission list entirely; the bypass must not depend on it.
	p := &Principal{Role: RoleSuperAdmin, Permissions: nil, State: StateResolved}

	for _, info := range AllPermissions() {
		assert.True(t, eval.HasPermission(p, info.Key))
	}
	assert.True(t, eval.HasPermission(p, Permission("never_granted_anywhere")))
	assert.True(t, eval.HasMinimumRole(p, RoleDentistAdmin))
}

func TestHasPermissionNonAdmin(t *testing.T) {
	catalog := NewCatalog(nil)
	eval := NewEvaluator(catalog)

	specialist := principalWithRole(t, catalog, RoleDentalSpecialist)
	assert.True(t, eval.HasPermission(specialist, PermViewAnalytics))
	assert.False(t, eval.HasPermission(specialist, PermManageBilling))
	assert.False(t, eval.HasPermission(nil, PermViewAnalytics))
}

func TestHasRoleExactMatch(t *testing.T) {
	catalog := NewCatalog(nil)
	eval := NewEvaluator(catalog)

	p := principalWithRole(t, catalog, RoleReferringDentist)
	assert.True(t, eval.HasRole(p, RoleReferringDentist))
	assert.False(t, eval.HasRole(p, RoleDentistAdmin))
}

func TestCanEditSection(t *testing.T) {
	catalog := NewCatalog(nil)
	eval := NewEvaluator(catalog)

	admin := principalWithRole(t, catalog, RoleDentistAdmin)
	assert.True(t, eval.CanEditSection(admin, "billing"))
	assert.True(t, eval.CanEditSection(admin, "user-management"))
	assert.False(t, eval.CanEditSection(admin, "system"))

	// Unknown sections fail closed for every role, super admin included.
	for _, def := range catalog.List() {
		p := principalWithRole(t, catalog, def.Key)
		assert.False(t, eval.CanEditSection(p, "unknown-section"), "role %s", def.Key)
	}
}
