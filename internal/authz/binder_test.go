package authz_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molarlink/molarlink/internal/authz"
	_ "github.com/molarlink/molarlink/testing"
)

type memBindingStore struct {
	bindings map[string]authz.StoredBinding
}

func newMemBindingStore() *memBindingStore {
	return &memBindingStore{bindings: make(map[string]authz.StoredBinding)}
}

func (s *memBindingStore) GetBinding(ctx context.Context, userID string) (authz.StoredBinding, error) {
	b, ok := s.bindings[userID]
	if !ok {
		return authz.StoredBinding{}, authz.ErrBindingNotFound
	}
	return b, nil
}

func (s *memBindingStore) PutBinding(ctx context.Context, binding authz.StoredBinding) error {
	s.bindings[binding.UserID] = binding
	return nil
}

func newTestBinder(t *testing.T, store authz.BindingStore, withCache bool) (*authz.Binder, *authz.Catalog) {
	t.Helper()
	catalog := authz.NewCatalog(nil)
	cfg := authz.BinderConfig{
		Catalog: catalog,
		Store:   store,
		Root:    authz.RootIdentity{Email: "wgray@stloralsurgery.com", UserID: "super-admin"},
	}
	if withCache {
		mr := miniredis.RunT(t)
		cfg.Cache = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}
	return authz.NewBinder(cfg), catalog
}

func resolvedPrincipal(t *testing.T, b *authz.Binder, store *memBindingStore, userID string, role authz.RoleKey) *authz.Principal {
	t.Helper()
	require.NoError(t, store.PutBinding(context.Background(), authz.StoredBinding{
		UserID: userID, Role: role, Subscription: authz.TierProfessional,
	}))
	p, err := b.Resolve(context.Background(), authz.Identity{ID: userID, Email: userID + "@test.local"})
	require.NoError(t, err)
	return p
}

func TestResolveRootOverridesStoredBinding(t *testing.T) {
	store := newMemBindingStore()
	binder, _ := newTestBinder(t, store, false)
	ctx := context.Background()

	// A previously stored PATIENT assignment must not survive the override.
	require.NoError(t, store.PutBinding(ctx, authz.StoredBinding{
		UserID: "u1", Role: authz.RolePatient, Subscription: authz.TierStarter,
	}))

	p, err := binder.Resolve(ctx, authz.Identity{ID: "u1", Email: "wgray@stloralsurgery.com"})
	require.NoError(t, err)
	assert.True(t, p.Resolved())
	assert.Equal(t, authz.RoleSuperAdmin, p.Role)
	assert.Equal(t, authz.TierCelestial, p.Subscription)

	stored, err := store.GetBinding(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleSuperAdmin, stored.Role)
	assert.Equal(t, authz.TierCelestial, stored.Subscription)
}

func TestResolveRootByID(t *testing.T) {
	binder, _ := newTestBinder(t, newMemBindingStore(), false)

	p, err := binder.Resolve(context.Background(), authz.Identity{ID: "super-admin", Email: "someone@else.local"})
	require.NoError(t, err)
	assert.Equal(t, authz.RoleSuperAdmin, p.Role)
	assert.Equal(t, authz.TierCelestial, p.Subscription)
}

func TestResolveDefaultsForFreshUser(t *testing.T) {
	binder, catalog := newTestBinder(t, newMemBindingStore(), false)

	p, err := binder.Resolve(context.Background(), authz.Identity{ID: "fresh", Email: "fresh@test.local"})
	require.NoError(t, err)
	assert.True(t, p.Resolved())
	assert.Equal(t, authz.DefaultRole, p.Role)
	assert.Equal(t, authz.DefaultTier, p.Subscription)

	def, ok := catalog.Get(authz.DefaultRole)
	require.True(t, ok)
	assert.ElementsMatch(t, def.Permissions, p.Permissions)
}

func TestResolveStaleRoleFallsBack(t *testing.T) {
	store := newMemBindingStore()
	binder, _ := newTestBinder(t, store, false)
	ctx := context.Background()

	require.NoError(t, store.PutBinding(ctx, authz.StoredBinding{
		UserID: "u2", Role: "RETIRED_ROLE", Subscription: "bogus-tier",
	}))

	p, err := binder.Resolve(ctx, authz.Identity{ID: "u2", Email: "u2@test.local"})
	require.NoError(t, err)
	assert.Equal(t, authz.DefaultRole, p.Role)
	assert.Equal(t, authz.DefaultTier, p.Subscription)
}

func TestUpdateUserRoleSuperAdminGrantRestricted(t *testing.T) {
	store := newMemBindingStore()
	binder, catalog := newTestBinder(t, store, false)
	ctx := context.Background()

	// Every non-super-admin role must be refused, manage_users or not.
	for _, def := range catalog.List() {
		if def.Key == authz.RoleSuperAdmin {
			continue
		}
		actor := resolvedPrincipal(t, binder, store, "actor-"+string(def.Key), def.Key)
		err := binder.UpdateUserRole(ctx, actor, "subject", authz.RoleSuperAdmin)
		assert.ErrorIs(t, err, authz.ErrUnauthorized, "role %s must not grant SUPER_ADMIN", def.Key)
	}

	root, err := binder.Resolve(ctx, authz.Identity{ID: "super-admin", Email: "root@test.local"})
	require.NoError(t, err)
	require.NoError(t, binder.UpdateUserRole(ctx, root, "subject", authz.RoleSuperAdmin))

	stored, err := store.GetBinding(ctx, "subject")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleSuperAdmin, stored.Role)
}

func TestUpdateUserRoleRequiresManageUsers(t *testing.T) {
	store := newMemBindingStore()
	binder, _ := newTestBinder(t, store, false)

	specialist := resolvedPrincipal(t, binder, store, "spec1", authz.RoleDentalSpecialist)
	err := binder.UpdateUserRole(context.Background(), specialist, "subject", authz.RolePatient)
	assert.ErrorIs(t, err, authz.ErrUnauthorized)

	admin := resolvedPrincipal(t, binder, store, "admin1", authz.RoleDentistAdmin)
	assert.NoError(t, binder.UpdateUserRole(context.Background(), admin, "subject", authz.RolePatient))
}

func TestUpdateUserRoleUnknownRole(t *testing.T) {
	store := newMemBindingStore()
	binder, _ := newTestBinder(t, store, false)

	admin := resolvedPrincipal(t, binder, store, "admin1", authz.RoleDentistAdmin)
	err := binder.UpdateUserRole(context.Background(), admin, "subject", "NOT_A_ROLE")
	assert.ErrorIs(t, err, authz.ErrRoleNotFound)
}

func TestUpdateSubscriptionCelestialRestricted(t *testing.T) {
	store := newMemBindingStore()
	binder, _ := newTestBinder(t, store, false)
	ctx := context.Background()

	// Dentist admins hold manage_billing but still may not grant celestial.
	admin := resolvedPrincipal(t, binder, store, "admin1", authz.RoleDentistAdmin)
	err := binder.UpdateSubscription(ctx, admin, "subject", authz.TierCelestial)
	assert.ErrorIs(t, err, authz.ErrUnauthorized)

	require.NoError(t, binder.UpdateSubscription(ctx, admin, "subject", authz.TierEnterprise))
	stored, err := store.GetBinding(ctx, "subject")
	require.NoError(t, err)
	assert.Equal(t, authz.TierEnterprise, stored.Subscription)

	root, err := binder.Resolve(ctx, authz.Identity{ID: "super-admin", Email: "root@test.local"})
	require.NoError(t, err)
	require.NoError(t, binder.UpdateSubscription(ctx, root, "subject", authz.TierCelestial))
}

func TestUpdateSubscriptionUnknownTier(t *testing.T) {
	store := newMemBindingStore()
	binder, _ := newTestBinder(t, store, false)

	admin := resolvedPrincipal(t, binder, store, "admin1", authz.RoleDentistAdmin)
	err := binder.UpdateSubscription(context.Background(), admin, "subject", "platinum")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, authz.ErrUnauthorized)
}

func TestResolveUsesCacheAndInvalidation(t *testing.T) {
	store := newMemBindingStore()
	binder, _ := newTestBinder(t, store, true)
	ctx := context.Background()

	require.NoError(t, store.PutBinding(ctx, authz.StoredBinding{
		UserID: "u3", Role: authz.RoleOfficeManager, Subscription: authz.TierProfessional,
	}))

	p, err := binder.Resolve(ctx, authz.Identity{ID: "u3", Email: "u3@test.local"})
	require.NoError(t, err)
	require.Equal(t, authz.RoleOfficeManager, p.Role)

	// A role change through the binder must be visible on the next resolve
	// even though the first resolve populated the cache.
	root, err := binder.Resolve(ctx, authz.Identity{ID: "super-admin", Email: "root@test.local"})
	require.NoError(t, err)
	require.NoError(t, binder.UpdateUserRole(ctx, root, "u3", authz.RoleBillingStaff))

	p, err = binder.Resolve(ctx, authz.Identity{ID: "u3", Email: "u3@test.local"})
	require.NoError(t, err)
	assert.Equal(t, authz.RoleBillingStaff, p.Role)
}

func TestLimitsTable(t *testing.T) {
	assert.Equal(t, authz.Limits{ReferralQuota: 10, UserQuota: 3, FeatureTier: "basic"}, authz.LimitsFor(authz.TierStarter))
	assert.Equal(t, authz.Limits{ReferralQuota: 100, UserQuota: 10, FeatureTier: "advanced"}, authz.LimitsFor(authz.TierProfessional))
	assert.Equal(t, authz.Limits{ReferralQuota: -1, UserQuota: 50, FeatureTier: "premium"}, authz.LimitsFor(authz.TierEnterprise))
	assert.Equal(t, authz.Limits{ReferralQuota: -1, UserQuota: -1, FeatureTier: "celestial"}, authz.LimitsFor(authz.TierCelestial))

	// Unknown tiers collapse to the most restrictive envelope.
	assert.Equal(t, authz.LimitsFor(authz.TierStarter), authz.LimitsFor("bogus"))
}
