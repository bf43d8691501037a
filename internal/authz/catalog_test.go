package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogBuiltinRoles(t *testing.T) {
	catalog := NewCatalog(nil)

	roles := catalog.List()
	require.Len(t, roles, 7)

	seen := make(map[int]RoleKey)
	for _, def := range roles {
		assert.GreaterOrEqual(t, def.Level, MinLevel)
		assert.LessOrEqual(t, def.Level, MaxLevel)
		_, dup := seen[def.Level]
		assert.False(t, dup, "duplicate level %d", def.Level)
		seen[def.Level] = def.Key
	}

	byAuthority := catalog.ListByAuthority()
	for i := 1; i < len(byAuthority); i++ {
		assert.Greater(t, byAuthority[i-1].Level, byAuthority[i].Level)
	}
	assert.Equal(t, RoleSuperAdmin, byAuthority[0].Key)
}

func TestCatalogCreateValidation(t *testing.T) {
	catalog := NewCatalog(nil)
	ctx := context.Background()

	err := catalog.Create(ctx, RoleDefinition{Key: "LAB_TECH", Name: "Lab Technician", Level: 8})
	assert.ErrorIs(t, err, ErrLevelOutOfRange)

	err = catalog.Create(ctx, RoleDefinition{Key: "LAB_TECH", Name: "Lab Technician", Level: 0})
	assert.ErrorIs(t, err, ErrLevelOutOfRange)

	err = catalog.Create(ctx, RoleDefinition{Key: RolePatient, Name: "Patient Again", Level: 1})
	assert.ErrorIs(t, err, ErrRoleExists)

	err = catalog.Create(ctx, RoleDefinition{
		Key: "LAB_TECH", Name: "Lab Technician", Level: 2,
		Permissions: []Permission{"made_up_permission"},
	})
	assert.ErrorIs(t, err, ErrUnknownPermission)

	err = catalog.Create(ctx, RoleDefinition{
		Key: "LAB_TECH", Name: "Lab Technician", Level: 2,
		Permissions: []Permission{PermViewReferrals},
	})
	require.NoError(t, err)

	def, ok := catalog.Get("LAB_TECH")
	require.True(t, ok)
	assert.Equal(t, 2, def.Level)
}

func TestCatalogSuperAdminImmutable(t *testing.T) {
	catalog := NewCatalog(nil)
	ctx := context.Background()

	assert.ErrorIs(t, catalog.Delete(ctx, RoleSuperAdmin), ErrRoleImmutable)

	_, err := catalog.TogglePermission(ctx, RoleSuperAdmin, PermManageUsers)
	assert.ErrorIs(t, err, ErrRoleImmutable)

	err = catalog.Update(ctx, RoleDefinition{Key: RoleSuperAdmin, Name: "Renamed", Level: 7})
	assert.ErrorIs(t, err, ErrRoleImmutable)
}

func TestTogglePermissionIdempotentInPairs(t *testing.T) {
	catalog := NewCatalog(nil)
	ctx := context.Background()

	before, ok := catalog.Get(RolePatient)
	require.True(t, ok)
	hadGrant := before.HasPermission(PermViewNetwork)

	granted, err := catalog.TogglePermission(ctx, RolePatient, PermViewNetwork)
	require.NoError(t, err)
	assert.Equal(t, !hadGrant, granted)

	granted, err = catalog.TogglePermission(ctx, RolePatient, PermViewNetwork)
	require.NoError(t, err)
	assert.Equal(t, hadGrant, granted)

	after, ok := catalog.Get(RolePatient)
	require.True(t, ok)
	assert.ElementsMatch(t, before.Permissions, after.Permissions)
}

func TestTogglePermissionRejectsUnknowns(t *testing.T) {
	catalog := NewCatalog(nil)
	ctx := context.Background()

	_, err := catalog.TogglePermission(ctx, "NOT_A_ROLE", PermViewNetwork)
	assert.ErrorIs(t, err, ErrRoleNotFound)

	_, err = catalog.TogglePermission(ctx, RolePatient, "not_a_permission")
	assert.ErrorIs(t, err, ErrUnknownPermission)
}

func TestCatalogSnapshotIsolation(t *testing.T) {
	catalog := NewCatalog(nil)
	ctx := context.Background()

	def, ok := catalog.Get(RolePatient)
	require.True(t, ok)

	// Mutating a returned snapshot must not leak into the catalog.
	def.Permissions = append(def.Permissions, PermManageSystem)

	fresh, ok := catalog.Get(RolePatient)
	require.True(t, ok)
	assert.False(t, fresh.HasPermission(PermManageSystem))

	_, err := catalog.TogglePermission(ctx, RolePatient, PermViewNetwork)
	require.NoError(t, err)
	assert.False(t, fresh.HasPermission(PermViewNetwork), "earlier snapshot must not observe later mutation")
}

func TestCatalogDeleteRole(t *testing.T) {
	catalog := NewCatalog(nil)
	ctx := context.Background()

	require.NoError(t, catalog.Delete(ctx, RolePatient))
	_, ok := catalog.Get(RolePatient)
	assert.False(t, ok)
	assert.ErrorIs(t, catalog.Delete(ctx, RolePatient), ErrRoleNotFound)
	assert.Len(t, catalog.List(), 6)
}
