package users

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/platform/httpx"
)

type mockBindingStore struct {
	bindings map[string]authz.StoredBinding
}

func (m *mockBindingStore) GetBinding(ctx context.Context, userID string) (authz.StoredBinding, error) {
	b, ok := m.bindings[userID]
	if !ok {
		return authz.StoredBinding{}, authz.ErrBindingNotFound
	}
	return b, nil
}

func (m *mockBindingStore) PutBinding(ctx context.Context, binding authz.StoredBinding) error {
	m.bindings[binding.UserID] = binding
	return nil
}

type mockRepository struct {
	accounts []Account
}

func (m *mockRepository) List(ctx context.Context, req ListAccountsRequest) ([]Account, int, error) {
	return m.accounts, len(m.accounts), nil
}

func newTestService(t *testing.T) (*Service, *mockBindingStore) {
	t.Helper()
	store := &mockBindingStore{bindings: make(map[string]authz.StoredBinding)}
	binder := authz.NewBinder(authz.BinderConfig{
		Catalog: authz.NewCatalog(nil),
		Store:   store,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(&mockRepository{}, binder, logger), store
}

func principalFor(t *testing.T, userID string, role authz.RoleKey) *authz.Principal {
	t.Helper()
	catalog := authz.NewCatalog(nil)
	def, ok := catalog.Get(role)
	require.True(t, ok)
	return &authz.Principal{
		UserID:      userID,
		Role:        role,
		Permissions: def.Permissions,
		State:       authz.StateResolved,
	}
}

func TestAssignRole(t *testing.T) {
	svc, store := newTestService(t)
	admin := principalFor(t, "admin-1", authz.RoleDentistAdmin)

	err := svc.AssignRole(context.Background(), admin, "u1", AssignRoleRequest{Role: "DENTAL_SPECIALIST"})
	require.NoError(t, err)
	assert.Equal(t, authz.RoleDentalSpecialist, store.bindings["u1"].Role)
}

func TestAssignRoleSuperAdminRestricted(t *testing.T) {
	svc, store := newTestService(t)

	admin := principalFor(t, "admin-1", authz.RoleDentistAdmin)
	err := svc.AssignRole(context.Background(), admin, "u1", AssignRoleRequest{Role: "SUPER_ADMIN"})
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
	assert.Empty(t, store.bindings)

	root := principalFor(t, "root-1", authz.RoleSuperAdmin)
	err = svc.AssignRole(context.Background(), root, "u1", AssignRoleRequest{Role: "SUPER_ADMIN"})
	require.NoError(t, err)
	assert.Equal(t, authz.RoleSuperAdmin, store.bindings["u1"].Role)
}

func TestAssignRoleUnknown(t *testing.T) {
	svc, _ := newTestService(t)
	admin := principalFor(t, "admin-1", authz.RoleDentistAdmin)

	err := svc.AssignRole(context.Background(), admin, "u1", AssignRoleRequest{Role: "WIZARD"})
	assert.ErrorIs(t, err, authz.ErrRoleNotFound)
}

func TestAssignRoleValidation(t *testing.T) {
	svc, _ := newTestService(t)
	admin := principalFor(t, "admin-1", authz.RoleDentistAdmin)

	err := svc.AssignRole(context.Background(), admin, "u1", AssignRoleRequest{})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestListClampsPagination(t *testing.T) {
	store := &mockBindingStore{bindings: make(map[string]authz.StoredBinding)}
	binder := authz.NewBinder(authz.BinderConfig{Catalog: authz.NewCatalog(nil), Store: store})
	repo := &mockRepository{accounts: []Account{{ID: "u1", Email: "u1@example.com"}}}
	svc := NewService(repo, binder, slog.New(slog.NewTextHandler(io.Discard, nil)))

	accounts, total, err := svc.List(context.Background(), ListAccountsRequest{Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, accounts, 1)
}
