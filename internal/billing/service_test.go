package billing

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
	invoices    []Invoice
	insertError error
}

func (m *mockRepository) ListInvoices(ctx context.Context, userID string, limit int) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.UserID == userID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *mockRepository) InsertInvoice(ctx context.Context, inv Invoice) error {
	if m.insertError != nil {
		return m.insertError
	}
	m.invoices = append(m.invoices, inv)
	return nil
}

func newTestService(t *testing.T) (*Service, *mockRepository, *mockBindingStore) {
	t.Helper()
	repo := &mockRepository{}
	store := &mockBindingStore{bindings: make(map[string]authz.StoredBinding)}
	binder := authz.NewBinder(authz.BinderConfig{
		Catalog: authz.NewCatalog(nil),
		Store:   store,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, binder, logger), repo, store
}

func principalFor(t *testing.T, userID string, role authz.RoleKey, tier authz.Tier) *authz.Principal {
	t.Helper()
	catalog := authz.NewCatalog(nil)
	def, ok := catalog.Get(role)
	require.True(t, ok)
	return &authz.Principal{
		UserID:       userID,
		Role:         role,
		Permissions:  def.Permissions,
		Subscription: tier,
		State:        authz.StateResolved,
	}
}

func TestCurrentSubscription(t *testing.T) {
	svc, _, _ := newTestService(t)
	actor := principalFor(t, "u1", authz.RoleReferringDentist, authz.TierProfessional)

	view := svc.CurrentSubscription(actor)
	assert.Equal(t, authz.TierProfessional, view.Tier)
	require.NotNil(t, view.Plan)
	assert.Equal(t, "Professional", view.Plan.Name)
	assert.Equal(t, 100, view.Limits.ReferralQuota)
}

func TestChangeTierRecordsInvoice(t *testing.T) {
	svc, repo, store := newTestService(t)
	actor := principalFor(t, "biller-1", authz.RoleBillingStaff, authz.TierStarter)

	err := svc.ChangeTier(context.Background(), actor, ChangeTierRequest{UserID: "u1", Tier: "professional"})
	require.NoError(t, err)

	assert.Equal(t, authz.TierProfessional, store.bindings["u1"].Subscription)
	require.Len(t, repo.invoices, 1)
	assert.Equal(t, 9900, repo.invoices[0].AmountCents)
	assert.Equal(t, "issued", repo.invoices[0].Status)
}

func TestChangeTierToStarterIsFree(t *testing.T) {
	svc, repo, _ := newTestService(t)
	actor := principalFor(t, "biller-1", authz.RoleBillingStaff, authz.TierStarter)

	err := svc.ChangeTier(context.Background(), actor, ChangeTierRequest{UserID: "u1", Tier: "starter"})
	require.NoError(t, err)
	assert.Empty(t, repo.invoices, "free tiers issue no invoice")
}

func TestChangeTierCelestialRequiresSuperAdmin(t *testing.T) {
	svc, _, store := newTestService(t)

	biller := principalFor(t, "biller-1", authz.RoleBillingStaff, authz.TierStarter)
	err := svc.ChangeTier(context.Background(), biller, ChangeTierRequest{UserID: "u1", Tier: "celestial"})
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
	assert.Empty(t, store.bindings)

	root := principalFor(t, "root-1", authz.RoleSuperAdmin, authz.TierCelestial)
	err = svc.ChangeTier(context.Background(), root, ChangeTierRequest{UserID: "u1", Tier: "celestial"})
	require.NoError(t, err)
	assert.Equal(t, authz.TierCelestial, store.bindings["u1"].Subscription)
}

func TestChangeTierUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)
	actor := principalFor(t, "biller-1", authz.RoleBillingStaff, authz.TierStarter)

	err := svc.ChangeTier(context.Background(), actor, ChangeTierRequest{UserID: "u1", Tier: "galactic"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestChangeTierWithoutPermission(t *testing.T) {
	svc, _, _ := newTestService(t)
	actor := principalFor(t, "dentist-1", authz.RoleReferringDentist, authz.TierStarter)

	err := svc.ChangeTier(context.Background(), actor, ChangeTierRequest{UserID: "u1", Tier: "professional"})
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
}

func TestInvoicesScoping(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.invoices = []Invoice{
		{ID: "i1", UserID: "u1", AmountCents: 9900},
		{ID: "i2", UserID: "u2", AmountCents: 9900},
	}

	owner := principalFor(t, "u1", authz.RoleReferringDentist, authz.TierProfessional)
	own, err := svc.Invoices(context.Background(), owner, "")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "i1", own[0].ID)

	_, err = svc.Invoices(context.Background(), owner, "u2")
	assert.ErrorIs(t, err, httpx.ErrForbidden)

	biller := principalFor(t, "biller-1", authz.RoleBillingStaff, authz.TierStarter)
	others, err := svc.Invoices(context.Background(), biller, "u2")
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, "i2", others[0].ID)
}
