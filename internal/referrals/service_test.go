package referrals

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/platform/httpx"
	"github.com/molarlink/molarlink/internal/shared"
)

type mockRepository struct {
	referrals map[string]*Referral

	createError error
	countError  error
}

func newMockRepository() *mockRepository {
	return &mockRepository{referrals: make(map[string]*Referral)}
}

func (m *mockRepository) Create(ctx context.Context, ref Referral) error {
	if m.createError != nil {
		return m.createError
	}
	copied := ref
	m.referrals[ref.ID] = &copied
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, id string) (*Referral, error) {
	ref, ok := m.referrals[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *ref
	return &copied, nil
}

func (m *mockRepository) List(ctx context.Context, req ListReferralsRequest) ([]Referral, int, error) {
	var out []Referral
	for _, ref := range m.referrals {
		if req.ScopeUserID != "" && ref.ReferringUserID != req.ScopeUserID && ref.ProviderID != req.ScopeUserID {
			continue
		}
		if req.Status != nil && ref.Status != *req.Status {
			continue
		}
		out = append(out, *ref)
	}
	return out, len(out), nil
}

func (m *mockRepository) Update(ctx context.Context, ref Referral) error {
	if _, ok := m.referrals[ref.ID]; !ok {
		return shared.ErrNotFound
	}
	copied := ref
	m.referrals[ref.ID] = &copied
	return nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	ref, ok := m.referrals[id]
	if !ok {
		return shared.ErrNotFound
	}
	ref.Status = status
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.referrals[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.referrals, id)
	return nil
}

func (m *mockRepository) CountForUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	if m.countError != nil {
		return 0, m.countError
	}
	count := 0
	for _, ref := range m.referrals {
		if ref.ReferringUserID == userID && !ref.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func newTestService(repo Repository) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := authz.NewCatalog(nil)
	return NewService(repo, authz.NewEvaluator(catalog), logger)
}

func principalFor(t *testing.T, userID string, role authz.RoleKey, tier authz.Tier) *authz.Principal {
	t.Helper()
	catalog := authz.NewCatalog(nil)
	def, ok := catalog.Get(role)
	require.True(t, ok, "role %s must exist", role)
	return &authz.Principal{
		UserID:       userID,
		Email:        userID + "@example.com",
		Role:         role,
		Permissions:  def.Permissions,
		Subscription: tier,
		State:        authz.StateResolved,
	}
}

func validCreateRequest() CreateReferralRequest {
	return CreateReferralRequest{
		PatientName: "Ada Morales",
		ProviderID:  "specialist-1",
		Specialty:   "Oral Surgery",
		Urgency:     "routine",
	}
}

func TestCreateReferral(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	actor := principalFor(t, "dentist-1", authz.RoleReferringDentist, authz.TierStarter)

	ref, err := svc.Create(context.Background(), actor, validCreateRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ID)
	assert.Equal(t, StatusDraft, ref.Status)
	assert.Equal(t, "dentist-1", ref.ReferringUserID)
	assert.Equal(t, UrgencyRoutine, ref.Urgency)
	assert.Len(t, repo.referrals, 1)
}

func TestCreateReferralValidation(t *testing.T) {
	svc := newTestService(newMockRepository())
	actor := principalFor(t, "dentist-1", authz.RoleReferringDentist, authz.TierStarter)

	req := validCreateRequest()
	req.PatientName = ""
	_, err := svc.Create(context.Background(), actor, req)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	req = validCreateRequest()
	req.Urgency = "asap"
	_, err = svc.Create(context.Background(), actor, req)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	req = validCreateRequest()
	tooth := 33
	req.ToothNumber = &tooth
	_, err = svc.Create(context.Background(), actor, req)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateReferralQuota(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	actor := principalFor(t, "dentist-1", authz.RoleReferringDentist, authz.TierStarter)

	limit := authz.LimitsFor(authz.TierStarter).ReferralQuota
	for i := 0; i < limit; i++ {
		_, err := svc.Create(context.Background(), actor, validCreateRequest())
		require.NoError(t, err)
	}

	_, err := svc.Create(context.Background(), actor, validCreateRequest())
	assert.ErrorIs(t, err, httpx.ErrQuotaExceeded)
}

func TestCreateReferralUnlimitedTier(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	actor := principalFor(t, "admin-1", authz.RoleDentistAdmin, authz.TierEnterprise)

	starterLimit := authz.LimitsFor(authz.TierStarter).ReferralQuota
	for i := 0; i < starterLimit+5; i++ {
		_, err := svc.Create(context.Background(), actor, validCreateRequest())
		require.NoError(t, err)
	}
	assert.Len(t, repo.referrals, starterLimit+5)
}

func TestCreateReferralQuotaResetsMonthly(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	actor := principalFor(t, "dentist-1", authz.RoleReferringDentist, authz.TierStarter)

	lastMonth := time.Now().UTC().AddDate(0, -1, 0)
	svc.now = func() time.Time { return lastMonth }
	limit := authz.LimitsFor(authz.TierStarter).ReferralQuota
	for i := 0; i < limit; i++ {
		_, err := svc.Create(context.Background(), actor, validCreateRequest())
		require.NoError(t, err)
	}

	svc.now = time.Now
	_, err := svc.Create(context.Background(), actor, validCreateRequest())
	assert.NoError(t, err, "last month's referrals must not count against this month")
}

func TestGetReferralScoping(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	creator := principalFor(t, "dentist-1", authz.RoleReferringDentist, authz.TierStarter)

	ref, err := svc.Create(context.Background(), creator, validCreateRequest())
	require.NoError(t, err)

	// The creator and the receiving provider can read it.
	got, err := svc.Get(context.Background(), creator, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, ref.ID, got.ID)

	provider := principalFor(t, "specialist-1", authz.RoleDentalSpecialist, authz.TierProfessional)
	_, err = svc.Get(context.Background(), provider, ref.ID)
	assert.NoError(t, err)

	// A stranger gets not-found, not forbidden.
	stranger := principalFor(t, "dentist-2", authz.RoleReferringDentist, authz.TierStarter)
	_, err = svc.Get(context.Background(), stranger, ref.ID)
	assert.ErrorIs(t, err, httpx.ErrNotFound)

	// Office managers hold manage_referrals and see everything.
	manager := principalFor(t, "manager-1", authz.RoleOfficeManager, authz.TierProfessional)
	_, err = svc.Get(context.Background(), manager, ref.ID)
	assert.NoError(t, err)
}

func TestListReferralScoping(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	dentist1 := principalFor(t, "dentist-1", authz.RoleReferringDentist, authz.TierStarter)
	dentist2 := principalFor(t, "dentist-2", authz.RoleReferringDentist, authz.TierStarter)
	_, err := svc.Create(context.Background(), dentist1, validCreateRequest())
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), dentist2, validCreateRequest())
	require.NoError(t, err)

	refs, total, err := svc.List(context.Background(), dentist1, ListReferralsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, refs, 1)
	assert.Equal(t, "dentist-1", refs[0].ReferringUserID)

	manager := principalFor(t, "manager-1", authz.RoleOfficeManager, authz.TierProfessional)
	_, total, err = svc.List(context.Background(), manager, ListReferralsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// The provider sees referrals addressed to them.
	provider := principalFor(t, "specialist-1", authz.RoleDentalSpecialist, authz.TierProfessional)
	_, total, err = svc.List(context.Background(), provider, ListReferralsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestUpdateReferral(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	creator := principalFor(t, "dentist-1", authz.RoleReferringDentist, authz.TierStarter)

	ref, err := svc.Create(context.Background(), creator, validCreateRequest())
	require.NoError(t, err)

	name := "Grace Idowu"
	updated, err := svc.Update(context.Background(), creator, ref.ID, UpdateReferralRequest{PatientName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Grace Idowu", updated.PatientName)

	// Once sent, the creator can no longer edit.
	_, err = svc.UpdateStatus(context.Background(), creator, ref.ID, UpdateStatusRequest{Status: "sent"})
	require.NoError(t, err)
	_, err = svc.Update(context.Background(), creator, ref.ID, UpdateReferralRequest{PatientName: &name})
	assert.ErrorIs(t, err, httpx.ErrForbidden)

	// A manager still can.
	manager := principalFor(t, "manager-1", authz.RoleOfficeManager, authz.TierProfessional)
	_, err = svc.Update(context.Background(), manager, ref.ID, UpdateReferralRequest{PatientName: &name})
	assert.NoError(t, err)
}

func TestStatusLifecycle(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	creator := principalFor(t, "dentist-1", authz.RoleReferringDentist, authz.TierStarter)
	provider := principalFor(t, "specialist-1", authz.RoleDentalSpecialist, authz.TierProfessional)

	ref, err := svc.Create(context.Background(), creator, validCreateRequest())
	require.NoError(t, err)

	// Draft cannot jump straight to completed.
	_, err = svc.UpdateStatus(context.Background(), creator, ref.ID, UpdateStatusRequest{Status: "completed"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Only the creator sends.
	_, err = svc.UpdateStatus(context.Background(), provider, ref.ID, UpdateStatusRequest{Status: "sent"})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
	_, err = svc.UpdateStatus(context.Background(), creator, ref.ID, UpdateStatusRequest{Status: "sent"})
	require.NoError(t, err)

	// Only the receiving provider accepts.
	_, err = svc.UpdateStatus(context.Background(), creator, ref.ID, UpdateStatusRequest{Status: "accepted"})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
	got, err := svc.UpdateStatus(context.Background(), provider, ref.ID, UpdateStatusRequest{Status: "accepted"})
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)

	got, err = svc.UpdateStatus(context.Background(), provider, ref.ID, UpdateStatusRequest{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	// Completed is terminal.
	_, err = svc.UpdateStatus(context.Background(), provider, ref.ID, UpdateStatusRequest{Status: "sent"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeleteReferral(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	creator := principalFor(t, "dentist-1", authz.RoleReferringDentist, authz.TierStarter)

	ref, err := svc.Create(context.Background(), creator, validCreateRequest())
	require.NoError(t, err)

	// Sent referrals cannot be deleted by the creator.
	_, err = svc.UpdateStatus(context.Background(), creator, ref.ID, UpdateStatusRequest{Status: "sent"})
	require.NoError(t, err)
	err = svc.Delete(context.Background(), creator, ref.ID)
	assert.ErrorIs(t, err, httpx.ErrForbidden)

	manager := principalFor(t, "manager-1", authz.RoleOfficeManager, authz.TierProfessional)
	err = svc.Delete(context.Background(), manager, ref.ID)
	require.NoError(t, err)
	assert.Empty(t, repo.referrals)
}

func TestCreateReferralRepoError(t *testing.T) {
	repo := newMockRepository()
	repo.countError = errors.New("db down")
	svc := newTestService(repo)
	actor := principalFor(t, "dentist-1", authz.RoleReferringDentist, authz.TierStarter)

	_, err := svc.Create(context.Background(), actor, validCreateRequest())
	assert.Error(t, err)
}
