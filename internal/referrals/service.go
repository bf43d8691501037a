package referrals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/platform/httpx"
)

// ErrInvalidTransition is returned when a status change does not follow the
// referral lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// Service provides business logic for referral operations. Route-level
// permission checks happen in the guard middleware; the service enforces
// per-record scoping, quota and lifecycle rules.
type Service struct {
	repo      Repository
	evaluator *authz.Evaluator
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a referral service.
func NewService(repo Repository, evaluator *authz.Evaluator, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		evaluator: evaluator,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// Create submits a new referral on behalf of the actor. The actor's
// subscription tier bounds how many referrals they may open per calendar
// month; -1 means unlimited.
func (s *Service) Create(ctx context.Context, actor *authz.Principal, req CreateReferralRequest) (*Referral, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	}

	limits := authz.LimitsFor(actor.Subscription)
	if limits.ReferralQuota >= 0 {
		windowStart := monthStart(s.now().UTC())
		used, err := s.repo.CountForUserSince(ctx, actor.UserID, windowStart)
		if err != nil {
			return nil, fmt.Errorf("count referrals: %w", err)
		}
		if used >= limits.ReferralQuota {
			return nil, fmt.Errorf("%w: monthly referral limit of %d reached", httpx.ErrQuotaExceeded, limits.ReferralQuota)
		}
	}

	now := s.now().UTC()
	ref := Referral{
		ID:              uuid.NewString(),
		PatientName:     req.PatientName,
		PatientEmail:    req.PatientEmail,
		ReferringUserID: actor.UserID,
		ProviderID:      req.ProviderID,
		Specialty:       req.Specialty,
		ToothNumber:     req.ToothNumber,
		Urgency:         Urgency(req.Urgency),
		Status:          StatusDraft,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, ref); err != nil {
		return nil, fmt.Errorf("create referral: %w", err)
	}

	s.logger.Info("referral created",
		slog.String("referral_id", ref.ID),
		slog.String("referring_user_id", actor.UserID),
		slog.String("urgency", string(ref.Urgency)))
	return &ref, nil
}

// Get fetches a single referral the actor is allowed to see.
func (s *Service) Get(ctx context.Context, actor *authz.Principal, id string) (*Referral, error) {
	ref, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canSee(actor, ref) {
		// Hide existence from actors outside the referral.
		return nil, httpx.ErrNotFound
	}
	return ref, nil
}

// List returns referrals visible to the actor. Holders of manage_referrals
// see every referral; everyone else sees only referrals they created or
// receive as the provider.
func (s *Service) List(ctx context.Context, actor *authz.Principal, req ListReferralsRequest) ([]Referral, int, error) {
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 25
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	if !s.evaluator.HasPermission(actor, authz.PermManageReferrals) {
		req.ScopeUserID = actor.UserID
	}
	return s.repo.List(ctx, req)
}

// Update applies partial edits. Creators may edit their own drafts; holders
// of manage_referrals may edit anything not yet terminal.
func (s *Service) Update(ctx context.Context, actor *authz.Principal, id string, req UpdateReferralRequest) (*Referral, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	}

	ref, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	manager := s.evaluator.HasPermission(actor, authz.PermManageReferrals)
	switch {
	case manager:
		if terminal(ref.Status) {
			return nil, fmt.Errorf("%w: referral is %s", httpx.ErrForbidden, ref.Status)
		}
	case ref.ReferringUserID == actor.UserID:
		if ref.Status != StatusDraft {
			return nil, fmt.Errorf("%w: only draft referrals can be edited", httpx.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("%w: not your referral", httpx.ErrForbidden)
	}

	if req.PatientName != nil {
		ref.PatientName = *req.PatientName
	}
	if req.PatientEmail != nil {
		ref.PatientEmail = req.PatientEmail
	}
	if req.Specialty != nil {
		ref.Specialty = *req.Specialty
	}
	if req.ToothNumber != nil {
		ref.ToothNumber = req.ToothNumber
	}
	if req.Urgency != nil {
		ref.Urgency = Urgency(*req.Urgency)
	}
	if req.Notes != nil {
		ref.Notes = req.Notes
	}
	ref.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, *ref); err != nil {
		return nil, fmt.Errorf("update referral: %w", err)
	}
	return ref, nil
}

// UpdateStatus moves a referral along its lifecycle. Creators send their own
// drafts; providers accept, decline and complete referrals addressed to
// them; manage_referrals overrides both.
func (s *Service) UpdateStatus(ctx context.Context, actor *authz.Principal, id string, req UpdateStatusRequest) (*Referral, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	}

	ref, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	target := Status(req.Status)
	if !CanTransition(ref.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ref.Status, target)
	}

	if !s.evaluator.HasPermission(actor, authz.PermManageReferrals) {
		switch target {
		case StatusSent:
			if ref.ReferringUserID != actor.UserID {
				return nil, fmt.Errorf("%w: only the referring dentist can send", httpx.ErrForbidden)
			}
		case StatusAccepted, StatusDeclined, StatusCompleted:
			if ref.ProviderID != actor.UserID {
				return nil, fmt.Errorf("%w: only the receiving provider can respond", httpx.ErrForbidden)
			}
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, target); err != nil {
		return nil, fmt.Errorf("update referral status: %w", err)
	}
	ref.Status = target
	ref.UpdatedAt = s.now().UTC()

	s.logger.Info("referral status changed",
		slog.String("referral_id", id),
		slog.String("status", string(target)),
		slog.String("actor_id", actor.UserID))
	return ref, nil
}

// Delete removes a referral. Creators may delete their own drafts; holders
// of manage_referrals may delete anything.
func (s *Service) Delete(ctx context.Context, actor *authz.Principal, id string) error {
	ref, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}

	if !s.evaluator.HasPermission(actor, authz.PermManageReferrals) {
		if ref.ReferringUserID != actor.UserID || ref.Status != StatusDraft {
			return fmt.Errorf("%w: only own drafts can be deleted", httpx.ErrForbidden)
		}
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) canSee(actor *authz.Principal, ref *Referral) bool {
	if s.evaluator.HasPermission(actor, authz.PermManageReferrals) {
		return true
	}
	return ref.ReferringUserID == actor.UserID || ref.ProviderID == actor.UserID
}

func terminal(st Status) bool {
	return st == StatusDeclined || st == StatusCompleted
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
