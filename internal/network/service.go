package network

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/molarlink/molarlink/internal/platform/httpx"
)

// Service provides business logic for the provider directory.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
	titler   cases.Caser
	now      func() time.Time
}

// NewService constructs a directory service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
		titler:   cases.Title(language.English),
		now:      time.Now,
	}
}

// Create adds a provider to the directory. Names and locations are
// title-cased on the way in so search and display stay consistent regardless
// of how practices type them.
func (s *Service) Create(ctx context.Context, req CreateProviderRequest) (*Provider, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	}

	accepting := true
	if req.AcceptingReferrals != nil {
		accepting = *req.AcceptingReferrals
	}

	now := s.now().UTC()
	p := Provider{
		ID:                 uuid.NewString(),
		UserID:             req.UserID,
		Name:               s.normalizeName(req.Name),
		PracticeName:       s.normalizeName(req.PracticeName),
		Specialty:          s.normalizeName(req.Specialty),
		City:               s.normalizeName(req.City),
		State:              strings.ToUpper(strings.TrimSpace(req.State)),
		Phone:              req.Phone,
		Email:              req.Email,
		AcceptingReferrals: accepting,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	s.logger.Info("provider added to directory",
		slog.String("provider_id", p.ID),
		slog.String("specialty", p.Specialty))
	return &p, nil
}

// Get fetches a single directory entry.
func (s *Service) Get(ctx context.Context, id string) (*Provider, error) {
	return s.repo.GetByID(ctx, id)
}

// List searches the directory.
func (s *Service) List(ctx context.Context, req ListProvidersRequest) ([]Provider, int, error) {
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 25
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return s.repo.List(ctx, req)
}

// Update applies partial edits to a directory entry.
func (s *Service) Update(ctx context.Context, id string, req UpdateProviderRequest) (*Provider, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = s.normalizeName(*req.Name)
	}
	if req.PracticeName != nil {
		p.PracticeName = s.normalizeName(*req.PracticeName)
	}
	if req.Specialty != nil {
		p.Specialty = s.normalizeName(*req.Specialty)
	}
	if req.City != nil {
		p.City = s.normalizeName(*req.City)
	}
	if req.State != nil {
		p.State = strings.ToUpper(strings.TrimSpace(*req.State))
	}
	if req.Phone != nil {
		p.Phone = req.Phone
	}
	if req.Email != nil {
		p.Email = req.Email
	}
	if req.AcceptingReferrals != nil {
		p.AcceptingReferrals = *req.AcceptingReferrals
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, *p); err != nil {
		return nil, fmt.Errorf("update provider: %w", err)
	}
	return p, nil
}

// SetAccepting toggles whether a provider receives new referrals.
func (s *Service) SetAccepting(ctx context.Context, id string, accepting bool) (*Provider, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.AcceptingReferrals = accepting
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, *p); err != nil {
		return nil, fmt.Errorf("update provider: %w", err)
	}
	return p, nil
}

func (s *Service) normalizeName(v string) string {
	return s.titler.String(strings.TrimSpace(v))
}
