package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/platform/httpx"
)

// Service provides user administration logic. Role authority lives in the
// binder; this layer only validates and delegates.
type Service struct {
	repo     Repository
	binder   *authz.Binder
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs a user admin service.
func NewService(repo Repository, binder *authz.Binder, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		binder:   binder,
		validate: validator.New(),
		logger:   logger,
	}
}

// List returns platform users with their bindings.
func (s *Service) List(ctx context.Context, req ListAccountsRequest) ([]Account, int, error) {
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 25
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return s.repo.List(ctx, req)
}

// AssignRole rebinds a user to a new role via the binder, which enforces
// that only super admins hand out SUPER_ADMIN.
func (s *Service) AssignRole(ctx context.Context, actor *authz.Principal, subjectID string, req AssignRoleRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	}

	if err := s.binder.UpdateUserRole(ctx, actor, subjectID, authz.RoleKey(req.Role)); err != nil {
		return err
	}

	s.logger.Info("role assigned",
		slog.String("subject_id", subjectID),
		slog.String("role", req.Role),
		slog.String("actor_id", actor.UserID))
	return nil
}
