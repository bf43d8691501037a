package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/platform/httpx"
)

const invoiceListLimit = 24

// SubscriptionView is what an account holder sees about their own plan.
type SubscriptionView struct {
	Tier   authz.Tier   `json:"tier"`
	Plan   *Plan        `json:"plan,omitempty"`
	Limits authz.Limits `json:"limits"`
}

// Service provides billing business logic. Tier authority lives in the
// binder: it alone decides who may grant which tier.
type Service struct {
	repo     Repository
	binder   *authz.Binder
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a billing service.
func NewService(repo Repository, binder *authz.Binder, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		binder:   binder,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// CurrentSubscription describes the actor's own plan and limits.
func (s *Service) CurrentSubscription(actor *authz.Principal) SubscriptionView {
	view := SubscriptionView{
		Tier:   actor.Subscription,
		Limits: authz.LimitsFor(actor.Subscription),
	}
	for _, plan := range Plans() {
		if plan.Tier == actor.Subscription {
			p := plan
			view.Plan = &p
			break
		}
	}
	return view
}

// ChangeTier moves a user to another tier via the binder and records an
// invoice for paid plans.
func (s *Service) ChangeTier(ctx context.Context, actor *authz.Principal, req ChangeTierRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	}

	tier := authz.Tier(req.Tier)
	if !authz.KnownTier(tier) {
		return fmt.Errorf("%w: unknown tier %q", httpx.ErrValidation, req.Tier)
	}

	if err := s.binder.UpdateSubscription(ctx, actor, req.UserID, tier); err != nil {
		return err
	}

	if plan := planFor(tier); plan != nil && plan.PriceCents > 0 {
		inv := Invoice{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			Tier:        tier,
			AmountCents: plan.PriceCents,
			Status:      "issued",
			IssuedAt:    s.now().UTC(),
		}
		if err := s.repo.InsertInvoice(ctx, inv); err != nil {
			// The binding already changed; surface the failure but leave the
			// subscription in place.
			s.logger.Error("invoice insert failed",
				slog.String("user_id", req.UserID),
				slog.String("error", err.Error()))
			return fmt.Errorf("record invoice: %w", err)
		}
	}

	s.logger.Info("subscription changed",
		slog.String("user_id", req.UserID),
		slog.String("tier", string(tier)),
		slog.String("actor_id", actor.UserID))
	return nil
}

// Invoices lists billing history. Users see their own; manage_billing sees
// anyone's.
func (s *Service) Invoices(ctx context.Context, actor *authz.Principal, userID string) ([]Invoice, error) {
	if userID == "" {
		userID = actor.UserID
	}
	if userID != actor.UserID && !s.binder.Evaluator().HasPermission(actor, authz.PermManageBilling) {
		return nil, httpx.ErrForbidden
	}
	return s.repo.ListInvoices(ctx, userID, invoiceListLimit)
}

func planFor(tier authz.Tier) *Plan {
	for _, plan := range Plans() {
		if plan.Tier == tier {
			p := plan
			return &p
		}
	}
	return nil
}
