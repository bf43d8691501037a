package analytichttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/molarlink/molarlink/internal/analytics"
	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/platform/httpx"
)

const requestTimeout = 2 * time.Second

// AnalyticsService defines the dashboard data contract used by the handler.
type AnalyticsService interface {
	GetSummary(ctx context.Context, scopeUserID string) (analytics.Summary, error)
	GetTrend(ctx context.Context, scopeUserID string) ([]analytics.TrendPoint, error)
	GetTopSpecialties(ctx context.Context, scopeUserID string) ([]analytics.SpecialtyCount, error)
	Invalidate(ctx context.Context) error
}

// Handler coordinates HTTP requests for the referral analytics dashboard.
type Handler struct {
	logger  *slog.Logger
	service AnalyticsService
	guard   authz.Guard
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service AnalyticsService, guard authz.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// scopeFor limits non-admin actors to their own referral activity. Holders
// of manage_referrals (and super admins) see platform-wide aggregates.
func (h *Handler) scopeFor(p *authz.Principal) string {
	if h.guard.Evaluator.HasPermission(p, authz.PermManageReferrals) {
		return ""
	}
	return p.UserID
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	actor := authz.PrincipalFromContext(r.Context())
	summary, err := h.service.GetSummary(ctx, h.scopeFor(actor))
	if err != nil {
		h.logger.Error("analytics summary failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	actor := authz.PrincipalFromContext(r.Context())
	points, err := h.service.GetTrend(ctx, h.scopeFor(actor))
	if err != nil {
		h.logger.Error("analytics trend failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if points == nil {
		points = []analytics.TrendPoint{}
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"trend": points})
}

func (h *Handler) handleSpecialties(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	actor := authz.PrincipalFromContext(r.Context())
	out, err := h.service.GetTopSpecialties(ctx, h.scopeFor(actor))
	if err != nil {
		h.logger.Error("analytics specialties failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if out == nil {
		out = []analytics.SpecialtyCount{}
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"specialties": out})
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context()); err != nil {
		h.logger.Error("analytics invalidate failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
