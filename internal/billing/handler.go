package billing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/platform/httpx"
)

// Handler exposes the billing JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   authz.Guard
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.PermViewBilling))
		r.Get("/plans", h.listPlans)
		r.Get("/subscription", h.showSubscription)
		r.Get("/invoices", h.listInvoices)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.PermManageBilling))
		r.Post("/subscription", h.changeTier)
	})
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	// Celestial stays off the public price list.
	var public []Plan
	for _, plan := range Plans() {
		if plan.Public {
			public = append(public, plan)
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"plans": public})
}

func (h *Handler) showSubscription(w http.ResponseWriter, r *http.Request) {
	actor := authz.PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, h.service.CurrentSubscription(actor))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	actor := authz.PrincipalFromContext(r.Context())
	invoices, err := h.service.Invoices(r.Context(), actor, r.URL.Query().Get("user_id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"invoices": invoices})
}

func (h *Handler) changeTier(w http.ResponseWriter, r *http.Request) {
	actor := authz.PrincipalFromContext(r.Context())
	var req ChangeTierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	if err := h.service.ChangeTier(r.Context(), actor, req); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, authz.ErrUnauthorized) {
		httpx.Problem(w, http.StatusForbidden, "Access Denied", err.Error())
		return
	}
	httpx.RespondError(w, err)
}
