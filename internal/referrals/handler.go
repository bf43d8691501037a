package referrals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/platform/httpx"
	"github.com/molarlink/molarlink/internal/shared"
)

// Handler exposes the referral JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   authz.Guard
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers referral routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.PermViewReferrals))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Patch("/{id}/status", h.updateStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.PermCreateReferrals))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.PermViewReferrals))
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type listResponse struct {
	Referrals []Referral `json:"referrals"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := authz.PrincipalFromContext(r.Context())
	req := ListReferralsRequest{}

	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		st := Status(v)
		req.Status = &st
	}
	if v := q.Get("provider_id"); v != "" {
		req.ProviderID = &v
	}
	if v := q.Get("search"); v != "" {
		req.Search = &v
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.Offset = n
		}
	}

	refs, total, err := h.service.List(r.Context(), actor, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if refs == nil {
		refs = []Referral{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Referrals: refs,
		Total:     total,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor := authz.PrincipalFromContext(r.Context())
	ref, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ref)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor := authz.PrincipalFromContext(r.Context())
	var req CreateReferralRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	ref, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ref)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor := authz.PrincipalFromContext(r.Context())
	var req UpdateReferralRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	ref, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ref)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor := authz.PrincipalFromContext(r.Context())
	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	ref, err := h.service.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ref)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor := authz.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "referral not found")
	default:
		httpx.RespondError(w, err)
	}
}
