package network

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

// Handler exposes the provider directory JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   authz.Guard
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.PermViewNetwork))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.PermManageNetwork))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Post("/{id}/accepting", h.setAccepting)
	})
}

type listResponse struct {
	Providers []Provider `json:"providers"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListProvidersRequest{}

	q := r.URL.Query()
	if v := q.Get("specialty"); v != "" {
		req.Specialty = &v
	}
	if v := q.Get("city"); v != "" {
		req.City = &v
	}
	if v := q.Get("search"); v != "" {
		req.Search = &v
	}
	req.AcceptingOnly = q.Get("accepting") == "true"
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

	providers, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if providers == nil {
		providers = []Provider{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Providers: providers,
		Total:     total,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateProviderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	p, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateProviderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	p, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

type acceptingRequest struct {
	Accepting bool `json:"accepting"`
}

func (h *Handler) setAccepting(w http.ResponseWriter, r *http.Request) {
	var req acceptingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	p, err := h.service.SetAccepting(r.Context(), chi.URLParam(r, "id"), req.Accepting)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "provider not found")
		return
	}
	httpx.RespondError(w, err)
}
