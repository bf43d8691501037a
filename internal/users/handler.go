package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/platform/httpx"
)

// Handler exposes the user admin JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   authz.Guard
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers user admin routes. The whole surface requires
// manage_users.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.PermManageUsers))
		r.Get("/", h.list)
		r.Put("/{id}/role", h.assignRole)
	})
}

type listResponse struct {
	Users  []Account `json:"users"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListAccountsRequest{}

	q := r.URL.Query()
	if v := q.Get("role"); v != "" {
		req.Role = &v
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

	accounts, total, err := h.service.List(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Users:  accounts,
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actor := authz.PrincipalFromContext(r.Context())
	var req AssignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	if err := h.service.AssignRole(r.Context(), actor, chi.URLParam(r, "id"), req); err != nil {
		switch {
		case errors.Is(err, authz.ErrUnauthorized):
			httpx.Problem(w, http.StatusForbidden, "Access Denied", err.Error())
		case errors.Is(err, authz.ErrRoleNotFound):
			httpx.Problem(w, http.StatusBadRequest, "Unknown Role", err.Error())
		default:
			httpx.RespondError(w, err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
