package authz

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/molarlink/molarlink/internal/platform/httpx"
	"github.com/molarlink/molarlink/internal/shared"
)

// Handler exposes the role/permission admin surface plus the read-only views
// any signed-in principal may use (role badges, the permission matrix).
type Handler struct {
	logger    *slog.Logger
	catalog   *Catalog
	binder    *Binder
	guard     Guard
	audit     *shared.AuditLogger
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, catalog *Catalog, binder *Binder, guard Guard, audit *shared.AuditLogger) *Handler {
	return &Handler{
		logger:    logger,
		catalog:   catalog,
		binder:    binder,
		guard:     guard,
		audit:     audit,
		validator: validator.New(),
	}
}

// MountRoutes registers authz routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		// Read-only views are available to any resolved principal.
		r.Use(h.guard.Require(Requirement{}))
		r.Get("/me", h.showPrincipal)
		r.Get("/roles", h.listRoles)
		r.Get("/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(Requirement{Role: RoleSuperAdmin}))
		r.Post("/roles", h.createRole)
		r.Put("/roles/{key}", h.updateRole)
		r.Delete("/roles/{key}", h.deleteRole)
		r.Post("/roles/{key}/permissions/{perm}/toggle", h.togglePermission)
	})
}

type principalView struct {
	Principal *Principal      `json:"principal"`
	Limits    Limits          `json:"limits"`
	Sections  map[string]bool `json:"sections"`
}

func (h *Handler) showPrincipal(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	sections := make(map[string]bool, len(sectionPermissions))
	for section := range sectionPermissions {
		sections[section] = h.guard.Evaluator.CanEditSection(p, section)
	}
	httpx.JSON(w, http.StatusOK, principalView{
		Principal: p,
		Limits:    LimitsFor(p.Subscription),
		Sections:  sections,
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	var roles []RoleDefinition
	if r.URL.Query().Get("order") == "authority" {
		roles = h.catalog.ListByAuthority()
	} else {
		roles = h.catalog.List()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": PermissionsByCategory()})
}

type roleRequest struct {
	Key         string   `json:"key" validate:"required,max=50"`
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Level       int      `json:"level" validate:"required"`
	Permissions []string `json:"permissions"`
}

func (req roleRequest) definition() RoleDefinition {
	perms := make([]Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, Permission(p))
	}
	return RoleDefinition{
		Key:         RoleKey(req.Key),
		Name:        req.Name,
		Description: req.Description,
		Level:       req.Level,
		Permissions: perms,
	}
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireRoleManager(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	def := req.definition()
	if err := h.catalog.Create(r.Context(), def); err != nil {
		h.respondCatalogError(w, err)
		return
	}
	h.record(r, actor, "role.create", string(def.Key), map[string]any{"level": def.Level})
	httpx.JSON(w, http.StatusCreated, def)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireRoleManager(w, r)
	if !ok {
		return
	}
	key := RoleKey(chi.URLParam(r, "key"))
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	def := req.definition()
	def.Key = key
	if err := h.catalog.Update(r.Context(), def); err != nil {
		h.respondCatalogError(w, err)
		return
	}
	h.record(r, actor, "role.update", string(key), map[string]any{"level": def.Level})
	httpx.JSON(w, http.StatusOK, def)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireRoleManager(w, r)
	if !ok {
		return
	}
	key := RoleKey(chi.URLParam(r, "key"))
	if err := h.catalog.Delete(r.Context(), key); err != nil {
		h.respondCatalogError(w, err)
		return
	}
	h.record(r, actor, "role.delete", string(key), nil)
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": key})
}

func (h *Handler) togglePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireRoleManager(w, r)
	if !ok {
		return
	}
	key := RoleKey(chi.URLParam(r, "key"))
	perm := Permission(chi.URLParam(r, "perm"))
	granted, err := h.catalog.TogglePermission(r.Context(), key, perm)
	if err != nil {
		h.respondCatalogError(w, err)
		return
	}
	h.record(r, actor, "role.permission.toggle", string(key), map[string]any{
		"permission": string(perm),
		"granted":    granted,
	})
	httpx.JSON(w, http.StatusOK, map[string]any{"role": key, "permission": perm, "granted": granted})
}

// requireRoleManager re-checks manage_roles on top of the route guard. The
// route guard already requires SUPER_ADMIN; the evaluator check keeps the
// contract explicit if the route grouping ever changes.
func (h *Handler) requireRoleManager(w http.ResponseWriter, r *http.Request) (*Principal, bool) {
	actor := PrincipalFromContext(r.Context())
	if !h.guard.Evaluator.HasPermission(actor, PermManageRoles) {
		httpx.Problem(w, http.StatusForbidden, "Access Denied", "managing roles requires the manage_roles permission")
		return nil, false
	}
	return actor, true
}

func (h *Handler) respondCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoleImmutable):
		httpx.Problem(w, http.StatusForbidden, "Role Not Editable", err.Error())
	case errors.Is(err, ErrRoleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Role Not Found", err.Error())
	case errors.Is(err, ErrRoleExists):
		httpx.Problem(w, http.StatusConflict, "Role Exists", err.Error())
	case errors.Is(err, ErrLevelOutOfRange), errors.Is(err, ErrUnknownPermission):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnauthorized):
		httpx.Problem(w, http.StatusForbidden, "Access Denied", err.Error())
	default:
		h.logger.Error("catalog mutation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) record(r *http.Request, actor *Principal, action, entityID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "role",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil && h.logger != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}
