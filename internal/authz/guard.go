package authz

import (
	"log/slog"
	"net/http"

	"github.com/molarlink/molarlink/internal/platform/httpx"
)

// Requirement declares the criteria a principal must satisfy. All supplied
// criteria are AND-ed; zero-value fields are vacuously satisfied.
type Requirement struct {
	Permission  Permission
	Role        RoleKey
	MinimumRole RoleKey
}

func (r Requirement) empty() bool {
	return r.Permission == "" && r.Role == "" && r.MinimumRole == ""
}

// Decision is the outcome of a guard check.
type Decision int

const (
	// DecisionResolving means the principal is not yet bound; callers must
	// not treat this as a denial.
	DecisionResolving Decision = iota
	DecisionAllow
	DecisionDeny
)

// Guard is the enforcement point gating protected handlers. Rendering-side
// checks in clients are a UX optimisation only; this is the authoritative
// check for every gated operation.
type Guard struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
	Observer  func(decision Decision)
}

// Check evaluates a requirement against a principal without touching the
// response. Used for conditional in-handler logic.
func (g Guard) Check(p *Principal, req Requirement) Decision {
	if !p.Resolved() {
		return DecisionResolving
	}
	if req.empty() {
		return DecisionAllow
	}
	if req.Permission != "" && !g.Evaluator.HasPermission(p, req.Permission) {
		return DecisionDeny
	}
	if req.Role != "" && !g.Evaluator.HasRole(p, req.Role) {
		return DecisionDeny
	}
	if req.MinimumRole != "" && !g.Evaluator.HasMinimumRole(p, req.MinimumRole) {
		return DecisionDeny
	}
	return DecisionAllow
}

// guardOptions collects per-route denial behaviour.
type guardOptions struct {
	fallback http.Handler
	silent   bool
}

// Option customises denial handling for a guarded route.
type Option func(*guardOptions)

// WithFallback serves the given handler instead of a denial response.
func WithFallback(h http.Handler) Option {
	return func(o *guardOptions) { o.fallback = h }
}

// Silent omits the denial notice entirely, responding 404 as if the route
// did not exist.
func Silent() Option {
	return func(o *guardOptions) { o.silent = true }
}

// Require returns middleware enforcing the requirement. An unresolved
// principal yields 401, never a false 403, so clients can distinguish
// "not signed in" from "denied".
func (g Guard) Require(req Requirement, opts ...Option) func(http.Handler) http.Handler {
	var options guardOptions
	for _, opt := range opts {
		opt(&options)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			decision := g.Check(p, req)
			if g.Observer != nil {
				g.Observer(decision)
			}
			switch decision {
			case DecisionAllow:
				next.ServeHTTP(w, r)
			case DecisionResolving:
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in to access this resource")
			default:
				if g.Logger != nil {
					g.Logger.Info("access denied",
						slog.String("path", r.URL.Path),
						slog.String("role", roleOf(p)),
					)
				}
				if options.fallback != nil {
					options.fallback.ServeHTTP(w, r)
					return
				}
				if options.silent {
					httpx.Problem(w, http.StatusNotFound, "Not Found", "")
					return
				}
				httpx.Problem(w, http.StatusForbidden, "Access Denied", "you do not have permission to access this resource")
			}
		})
	}
}

// RequirePermission is shorthand for a single-permission requirement.
func (g Guard) RequirePermission(perm Permission, opts ...Option) func(http.Handler) http.Handler {
	return g.Require(Requirement{Permission: perm}, opts...)
}

func roleOf(p *Principal) string {
	if p == nil {
		return ""
	}
	return string(p.Role)
}
