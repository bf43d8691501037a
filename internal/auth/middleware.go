package auth

import (
	"log/slog"
	"net/http"

	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/platform/httpx"
	"github.com/molarlink/molarlink/internal/shared"
)

// sessionEmailKey stores the signed-in email alongside the user ID so the
// binder receives the full identity on every request.
const sessionEmailKey = "user_email"

// PrincipalResolver binds the session user to an authorization principal on
// every request. Anonymous requests pass through with no principal; guards
// downstream translate that into 401.
type PrincipalResolver struct {
	Binder *authz.Binder
	Logger *slog.Logger
}

// Middleware resolves the principal and stores it in the request context.
func (pr *PrincipalResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := pr.Binder.Resolve(r.Context(), authz.Identity{
			ID:    sess.User(),
			Email: sess.Get(sessionEmailKey),
		})
		if err != nil {
			if pr.Logger != nil {
				pr.Logger.Error("resolve principal", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		ctx := authz.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
