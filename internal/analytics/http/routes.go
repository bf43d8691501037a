package analytichttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/molarlink/molarlink/internal/authz"
)

// MountRoutes registers referral analytics endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(30, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Group(func(gr chi.Router) {
		gr.Use(h.guard.RequirePermission(authz.PermViewAnalytics))
		gr.Use(limiter)
		gr.Get("/summary", h.handleSummary)
		gr.Get("/trend", h.handleTrend)
		gr.Get("/specialties", h.handleSpecialties)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.guard.RequirePermission(authz.PermManageSystem))
		gr.Post("/invalidate", h.handleInvalidate)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p := authz.PrincipalFromContext(r.Context()); p.Resolved() {
		return "user:" + p.UserID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
