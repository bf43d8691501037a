package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	analytichttp "github.com/molarlink/molarlink/internal/analytics/http"
	"github.com/molarlink/molarlink/internal/auth"
	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/billing"
	"github.com/molarlink/molarlink/internal/network"
	"github.com/molarlink/molarlink/internal/observability"
	"github.com/molarlink/molarlink/internal/referrals"
	"github.com/molarlink/molarlink/internal/shared"
	"github.com/molarlink/molarlink/internal/users"
	"github.com/molarlink/molarlink/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics

	PrincipalResolver *auth.PrincipalResolver

	AuthHandler      *auth.Handler
	AuthzHandler     *authz.Handler
	ReferralsHandler *referrals.Handler
	NetworkHandler   *network.Handler
	AnalyticsHandler *analytichttp.Handler
	BillingHandler   *billing.Handler
	UsersHandler     *users.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with MolarLink defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.PrincipalResolver != nil {
		r.Use(params.PrincipalResolver.Middleware)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.AuthzHandler != nil {
		r.Route("/authz", params.AuthzHandler.MountRoutes)
	}
	if params.ReferralsHandler != nil {
		r.Route("/referrals", params.ReferralsHandler.MountRoutes)
	}
	if params.NetworkHandler != nil {
		r.Route("/network", params.NetworkHandler.MountRoutes)
	}
	if params.AnalyticsHandler != nil {
		r.Route("/analytics", params.AnalyticsHandler.MountRoutes)
	}
	if params.BillingHandler != nil {
		r.Route("/billing", params.BillingHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
