package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/lattice-ai/authcore/internal/audit/http"
	"github.com/lattice-ai/authcore/internal/authz"
	"github.com/lattice-ai/authcore/internal/observability"
	"github.com/lattice-ai/authcore/internal/registry"
)

// Platform resource guarded by the core's own decision path. The registry
// and the audit trail are singleton resources owned by the platform tenant.
const (
	ResourceTypeRegistry = "registry"
	ResourceTypeAudit    = "audit"
	PlatformResourceID   = "platform"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthzHandler    *authz.Handler
	RegistryHandler *registry.Handler
	AuditHandler    *audithttp.Handler
	AdminGuard      authz.Middleware
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router for the decision service.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		params.AuthzHandler.MountRoutes(r)

		if params.RegistryHandler != nil {
			r.Route("/registry", func(r chi.Router) {
				r.Use(params.AdminGuard.Require("manage", ResourceTypeRegistry, PlatformResourceID))
				params.RegistryHandler.MountRoutes(r)
			})
		}
		if params.AuditHandler != nil {
			r.Route("/audit", func(r chi.Router) {
				r.Use(params.AdminGuard.Require("read", ResourceTypeAudit, PlatformResourceID))
				params.AuditHandler.MountRoutes(r)
			})
		}
	})

	return r
}
