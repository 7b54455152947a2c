package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/snipvault/snipvault/internal/accounts"
	"github.com/snipvault/snipvault/internal/audit"
	"github.com/snipvault/snipvault/internal/auth"
	"github.com/snipvault/snipvault/internal/gateway"
	"github.com/snipvault/snipvault/internal/observability"
	"github.com/snipvault/snipvault/internal/platform/httpx"
	"github.com/snipvault/snipvault/internal/ratelimit"
	"github.com/snipvault/snipvault/internal/rbac"
	"github.com/snipvault/snipvault/internal/settings"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	HostGate        *gateway.HostGate
	MaintenanceGate *gateway.MaintenanceGate
	Authenticator   *auth.Authenticator
	Limiter         *ratelimit.Limiter
	PermissionGate  rbac.Gate
	AccountsHandler *accounts.Handler
	SettingsHandler *settings.Handler
	AuditHandler    *audit.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with the gateway chain in its fixed
// order: host check, rate limit, maintenance check, identity resolution,
// permission check. Each stage may short-circuit with a terminal response.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		HostGate: params.HostGate,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	maint := params.MaintenanceGate.Middleware
	gate := params.PermissionGate

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.Use(params.Limiter.Middleware(ratelimit.ScopeAuth))
			ar.Use(maint)
			ar.Get("/config", params.AccountsHandler.AuthConfig)
			params.AccountsHandler.MountAuthRoutes(ar)
		})

		api.Route("/docs", func(dr chi.Router) {
			dr.Use(params.Limiter.Middleware(ratelimit.ScopePublic))
			dr.Use(maint)
			dr.Get("/", docsIndex)
		})

		api.Group(func(g chi.Router) {
			g.Use(params.Limiter.Middleware(ratelimit.ScopeGeneral))
			g.Use(maint)
			g.Use(params.Authenticator.Middleware)
			g.Use(gate.AttachPermissions)

			g.Get("/me", auth.MeHandler{}.Me)
			g.Get("/me/permissions", rbac.PermissionsHandler{}.Me)

			g.Route("/admin", func(adm chi.Router) {
				adm.Route("/users", func(ur chi.Router) {
					ur.Use(gate.Require(rbac.PermUsersManage))
					params.AccountsHandler.MountAdminRoutes(ur)
				})
				adm.Route("/audit", func(aur chi.Router) {
					aur.Use(gate.Require(rbac.PermAuditRead))
					params.AuditHandler.MountRoutes(aur)
				})
				read := adm.With(gate.Require(rbac.PermSettingsRead))
				write := adm.With(gate.Require(rbac.PermSettingsWrite))
				params.SettingsHandler.MountRoutes(read, write)
			})
		})
	})

	return r
}

func docsIndex(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"name": "snipvault API",
		"endpoints": []string{
			"POST /api/auth/register",
			"POST /api/auth/login",
			"GET /api/auth/config",
			"GET /api/me",
			"GET /api/me/permissions",
			"GET /api/admin/users",
			"GET /api/admin/audit",
			"GET /api/admin/settings",
			"GET /api/admin/flags",
		},
	})
}
