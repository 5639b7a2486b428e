package main

import (
	"context"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	applicationshandler "github.com/zenGate-Global/rentflow/domains/applications/be/handler"
	inviteshandler "github.com/zenGate-Global/rentflow/domains/invites/be/handler"
	leadshandler "github.com/zenGate-Global/rentflow/domains/leads/be/handler"
	platformauth "github.com/zenGate-Global/rentflow/platform/go/auth"
	"github.com/zenGate-Global/rentflow/platform/go/httpapi"
	platformlogging "github.com/zenGate-Global/rentflow/platform/go/logging"
	"github.com/zenGate-Global/rentflow/platform/go/metrics"
	platformmiddleware "github.com/zenGate-Global/rentflow/platform/go/middleware"
)

type routerConfig struct {
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
	PublicRateLimit    string
}

// newRouter mounts the API under /api/v1 with three route groups: public token endpoints
// (rate limited), applicant endpoints (any signed-in user) and manager endpoints.
func newRouter(
	cfg routerConfig,
	svcs services,
	authMiddleware func(http.Handler) http.Handler,
	ready func(ctx context.Context) error,
	spec *openapi3.T,
	logger *zap.Logger,
) (http.Handler, error) {
	publicLimit, err := platformmiddleware.RateLimit(cfg.PublicRateLimit, logger)
	if err != nil {
		return nil, err
	}

	invitesHTTP := inviteshandler.New(svcs.invites, logger)
	leadsHTTP := leadshandler.New(svcs.leads, logger)
	applicationsHTTP := applicationshandler.New(svcs.applications, logger)

	root := chi.NewRouter()
	root.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		metrics.HTTP,
		platformlogging.RequestLogger(logger),
		platformmiddleware.CORS(cfg.CORSAllowedOrigins),
	)
	if cfg.RequestTimeout > 0 {
		root.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	root.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context()); err != nil {
			logger.Warn("readiness check failed", zap.Error(err))
			httpapi.WriteProblem(w, httpapi.NewProblem("Not ready", "storage is unavailable", httpapi.ProblemTypeInternal, http.StatusServiceUnavailable, nil))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	root.Handle("/metrics", metrics.Handler())
	registerDocsRoutes(root, spec, logger)

	api := chi.NewRouter()
	api.Use(authMiddleware)
	api.Use(platformmiddleware.RequestTrace)
	api.Use(platformmiddleware.OpenAPIValidator(spec))

	api.Group(func(r chi.Router) {
		r.Use(publicLimit)
		invitesHTTP.MountPublic(r)
		leadsHTTP.MountPublic(r)
	})

	api.Group(func(r chi.Router) {
		r.Use(platformauth.RequireUser)
		applicationsHTTP.MountApplicant(r)
	})

	api.Group(func(r chi.Router) {
		r.Use(platformauth.RequireRole(platformauth.RoleManager))
		invitesHTTP.Mount(r)
		leadsHTTP.Mount(r)
		applicationsHTTP.Mount(r)
	})

	root.Mount("/api/v1", api)
	return root, nil
}
