package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"github.com/fmuellner/telepathy-mission-control/pkg/accountstore"
	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/auth"
	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/events"
	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/handlers"
	apiMiddleware "github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/middleware"
	"github.com/fmuellner/telepathy-mission-control/pkg/dispatcher"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET  /health             - Liveness probe
//   - GET  /health/ready       - Readiness probe
//   - GET  /metrics            - Prometheus scrape endpoint
//   - GET  /api/v1/dispatch-operations            - list (admin + operator)
//   - POST /api/v1/dispatch-operations            - submit a new channel batch
//   - GET  /api/v1/dispatch-operations/{id}        - lazy-computed detail
//   - POST /api/v1/dispatch-operations/{id}/handle-with
//   - POST /api/v1/dispatch-operations/{id}/claim
//   - GET  /api/v1/dispatch-operations/{id}/events - SSE signal stream
//   - GET  /api/v1/accounts            - list known accounts
func NewRouter(d *dispatcher.Dispatcher, reg *registry.Registry, hub *events.Hub, accounts *accountstore.Manager, jwtService *auth.JWTService) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(d, reg)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	r.Handle("/metrics", promhttp.Handler())

	dispatchOpHandler := handlers.NewDispatchOpHandler(d, hub)

	r.Route("/api/v1/dispatch-operations", func(r chi.Router) {
		r.Use(apiMiddleware.JWTAuth(jwtService))
		r.Use(apiMiddleware.RequireRole(auth.RoleAdmin, auth.RoleOperator))

		r.Get("/", dispatchOpHandler.List)
		r.Post("/", dispatchOpHandler.Create)
		r.Get("/{id}", dispatchOpHandler.Get)
		r.Get("/{id}/events", dispatchOpHandler.Events)
		r.Post("/{id}/handle-with", dispatchOpHandler.HandleWith)
		r.Post("/{id}/claim", dispatchOpHandler.Claim)
	})

	accountHandler := handlers.NewAccountHandler(accounts)
	r.Route("/api/v1/accounts", func(r chi.Router) {
		r.Use(apiMiddleware.JWTAuth(jwtService))
		r.Use(apiMiddleware.RequireRole(auth.RoleAdmin, auth.RoleOperator))

		r.Get("/", accountHandler.List)
	})

	return r
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || path == "/health/" || path == "/health/ready"
}

// requestLogger logs requests using the process-wide structured logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
