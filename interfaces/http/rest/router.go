package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	querybus "github.com/LLINLU/memory-ai-v3-sub002/application/queries/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/interfaces/http/rest/handlers"
	"github.com/LLINLU/memory-ai-v3-sub002/interfaces/http/rest/middleware"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/auth"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/common"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/observability"
)

// Options configures the router. Nil collaborators switch the matching
// feature off.
type Options struct {
	ServiceName    string
	AllowedOrigins []string
	Validator      *auth.JWTValidator // nil disables token validation
	Limiter        auth.RateLimiter
	Metrics        *observability.Collector
	Tracing        bool
	Health         map[string]ports.HealthChecker
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errs       *pkgerrors.ErrorHandler
	opts       Options
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errs *pkgerrors.ErrorHandler,
	opts Options,
	logger *zap.Logger,
) *Router {
	return &Router{
		commandBus: commandBus,
		queryBus:   queryBus,
		errs:       errs,
		opts:       opts,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger(rt.logger))
	router.Use(rt.errs.Middleware)
	if rt.opts.Tracing {
		router.Use(observability.TracingMiddleware(rt.opts.ServiceName))
	}
	if rt.opts.Metrics != nil {
		router.Use(rt.opts.Metrics.MetricsMiddleware)
	}

	origins := rt.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", middleware.DevUserHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.errs.HandleStatus(w, r, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		rt.errs.HandleStatus(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.opts.Metrics != nil {
		router.Handle("/metrics", rt.opts.Metrics.Handler())
	}

	sessions := handlers.NewSessionHandler(rt.commandBus, rt.queryBus, rt.errs)
	nodes := handlers.NewNodeHandler(rt.commandBus, rt.queryBus, rt.errs)
	generation := handlers.NewGenerationHandler(rt.commandBus, rt.queryBus, rt.errs)

	router.Route("/api/v1", func(r chi.Router) {
		if rt.opts.Limiter != nil {
			r.Use(middleware.RateLimit(rt.opts.Limiter, rt.errs, rt.logger))
		}
		r.Use(middleware.Authenticate(rt.opts.Validator, rt.errs, rt.logger))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessions.StartSession)
			r.Get("/", sessions.ListSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", sessions.GetSession)
				r.Delete("/", sessions.DeleteSession)

				r.Post("/select", sessions.Select)
				r.Delete("/select/{level}", sessions.ClearSelection)
				r.Post("/undo", sessions.Undo)
				r.Post("/redo", sessions.Redo)
				r.Get("/view", sessions.LevelView)
				r.Get("/info", sessions.NodeInfo)

				r.Put("/levels/{level}", nodes.SetLevel)
				r.Post("/nodes", nodes.AddNode)
				r.Patch("/nodes/{nodeID}", nodes.UpdateNode)
				r.Delete("/nodes/{nodeID}", nodes.RemoveNode)
				r.Post("/prune", nodes.Prune)

				r.Post("/generate", generation.Generate)
				r.Post("/expand", generation.Expand)
			})
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck pings every registered dependency
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(rt.opts.Health))
	ready := true
	for name, checker := range rt.opts.Health {
		if err := checker.Ping(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}
	common.RespondJSON(w, status, map[string]interface{}{"status": state, "checks": checks})
}
