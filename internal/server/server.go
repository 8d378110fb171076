package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	v1 "github.com/gosuda/tillpoint/internal/api/v1"
	"github.com/gosuda/tillpoint/internal/config"
	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/metrics"
	"github.com/gosuda/tillpoint/internal/server/middleware"
)

// Services are the application services exposed over HTTP.
type Services struct {
	Provisioner   v1.Provisioner
	Auth          v1.AuthService
	Staff         v1.StaffService
	Catalog       v1.CatalogService
	Subscriptions v1.SubscriptionService
	Limits        v1.PlanLimits
	Tenants       v1.TenantRunner
	Metrics       *metrics.Metrics
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server with all routes wired. ctx bounds the background
// sweepers of the rate limiters.
func New(ctx context.Context, cfg *config.Config, svc Services) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.AccessLog)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	// /api/v1 has two sub-groups:
	// 1. Unauthenticated registration and login, limited per client IP.
	// 2. Tenant-bound management endpoints for owners and admins, limited
	//    per owner.
	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ctx, 5, 20))

			authAPI := humachi.New(r, apiConfig("Tillpoint Auth API"))
			v1.RegisterAuthRoutes(authAPI, svc.Provisioner, svc.Auth)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT.Secret))
			r.Use(middleware.RequireTenant())
			r.Use(middleware.RequireRole(domain.RoleOwner, domain.RoleAdmin))
			r.Use(middleware.RateLimit(ctx, 50, 100))

			api := humachi.New(r, apiConfig("Tillpoint API"))
			v1.RegisterStaffRoutes(api, svc.Staff)
			v1.RegisterCatalogRoutes(api, svc.Catalog)
			v1.RegisterPlanRoutes(api, svc.Subscriptions, svc.Limits, svc.Tenants)
		})
	})

	router.Method(http.MethodGet, "/metrics", svc.Metrics.Handler())

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return s
}

func apiConfig(title string) huma.Config {
	c := huma.DefaultConfig(title, "1.0.0")
	c.Servers = []*huma.Server{{URL: "/api/v1"}}
	return c
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
