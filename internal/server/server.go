// Package server wires the portal's HTTP surface: router, middleware,
// health probes, and graceful shutdown.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chatapi/portal/internal/auth"
	"github.com/chatapi/portal/internal/handler"
	"github.com/chatapi/portal/internal/litellm"
	"github.com/chatapi/portal/internal/openapi"
	"github.com/chatapi/portal/internal/server/middleware"
	"github.com/chatapi/portal/internal/service"
	"github.com/chatapi/portal/internal/session"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	AccountRatePerMinute int
	MutateRatePerMinute  int

	Cookies handler.CookieConfig
	Version string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:                 "0.0.0.0",
		Port:                 8080,
		ShutdownTimeout:      30 * time.Second,
		CORSOrigins:          []string{"*"},
		AccountRatePerMinute: 10,
		MutateRatePerMinute:  30,
		Cookies:              handler.CookieConfig{Name: "chatapi-session"},
		Version:              "dev",
	}
}

// Dependencies are the wired collaborators the server routes to.
type Dependencies struct {
	Backend  *litellm.Client
	Store    session.Store
	Sessions *session.Manager
	Resolver *auth.Resolver
	Consent  *service.ConsentService
	Keys     *service.KeyService
	Captcha  handler.CaptchaVerifier
}

// Server is the portal's HTTP server. It owns the Chi router and the
// per-endpoint rate limiters.
type Server struct {
	cfg        Config
	deps       Dependencies
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger

	accountLimiter *middleware.FixedWindow
}

// New creates a Server, wires up all routes and middleware, and returns it
// ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Dependencies, logger *slog.Logger) *Server {
	s := &Server{
		cfg:            cfg,
		deps:           deps,
		logger:         logger,
		accountLimiter: middleware.NewFixedWindow(cfg.AccountRatePerMinute, time.Minute),
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Recaptcha-Token", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec ---
	spec := openapi.Generate("/", s.cfg.Version, s.cfg.Cookies.Name)
	r.Get("/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(spec)
	})

	// --- Model catalog (unauthenticated, cached) ---
	r.Get("/models", handler.NewModelsHandler(s.deps.Backend, s.logger).List)

	// --- Account (tight deterministic rate limit) ---
	accountHandler := handler.NewAccountHandler(s.deps.Resolver, s.cfg.Cookies, s.logger)
	r.Group(func(r chi.Router) {
		r.Use(s.accountLimiter.Handler)
		r.Get("/account/me", accountHandler.Me)
	})

	// --- Key lifecycle and consent (coarse burst limit) ---
	keyHandler := handler.NewKeyHandler(s.deps.Resolver, s.deps.Consent, s.deps.Keys, s.deps.Captcha, s.cfg.Cookies, s.logger)
	consentHandler := handler.NewConsentHandler(s.deps.Resolver, s.deps.Consent, s.logger)
	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.cfg.MutateRatePerMinute))
		r.Post("/claim-api-key", keyHandler.Claim)
		r.Post("/generate-key", keyHandler.Generate)
		r.Post("/regenerate-key", keyHandler.Regenerate)
		r.Post("/update-consent", consentHandler.Update)
	})

	// --- Session teardown ---
	r.Post("/auth/logout", handler.NewAuthHandler(s.deps.Sessions, s.cfg.Cookies, s.logger).Logout)

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the upstream backend
// and the session store both answer, or 503 when either is degraded.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string)

	if err := s.deps.Backend.Health(r.Context()); err != nil {
		checks["upstream"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["upstream"] = "ok"
	}

	if err := s.deps.Store.Ping(r.Context()); err != nil {
		checks["sessions"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["sessions"] = "ok"
	}

	httpStatus := http.StatusOK
	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the session store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if closer, ok := s.deps.Store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn("session store close failed", "error", err)
		}
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
