package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/foyerhq/foyer/internal/config"
	"github.com/foyerhq/foyer/internal/dispatch"
	"github.com/foyerhq/foyer/internal/handler"
	"github.com/foyerhq/foyer/internal/server/middleware"
	"github.com/foyerhq/foyer/internal/service"
	"github.com/foyerhq/foyer/internal/sfu"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host                   string
	Port                   int
	ShutdownTimeout        time.Duration
	CORSOrigins            []string
	MaxBodySize            int64 // bytes
	RequestsPerMinute      int   // per client IP
	LoginRequestsPerMinute int   // per client IP, login endpoint only
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:                   "0.0.0.0",
		Port:                   8080,
		ShutdownTimeout:        30 * time.Second,
		CORSOrigins:            []string{"*"},
		MaxBodySize:            1024 * 1024, // 1MB; payloads here are small JSON bodies
		RequestsPerMinute:      300,
		LoginRequestsPerMinute: 10,
	}
}

// Server is the top-level HTTP server for Foyer. It owns the Chi router, the
// config store, the webhook dispatcher, and the media server client.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *config.Store
	sfuClient  sfu.Client
	dispatcher *dispatch.Dispatcher
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, store *config.Store, authSvc *service.AuthService, meetingSvc *service.MeetingService, dispatcher *dispatch.Dispatcher, sfuClient sfu.Client, logger *slog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		sfuClient:  sfuClient,
		dispatcher: dispatcher,
		logger:     logger,
	}
	s.setupRouter(authSvc, meetingSvc)
	return s
}

func (s *Server) setupRouter(authSvc *service.AuthService, meetingSvc *service.MeetingService) {
	adminHandler := handler.NewAdminHandler(authSvc, meetingSvc)
	webhookHandler := handler.NewWebhookHandler(s.store, s.dispatcher)
	meetingHandler := handler.NewMeetingHandler(meetingSvc)
	openAPIHandler := handler.NewOpenAPIHandler()

	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	r.Use(middleware.RateLimit(s.cfg.RequestsPerMinute))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec (no auth required) ---
	r.Get("/openapi.json", openAPIHandler.ServeSpec)

	// --- API routes ---
	r.Route("/api", func(r chi.Router) {

		// Meeting endpoints are public: participants hold no credentials,
		// the join grant itself is the capability.
		r.Post("/token", meetingHandler.IssueToken)
		r.Post("/end-meeting", meetingHandler.EndMeeting)

		r.Route("/admin", func(r chi.Router) {
			// Login gets a tighter per-IP budget against password guessing.
			r.With(middleware.RateLimit(s.cfg.LoginRequestsPerMinute)).
				Post("/login", adminHandler.Login)

			// Dashboard reads are open to any authenticated caller,
			// admin or not, budgeted per API key.
			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(authSvc))
				r.Use(middleware.RateLimitByHeader("X-API-Key", s.cfg.RequestsPerMinute))

				r.Get("/stats", adminHandler.Stats)
				r.Get("/rooms", adminHandler.ListRooms)
			})

			// Everything else requires admin access.
			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(authSvc))
				r.Use(middleware.RequireAdmin())

				r.Post("/logout", adminHandler.Logout)

				r.Get("/api-keys", adminHandler.ListAPIKeys)
				r.Post("/api-keys", adminHandler.CreateAPIKey)
				r.Delete("/api-keys/{keyID}", adminHandler.RevokeAPIKey)

				r.Put("/rooms/{roomName}", adminHandler.UpdateRoomMetadata)

				r.Get("/webhooks", webhookHandler.ListWebhooks)
				r.Post("/webhooks", webhookHandler.CreateWebhook)
				r.Get("/webhooks/{webhookID}", webhookHandler.GetWebhook)
				r.Put("/webhooks/{webhookID}", webhookHandler.UpdateWebhook)
				r.Delete("/webhooks/{webhookID}", webhookHandler.DeleteWebhook)
				r.Post("/webhooks/{webhookID}/test", webhookHandler.TestWebhook)
			})
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 503 when the config store is
// unreachable. The media server is checked and reported but does not gate
// readiness: the admin dashboard stays available through an upstream blip.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "unavailable"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if _, err := s.sfuClient.ListRooms(ctx); err != nil {
		checks["media_server"] = "error: " + err.Error()
		if status == "ok" {
			status = "degraded"
		}
	} else {
		checks["media_server"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests and queued webhook deliveries before returning.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout. The HTTP server stops first so no new
	// events arrive, then the dispatcher drains its delivery queue.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.dispatcher.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("webhook queue drain incomplete", "error", err)
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
