package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/foxzi/mailpilot/internal/account"
	"github.com/foxzi/mailpilot/internal/config"
	"github.com/foxzi/mailpilot/internal/job"
	"github.com/foxzi/mailpilot/internal/metrics"
	"github.com/foxzi/mailpilot/internal/provider"
)

// AccountStore is the account persistence used by the API
type AccountStore interface {
	List(ctx context.Context) ([]*account.Account, error)
	Get(ctx context.Context, id string) (*account.Account, error)
	Create(ctx context.Context, a *account.Account) error
	Update(ctx context.Context, a *account.Account) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *config.ServerConfig
	accounts   AccountStore
	clients    *provider.Manager
	jobs       job.Controllers
	logger     *slog.Logger
	version    string
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(cfg *config.ServerConfig, accounts AccountStore, clients *provider.Manager, jobs job.Controllers, version string, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		accounts:  accounts,
		clients:   clients,
		jobs:      jobs,
		logger:    logger,
		version:   version,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleAccountsList)
			r.Post("/", s.handleAccountsCreate)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleAccountsGet)
				r.Put("/", s.handleAccountsUpdate)
				r.Delete("/", s.handleAccountsDelete)

				r.Post("/verify", s.handleVerify)
				r.Post("/send", s.handleSend)
				r.Get("/logs", s.handleLogs)
				r.Get("/analytics", s.handleAnalytics)

				r.Get("/jobs/{kind}", s.handleJobGet)
				r.Put("/jobs/{kind}", s.handleJobUpdate)
				r.Post("/jobs/{kind}/{action}", s.handleJobControl)
			})
		})
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var err error
	if s.config.TLS.Enabled {
		s.logger.Info("starting HTTPS API server", "addr", s.config.ListenAddr)
		err = s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile)
	} else {
		s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
