// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: New builds the stores, the OAuth
// clients, the services and the handlers, and wires them to routes. Nothing
// else in the module constructs a concrete store.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coko7/advent-of-time/internal/auth"
	"github.com/coko7/advent-of-time/internal/config"
	"github.com/coko7/advent-of-time/internal/handler"
	"github.com/coko7/advent-of-time/internal/metrics"
	"github.com/coko7/advent-of-time/internal/middleware"
	"github.com/coko7/advent-of-time/internal/oauth"
	"github.com/coko7/advent-of-time/internal/repository/jsonfile"
	"github.com/coko7/advent-of-time/internal/scoring"
	"github.com/coko7/advent-of-time/internal/service"
)

// shutdownTimeout is how long in-flight requests get to finish.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the user store. Start closes it after the HTTP server has
// drained, so a SQLite WAL is checkpointed and its file lock released.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  io.Closer
}

// Options carries collaborators that are normally built from the config.
// Tests use it to pin the clock or to keep metrics off the default registry.
type Options struct {
	Clock    service.Clock
	Registry *prometheus.Registry
	HTTP     *http.Client // client for provider calls
}

// New creates a Server from cfg.
//
// DEPENDENCY CHAIN:
//
//	config → user store, picture store, provider registry, state signer
//	       → AuthService, GameService
//	       → AuthHandler, GameHandler + auth middleware
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Server, error) {
	users, store, err := OpenUserStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening user store: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m, err := metrics.New(reg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	providers, err := oauth.NewRegistry(cfg.OAuth2)
	if err != nil {
		store.Close()
		return nil, err
	}
	states, err := auth.NewStateSigner(cfg.Auth.StateSecret)
	if err != nil {
		store.Close()
		return nil, err
	}
	engine, err := scoring.NewEngine(cfg.Score)
	if err != nil {
		store.Close()
		return nil, err
	}

	authService := service.NewAuthService(service.AuthDeps{
		Users:     users,
		Registry:  providers,
		Exchanger: oauth.NewExchanger(opts.HTTP),
		Profiles:  oauth.NewResolver(opts.HTTP),
		States:    states,
		Metrics:   m,
		Logger:    logger,
		Clock:     opts.Clock,
	})
	gameService := service.NewGameService(service.GameDeps{
		Users:    users,
		Pictures: jsonfile.NewPictureStore(cfg.Pictures.Path, cfg.Pictures.CacheTTL),
		Engine:   engine,
		Metrics:  m,
		Logger:   logger,
		Clock:    opts.Clock,
	})

	s.setupRoutes(authService, gameService, m, reg)

	logger.Info("server configured",
		slog.String("storage", cfg.Storage.Driver),
		slog.Any("providers", providers.Enabled()),
	)
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                          liveness
//	GET  /metrics                          prometheus
//	GET  /auth/providers                   enabled providers
//	GET  /auth/oauth2?idp=                 302 to the provider
//	GET  /auth/oauth2/{provider}/callback  login, set cookie, 302 /
//	GET  /auth/logout                      clear tokens and cookie, 302 /
//	GET  /auth/me                          current user            [auth]
//	GET  /api/calendar                     25 day tiles
//	GET  /api/day/{day}                    hints (+ answer once guessed)
//	GET  /day-pic/{day}                    picture bytes
//	POST /guess/{day}                      submit a guess          [auth]
//	GET  /api/profile                      season summary          [auth]
//	GET  /api/leaderboard                  ranking
//
// MIDDLEWARE ORDER MATTERS:
// RequestID and RealIP come first so the logger and the recoverer see them.
// The recoverer sits inside the logger and the metrics so a panic is still
// logged and counted as a 500.
func (s *Server) setupRoutes(authService *service.AuthService, gameService *service.GameService, m *metrics.Metrics, reg *prometheus.Registry) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(m))
	s.router.Use(middleware.Recoverer(s.logger))

	authOpts := auth.Options{SecureCookies: s.config.Server.SecureCookies, Logger: s.logger}
	requireAuth := auth.RequireAuth(authService, authOpts)
	optionalAuth := auth.OptionalAuth(authService, authOpts)

	authHandler := handler.NewAuthHandler(authService, s.config.Server.SecureCookies, s.logger)
	gameHandler := handler.NewGameHandler(gameService, s.logger)

	s.router.Get("/healthz", handler.HandleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/providers", authHandler.HandleProviders)
		r.Get("/oauth2", authHandler.HandleLogin)
		r.Get("/oauth2/{provider}/callback", authHandler.HandleCallback)
		r.With(optionalAuth).Get("/logout", authHandler.HandleLogout)
		r.With(requireAuth).Get("/me", authHandler.HandleMe)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(optionalAuth)
		r.Get("/api/calendar", gameHandler.HandleCalendar)
		r.Get("/api/day/{day}", gameHandler.HandleDay)
		r.Get("/day-pic/{day}", gameHandler.HandleDayPicture)
		r.Get("/api/leaderboard", gameHandler.HandleLeaderboard)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/guess/{day}", gameHandler.HandleGuess)
		r.Get("/api/profile", gameHandler.HandleProfile)
	})
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the user store.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down gracefully:
// stop accepting connections, let in-flight requests finish (30s), close the
// user store.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
