// Package server is the wiring layer: it assembles the repositories,
// services, and handlers into a chi router and owns the HTTP server
// lifecycle. All dependency construction happens here (the composition
// root); main.go only loads config and calls New + Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/daryonoff/postboard/internal/auth"
	"github.com/daryonoff/postboard/internal/config"
	"github.com/daryonoff/postboard/internal/handler"
	"github.com/daryonoff/postboard/internal/middleware"
	sqliteRepo "github.com/daryonoff/postboard/internal/repository/sqlite"
	"github.com/daryonoff/postboard/internal/service"
	"github.com/daryonoff/postboard/internal/vkid"
)

// Server holds the router and the resources it owns. The database
// connection is closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	cfg    config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and wires the full dependency chain:
//
//	sqlite.DB → AuthService → handlers → routes
//
// Handlers never touch the database directly and the service never touches
// HTTP.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware and the full route table.
//
// MIDDLEWARE ORDER:
// RequestID and RealIP run first so the logger can use their output;
// Recoverer runs before our middleware so a panic anywhere below still
// becomes a 500; CORS runs before routing so preflights get answered even
// for routes that would 404.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.CORS(s.cfg.CORSOrigins))

	authSvc := service.NewAuthService(s.db, s.db, auth.NewPasswordService(), s.logger)
	authHandler := handler.NewAuthHandler(authSvc, s.logger)
	postHandler := handler.NewPostHandler()

	var oauthHandler *handler.OAuthHandler
	if s.cfg.VKEnabled() {
		var state *auth.StateService
		if s.cfg.StateMode == config.StateModeStateless {
			var err error
			state, err = auth.NewStateService(s.cfg.StateSecret)
			if err != nil {
				return fmt.Errorf("creating state service: %w", err)
			}
		}
		provider := vkid.New(s.cfg.VKClientID, s.cfg.VKClientSecret, s.cfg.VKRedirectURI, s.logger)
		oauthHandler = handler.NewOAuthHandler(provider, authSvc, state, s.cfg, s.logger)
	} else {
		s.logger.Warn("VK credentials not configured, OAuth routes disabled")
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalBearer(authSvc))
			r.Get("/posts", postHandler.HandleList)
		})

		if oauthHandler != nil {
			r.Get("/auth/{provider}/redirect", oauthHandler.HandleRedirect)
			r.Get("/auth/{provider}/callback", oauthHandler.HandleCallback)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireBearer(authSvc))
			r.Get("/user", authHandler.HandleUser)
			r.Post("/logout", authHandler.HandleLogout)
		})
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests (30s
// budget), close the database so the WAL is flushed.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
			slog.Bool("vkid", s.cfg.VKEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
