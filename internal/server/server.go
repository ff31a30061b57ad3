// Package server wires the stores, services and HTTP routes of the user API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/simaland/userapi/config"
	"github.com/simaland/userapi/internal/auth"
	"github.com/simaland/userapi/internal/db"
	"github.com/simaland/userapi/internal/handlers"
	"github.com/simaland/userapi/internal/metrics"
	"github.com/simaland/userapi/internal/mq"
	"github.com/simaland/userapi/internal/services"
	"github.com/simaland/userapi/internal/store"
)

const requestTimeout = 60 * time.Second

// UserStore is everything the services need from user persistence.
type UserStore interface {
	services.UserRepository
	services.CredentialsRepository
}

// Deps are the collaborators the HTTP handler is built from.
type Deps struct {
	Users     UserStore
	Sessions  services.SessionRepository
	Publisher services.EventPublisher
	Registry  *prometheus.Registry
	Logger    zerolog.Logger
	// Now overrides the session clock. Nil means time.Now.
	Now func() time.Time
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
}

// New connects to the database and the broker and builds the server.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := NewRouter(cfg, Deps{
		Users:     store.NewUserRepository(dbConn),
		Sessions:  store.NewSessionRepository(dbConn),
		Publisher: queue,
		Registry:  registry,
		Logger:    logger,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mq:         queue,
	}, nil
}

// NewRouter builds the services on top of deps and registers every route.
func NewRouter(cfg config.Config, deps Deps) *chi.Mux {
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := metrics.New(registry)

	hasher := auth.NewHasher([]byte(cfg.Auth.HashSalt), cfg.Auth.HashIterations)
	tokens := auth.NewTokenGenerator(hasher, cfg.Auth.TokenTTL, deps.Now)
	events := services.NewEvents(deps.Publisher, cfg.MQ.EventsChannel)

	authService := services.NewAuthService(deps.Users, deps.Sessions, hasher, tokens, services.AuthPolicy{
		DenyBlockedLogin:   cfg.Auth.DenyBlockedLogin,
		EnforceTokenExpiry: cfg.Auth.EnforceTokenExpiry,
	}, events, m)
	userService := services.NewUserService(deps.Users, hasher, events, m)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.RequestLogger(deps.Logger),
		handlers.Recover,
		middleware.Timeout(requestTimeout),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	handlers.AuthRouter(router, authService, cfg.Auth.CookieSecure)
	router.Route("/user", func(r chi.Router) {
		r.Use(handlers.Authorize(authService))
		handlers.UserRouter(r, userService)
	})

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and the pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mq != nil {
		_ = s.mq.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
