// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web serves the authentication and account management HTTP API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/xybot/xyweb/internal/auth"
)

// Authority is the subset of auth.Authority the API needs.
type Authority interface {
	Authenticate(ctx context.Context, username, password string) (*auth.Session, error)
	ValidateToken(ctx context.Context, token string) (*auth.Identity, error)
	RevokeToken(ctx context.Context, token string) (bool, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
	AddUser(ctx context.Context, username, password string, role auth.Role) error
	DeleteUser(ctx context.Context, username string) error
	ListUsers(ctx context.Context) (map[string]*auth.User, error)
	Ping(ctx context.Context) error
}

// RequestMetrics counts served requests by route template and status.
type RequestMetrics interface {
	RecordHTTPRequest(route string, status int)
}

type noopRequestMetrics struct{}

func (noopRequestMetrics) RecordHTTPRequest(string, int) {}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for access and error logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the request counter.
func WithMetrics(m RequestMetrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithCORSOrigins sets the origins allowed for cross-origin requests.
// "*" allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// Server is the web API server.
type Server struct {
	addr        string
	authority   Authority
	logger      *slog.Logger
	metrics     RequestMetrics
	corsOrigins []string

	engine     *gin.Engine
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a server that will listen on addr.
func NewServer(addr string, authority Authority, opts ...Option) *Server {
	s := &Server{
		addr:      addr,
		authority: authority,
		logger:    slog.Default(),
		metrics:   noopRequestMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving. The returned channel receives a serve error, if
// any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("SERVER_ALREADY_RUNNING").Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("SERVER_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown web server").Wrap(err)
		}
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(s.recovery(), s.requestID(), s.accessLog(), s.cors())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	{
		a := api.Group("/auth")
		a.POST("/login", s.handleLogin)
		a.POST("/logout", s.handleLogout)
		a.GET("/verify", s.handleVerify)
		a.GET("/me", s.requireAuth(), s.handleMe)
		a.POST("/change-password", s.requireAuth(), s.handleChangePassword)
	}
	{
		u := api.Group("/users", s.requireAuth(), s.requireAdmin())
		u.GET("", s.handleListUsers)
		u.POST("", s.handleAddUser)
		u.DELETE("/:username", s.handleDeleteUser)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	return r
}
