// Package api implements the control-plane API server: the HTTP/JSON
// realization of the Bus Surface (SPEC_FULL.md §6.1).
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"github.com/fmuellner/telepathy-mission-control/pkg/accountstore"
	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/auth"
	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/events"
	"github.com/fmuellner/telepathy-mission-control/pkg/dispatcher"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

// Config configures the control-plane API HTTP server.
type Config struct {
	// Port is the HTTP port the API listens on.
	Port int

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of
	// the response. Left at zero for the dispatch-operations SSE
	// endpoint, which must be able to hold a response open indefinitely.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum time to wait for the next request when
	// keep-alives are enabled.
	IdleTimeout time.Duration

	// JWTSigningKey signs and verifies operator session tokens. Must be
	// at least 32 characters.
	JWTSigningKey string

	// JWTIssuer is the "iss" claim stamped onto issued tokens.
	JWTIssuer string

	// TokenTTL is how long an issued token remains valid by default.
	TokenTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// Server wraps an *http.Server serving the control-plane API.
//
// The server is created in a stopped state; call Start to begin serving.
// Start blocks until its context is cancelled, at which point it
// initiates graceful shutdown.
type Server struct {
	server       *http.Server
	jwtService   *auth.JWTService
	config       Config
	shutdownOnce sync.Once
}

// NewServer creates a control-plane API server wired to d, reg, hub, and
// the account-storage manager. The JWT service is constructed internally
// from config.
func NewServer(config Config, d *dispatcher.Dispatcher, reg *registry.Registry, hub *events.Hub, accounts *accountstore.Manager) (*Server, error) {
	config.applyDefaults()

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:     config.JWTSigningKey,
		Issuer:     config.JWTIssuer,
		DefaultTTL: config.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	router := NewRouter(d, reg, hub, accounts, jwtService)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server:     httpServer,
		jwtService: jwtService,
		config:     config,
	}, nil
}

// JWTService returns the server's token issuer/validator, so dispatchctl's
// token commands can mint tokens against the same signing key the API
// validates against when both run embedded in the same process.
func (s *Server) JWTService() *auth.JWTService {
	return s.jwtService
}

// Start starts the HTTP server and blocks until ctx is cancelled or an
// error occurs.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("control-plane API listening", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("control-plane API shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("control-plane API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("control-plane API shutdown error: %w", err)
			logger.Error("control-plane API shutdown error", "error", err)
		} else {
			logger.Info("control-plane API stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
