// Package server runs the HTTP listener for a deployed application.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// Server wraps http.Server with an explicit listen step so callers learn
// about bind errors before serving starts
type Server struct {
	httpServer *http.Server
	config     *Config

	mu       sync.Mutex
	listener net.Listener
}

// Config holds server configuration
type Config struct {
	// Address is the listen address, e.g. "localhost:3000". Port 0 picks a
	// free port.
	Address string

	Handler http.Handler

	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration

	MaxHeaderBytes int
}

// DefaultConfig returns the server defaults for handler
func DefaultConfig(handler http.Handler) *Config {
	return &Config{
		Address:           "localhost:3000",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// New creates a server
func New(config *Config) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              config.Address,
			Handler:           config.Handler,
			ReadTimeout:       config.ReadTimeout,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
			MaxHeaderBytes:    config.MaxHeaderBytes,
		},
		config: config,
	}, nil
}

// Listen binds the listen address
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener
	return nil
}

// Serve accepts connections until Shutdown or Close. It returns nil after a
// graceful shutdown.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close immediately closes the server and its listener
func (s *Server) Close() error {
	err := s.httpServer.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		// already closed when Serve was running
		s.listener.Close()
	}
	return err
}

// Addr returns the bound address once listening, the configured one before
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}
