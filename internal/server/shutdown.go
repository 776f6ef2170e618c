package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds draining and hooks when none is configured
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownHook runs after the server stopped accepting requests
type ShutdownHook func(ctx context.Context) error

// GracefulShutdown serves until its context ends, then drains requests and
// runs the registered hooks
type GracefulShutdown struct {
	server  *Server
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []ShutdownHook

	once sync.Once
	done chan struct{}
	err  error
}

// NewGracefulShutdown creates a shutdown handler for server
func NewGracefulShutdown(server *Server, timeout time.Duration, logger *zap.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GracefulShutdown{
		server:  server,
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// RegisterHook adds a hook. Hooks run in registration order.
func (gs *GracefulShutdown) RegisterHook(hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, hook)
}

// Run serves until ctx is done or the server fails, then shuts down. Bind
// errors are returned before anything is served.
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	if err := gs.server.Listen(); err != nil {
		return err
	}
	gs.logger.Info("server started", zap.String("addr", gs.server.Addr()))

	errChan := make(chan error, 1)
	go func() {
		errChan <- gs.server.Serve()
	}()

	select {
	case <-ctx.Done():
		gs.logger.Info("shutdown signal received")
		return gs.Shutdown()
	case err := <-errChan:
		if err != nil {
			err = fmt.Errorf("server failed: %w", err)
		}
		return errors.Join(err, gs.Shutdown())
	}
}

// Shutdown drains the server and runs the hooks once. Concurrent and later
// calls wait for the first one and return its result.
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		defer close(gs.done)
		gs.logger.Info("shutting down", zap.Duration("timeout", gs.timeout))

		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		var errs []error
		if err := gs.server.Shutdown(ctx); err != nil {
			gs.logger.Error("server shutdown failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}

		gs.mu.Lock()
		hooks := make([]ShutdownHook, len(gs.hooks))
		copy(hooks, gs.hooks)
		gs.mu.Unlock()

		for i, hook := range hooks {
			if err := hook(ctx); err != nil {
				gs.logger.Error("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
				errs = append(errs, err)
			}
		}

		gs.err = errors.Join(errs...)
		if gs.err == nil {
			gs.logger.Info("shutdown complete")
		}
	})

	<-gs.done
	return gs.err
}

// Wait blocks until shutdown is complete
func (gs *GracefulShutdown) Wait() error {
	<-gs.done
	return gs.err
}
