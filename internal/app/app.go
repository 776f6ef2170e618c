// Package app owns a running deployment: the routing table, the live
// initializers and the HTTP handler that serves them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/conduit-lang/weft/internal/dispatch"
	"github.com/conduit-lang/weft/internal/metrics"
	"github.com/conduit-lang/weft/internal/router"
	"github.com/conduit-lang/weft/internal/session"
	"github.com/conduit-lang/weft/pkg/capability"
	"github.com/conduit-lang/weft/pkg/convert"
	"github.com/conduit-lang/weft/pkg/web"
)

// ErrShutdown is returned by Deploy after Shutdown
var ErrShutdown = errors.New("application is shut down")

// InitError reports an initializer whose Init failed. The deployment it
// belonged to was rolled back.
type InitError struct {
	Initializer string
	Err         error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializer %s failed: %v", e.Initializer, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Options configures an App
type Options struct {
	Name       string
	Sessions   *session.Manager
	Renderer   dispatch.Renderer
	Converters *convert.Registry
	Metrics    *metrics.Collector
	// MetricsPath mounts the metrics handler when Metrics is set
	MetricsPath string
	// ProfilePath mounts net/http/pprof when not empty
	ProfilePath string
	// Fallback serves paths no controller claims, typically static files
	Fallback http.Handler
	// Middleware wraps the dispatcher, not the metrics endpoint
	Middleware []func(http.Handler) http.Handler
	// Closers are closed on Shutdown after the session store
	Closers []io.Closer
	Logger  *zap.Logger
}

// App is a deployed application
type App struct {
	application *web.Application
	router      *router.Router
	dispatcher  *dispatch.Dispatcher
	sessions    *session.Manager
	metrics     *metrics.Collector
	metricsPath string
	profilePath string
	middleware  []func(http.Handler) http.Handler
	closers     []io.Closer
	logger      *zap.Logger

	mu           sync.Mutex
	initializers []capability.Initializer
	deployed     capability.Set
	shutdown     bool
}

// New creates an application with an empty routing table
func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		application: web.NewApplication(opts.Name),
		router:      router.New(),
		sessions:    opts.Sessions,
		metrics:     opts.Metrics,
		metricsPath: opts.MetricsPath,
		profilePath: opts.ProfilePath,
		middleware:  opts.Middleware,
		closers:     opts.Closers,
		logger:      logger,
	}

	dopts := []dispatch.Option{
		dispatch.WithLogger(logger.Named("dispatch")),
		dispatch.WithApplication(a.application),
	}
	if opts.Sessions != nil {
		dopts = append(dopts, dispatch.WithSessions(opts.Sessions))
	}
	if opts.Renderer != nil {
		dopts = append(dopts, dispatch.WithRenderer(opts.Renderer))
	}
	if opts.Converters != nil {
		dopts = append(dopts, dispatch.WithConverters(opts.Converters))
	}
	if opts.Metrics != nil {
		dopts = append(dopts, dispatch.WithObserver(opts.Metrics))
	}
	if opts.Fallback != nil {
		dopts = append(dopts, dispatch.WithFallback(opts.Fallback))
	}
	a.dispatcher = dispatch.New(a.router, dopts...)
	return a
}

// Application returns the deployment-wide context shared with handlers
func (a *App) Application() *web.Application {
	return a.application
}

// Router returns the live router
func (a *App) Router() *router.Router {
	return a.router
}

// Dispatcher returns the request dispatcher
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Deployed returns the handler set of the live deployment
func (a *App) Deployed() capability.Set {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deployed
}

// Deploy replaces the live deployment with sets. The routing table is built
// and every initializer is started before anything is swapped; if either
// step fails the previous deployment keeps serving. After the swap the
// previous deployment's initializers are destroyed in reverse order.
func (a *App) Deploy(sets ...capability.Set) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := capability.Merge(sets...)
	if a.metrics != nil {
		defer func() { a.metrics.ObserveDeploy(set, err) }()
	}

	if a.shutdown {
		return ErrShutdown
	}

	b := router.NewBuilder()
	if err := b.RegisterSet(set); err != nil {
		return err
	}
	table, err := b.Build()
	if err != nil {
		return err
	}

	started, err := a.start(set.Initializers)
	if err != nil {
		return err
	}

	a.router.Swap(table)
	previous := a.initializers
	a.initializers = started
	a.deployed = set

	a.logger.Info("deployed",
		zap.Int("controllers", len(set.Controllers)),
		zap.Int("interceptors", len(set.Interceptors)),
		zap.Int("initializers", len(set.Initializers)))

	if err := a.destroy(previous); err != nil {
		a.logger.Warn("previous deployment did not stop cleanly", zap.Error(err))
	}
	return nil
}

// start runs Init on a fresh instance of each type in order. On failure
// the ones already started are destroyed in reverse.
func (a *App) start(types []capability.InitializerType) ([]capability.Initializer, error) {
	started := make([]capability.Initializer, 0, len(types))
	for _, t := range types {
		in := t.New()
		in.SetApplication(a.application)
		if err := in.Init(); err != nil {
			initErr := &InitError{Initializer: in.Identity(), Err: err}
			a.logger.Error("initializer failed, rolling back", zap.String("initializer", in.Identity()), zap.Error(err))
			if derr := a.destroy(started); derr != nil {
				return nil, errors.Join(initErr, derr)
			}
			return nil, initErr
		}
		started = append(started, in)
	}
	return started, nil
}

// destroy calls Destroy in reverse order, continuing past failures
func (a *App) destroy(initializers []capability.Initializer) error {
	var errs []error
	for i := len(initializers) - 1; i >= 0; i-- {
		in := initializers[i]
		if err := in.Destroy(); err != nil {
			a.logger.Warn("initializer destroy failed", zap.String("initializer", in.Identity()), zap.Error(err))
			errs = append(errs, fmt.Errorf("initializer %s: %w", in.Identity(), err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown destroys the live initializers and closes the session store
// and the other closers.
// Later calls do nothing.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.shutdown {
		return nil
	}
	a.shutdown = true

	var errs []error
	if err := a.destroy(a.initializers); err != nil {
		errs = append(errs, err)
	}
	a.initializers = nil
	a.router.Swap(router.EmptyTable())

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing session store: %w", err))
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handler assembles the HTTP stack: request ids, real ip, panic recovery,
// access logging, the metrics endpoint and, behind the extra middleware,
// the dispatcher for every other path.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(a.logger.Named("http")))
	r.Use(middleware.Recoverer)

	if a.metrics != nil && a.metricsPath != "" {
		r.Method(http.MethodGet, a.metricsPath, a.metrics.Handler())
	}
	if a.profilePath != "" {
		r.Mount(a.profilePath, middleware.Profiler())
	}
	r.Group(func(r chi.Router) {
		r.Use(a.middleware...)
		r.Handle("/*", a.dispatcher)
	})
	return r
}
