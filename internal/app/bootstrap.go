package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/conduit-lang/weft/internal/cli/config"
	"github.com/conduit-lang/weft/internal/metrics"
	"github.com/conduit-lang/weft/internal/ratelimit"
	"github.com/conduit-lang/weft/internal/render"
	"github.com/conduit-lang/weft/internal/server"
	"github.com/conduit-lang/weft/internal/session"
)

// NewFromConfig wires an App from configuration: the session store and
// manager, the renderer with its views, the static fallback, metrics and
// the rate limiter
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := session.NewStore(ctx, cfg.SessionStoreConfig(), logger.Named("session"))
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	sessions := session.NewManager(store, cfg.SessionManagerConfig(), logger.Named("session"))

	var engine render.TemplateEngine
	if isDir(cfg.Server.ViewsDir) {
		engine = render.NewViewEngine(cfg.Server.ViewsDir, cfg.Server.ReloadViews, nil)
	}
	renderer := render.New(render.Config{AllowedDirs: cfg.Server.FileDirs}, engine, logger.Named("render"))

	var fallback http.Handler
	if isDir(cfg.Server.StaticDir) {
		fallback = render.Static(render.DefaultStaticConfig(cfg.Server.StaticDir))
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
	}

	opts := Options{
		Name:        cfg.App.Name,
		Sessions:    sessions,
		Renderer:    renderer,
		Metrics:     collector,
		MetricsPath: cfg.Metrics.Path,
		ProfilePath: cfg.Server.ProfilePath,
		Fallback:    fallback,
		Logger:      logger,
	}

	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.New(ctx, cfg.RateLimiterConfig(), logger.Named("ratelimit"))
		if err != nil {
			sessions.Close()
			return nil, err
		}
		opts.Middleware = append(opts.Middleware, ratelimit.Middleware(limiter, ratelimit.MiddlewareOptions{
			FailOpen: cfg.RateLimit.FailOpen,
			Logger:   logger.Named("ratelimit"),
		}))
		opts.Closers = append(opts.Closers, limiter)
	}

	return New(opts), nil
}

// NewServer returns a graceful server for a that shuts a down once the
// listener has drained
func NewServer(cfg *config.Config, a *App, logger *zap.Logger) (*server.GracefulShutdown, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	scfg := server.DefaultConfig(a.Handler())
	scfg.Address = cfg.Server.Addr()
	if cfg.Server.ReadTimeout > 0 {
		scfg.ReadTimeout = cfg.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout > 0 {
		scfg.WriteTimeout = cfg.Server.WriteTimeout
	}

	srv, err := server.New(scfg)
	if err != nil {
		return nil, err
	}
	gs := server.NewGracefulShutdown(srv, cfg.Server.ShutdownTimeout, logger.Named("server"))
	gs.RegisterHook(a.Shutdown)
	return gs, nil
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
