// Package serve runs a weft application built from generated handler sets.
//
// A project's main package typically reduces to
//
//	func main() {
//		serve.Main(weftgen.Handlers())
//	}
package serve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/conduit-lang/weft/internal/app"
	"github.com/conduit-lang/weft/internal/cli/config"
	"github.com/conduit-lang/weft/internal/logging"
	"github.com/conduit-lang/weft/pkg/capability"
)

// ConfigEnv names the environment variable holding an explicit config file
const ConfigEnv = "WEFT_CONFIG"

// Options configures Run
type Options struct {
	// ConfigFile is read instead of weft.yml in the working directory
	ConfigFile string
	// Logger replaces the logger built from the log section
	Logger *zap.Logger
}

// Run deploys sets and serves them until ctx is done
func Run(ctx context.Context, opts Options, sets ...capability.Set) error {
	cfg, logger, a, err := deploy(ctx, opts, sets)
	if err != nil {
		return err
	}
	if opts.Logger == nil {
		defer logger.Sync()
	}

	gs, err := app.NewServer(cfg, a, logger)
	if err != nil {
		a.Shutdown(context.Background())
		return err
	}
	return gs.Run(ctx)
}

// Handler deploys sets and returns the application's handler without
// serving it. shutdown destroys the initializers and closes the session
// store.
func Handler(ctx context.Context, opts Options, sets ...capability.Set) (h http.Handler, shutdown func(context.Context) error, err error) {
	_, _, a, err := deploy(ctx, opts, sets)
	if err != nil {
		return nil, nil, err
	}
	return a.Handler(), a.Shutdown, nil
}

func deploy(ctx context.Context, opts Options, sets []capability.Set) (*config.Config, *zap.Logger, *app.App, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.LoadFile(opts.ConfigFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, nil, err
	}

	logger := opts.Logger
	if logger == nil {
		if logger, err = logging.New(cfg.Log.Level, cfg.Log.Format); err != nil {
			return nil, nil, nil, err
		}
	}

	a, err := app.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := a.Deploy(sets...); err != nil {
		a.Shutdown(context.Background())
		return nil, nil, nil, fmt.Errorf("deploy failed: %w", err)
	}
	return cfg, logger, a, nil
}

// Main runs sets until SIGINT or SIGTERM and exits non-zero on failure
func Main(sets ...capability.Set) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Run(ctx, Options{ConfigFile: os.Getenv(ConfigEnv)}, sets...)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "weft: %v\n", err)
		os.Exit(1)
	}
}
