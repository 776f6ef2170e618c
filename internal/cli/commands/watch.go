package commands

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/weft/internal/deploy"
	werrors "github.com/conduit-lang/weft/internal/errors"
)

type watchOptions struct {
	build    buildOptions
	debounce time.Duration
}

func newWatchCommand(g *globalOptions) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Redeploy whenever the source tree changes",
		Long: `Deploy the source tree, then watch it and deploy again after every
change to a Go file or go.mod.

Rapid successive saves are coalesced into a single deployment. Use
"weft run --watch" to also restart the server after each deployment.`,
		Example: `  weft watch
  weft watch --debounce 500ms --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, g, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.debounce, "debounce", deploy.DefaultDebounce, "Quiet period before a rebuild")
	cmd.Flags().BoolVarP(&opts.build.verbose, "verbose", "v", false, "Show the loader log")
	cmd.Flags().StringVarP(&opts.build.source, "source", "s", "", "Source tree (default: deploy.source)")
	cmd.Flags().StringVarP(&opts.build.output, "output", "o", "", "Output tree (default: deploy.output)")

	return cmd
}

func runWatch(cmd *cobra.Command, g *globalOptions, opts *watchOptions) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	dopts := opts.build.deployOptions(cfg)
	logger := commandLogger(cfg, cmd.ErrOrStderr(), opts.build.verbose)
	defer logger.Sync()

	loader := deploy.NewLoader(dopts, logger)
	report := newBuildReporter(cmd.OutOrStdout(), g)

	res, err := loader.Load(cmd.Context())
	report.report(res, err)
	if err != nil {
		return err
	}

	w, err := deploy.NewWatcher(loader, opts.debounce, report.report)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}

	g.color(color.FgCyan, color.Bold).Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", dopts.SourceDir)
	<-cmd.Context().Done()

	fmt.Fprintln(cmd.OutOrStdout(), "Stopping watcher...")
	return w.Stop()
}

// buildReporter prints one line per deployment plus the failures
type buildReporter struct {
	mu  sync.Mutex
	w   io.Writer
	g   *globalOptions
	now func() time.Time
}

func newBuildReporter(w io.Writer, g *globalOptions) *buildReporter {
	return &buildReporter{w: w, g: g, now: time.Now}
}

func (r *buildReporter) report(res *deploy.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stamp := r.now().Format("15:04:05")
	switch {
	case err != nil:
		r.g.color(color.FgRed, color.Bold).Fprintf(r.w, "[%s] ✗ deployment failed: %v\n", stamp, err)
	case res.Success:
		r.g.color(color.FgGreen).Fprintf(r.w, "[%s] ✓ %d controllers, %d interceptors, %d initializers (%s)\n",
			stamp, len(res.Controllers), len(res.Interceptors), len(res.Initializers), res.Duration.Round(time.Millisecond))
	default:
		r.g.color(color.FgYellow).Fprintf(r.w, "[%s] ⚠ %d controllers, %d interceptors, %d initializers, %d problem(s)\n",
			stamp, len(res.Controllers), len(res.Interceptors), len(res.Initializers), len(res.Failures))
		for _, f := range res.SortedFailures() {
			fmt.Fprintf(r.w, "    %s\n", werrors.FormatCompact(f))
		}
	}
}
