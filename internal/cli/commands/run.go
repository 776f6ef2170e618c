package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/weft/internal/deploy"
	"github.com/conduit-lang/weft/pkg/serve"
)

// goCommand is the go tool used to compile the deployed tree
var goCommand = "go"

// DefaultStopTimeout bounds how long a server gets to exit after SIGTERM
const DefaultStopTimeout = 10 * time.Second

type runOptions struct {
	build       buildOptions
	main        string
	binary      string
	watch       bool
	debounce    time.Duration
	stopTimeout time.Duration
}

func newRunCommand(g *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deploy, compile and run the application",
		Long: `Deploy the source tree, compile the deployed module and run it.

The run command will:
  1. Deploy the source tree into the output tree
  2. Compile the main package of the output tree
  3. Start the server and forward Ctrl+C to it
  4. With --watch, redeploy, recompile and restart on every change

A failed compile keeps the previous server running.`,
		Example: `  weft run
  weft run --watch
  weft run --main ./cmd/shop --binary bin/shop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, g, opts)
		},
	}

	cmd.Flags().StringVar(&opts.main, "main", ".", "Main package, relative to the output tree")
	cmd.Flags().StringVar(&opts.binary, "binary", "", "Compiled server path (default: weft-server next to the output tree)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Redeploy and restart on source changes")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", deploy.DefaultDebounce, "Quiet period before a rebuild")
	cmd.Flags().DurationVar(&opts.stopTimeout, "stop-timeout", DefaultStopTimeout, "Grace period before the server is killed")
	cmd.Flags().BoolVarP(&opts.build.verbose, "verbose", "v", false, "Show the loader log")
	cmd.Flags().StringVarP(&opts.build.source, "source", "s", "", "Source tree (default: deploy.source)")
	cmd.Flags().StringVarP(&opts.build.output, "output", "o", "", "Output tree (default: deploy.output)")

	return cmd
}

func runRun(cmd *cobra.Command, g *globalOptions, opts *runOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	info := g.color(color.FgCyan)

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	dopts := opts.build.deployOptions(cfg)
	logger := commandLogger(cfg, cmd.ErrOrStderr(), opts.build.verbose)
	defer logger.Sync()

	loader := deploy.NewLoader(dopts, logger)
	report := newBuildReporter(out, g)
	res, err := loader.Load(ctx)
	report.report(res, err)
	if err != nil {
		return err
	}

	sup, err := newSupervisor(g, opts, res.OutputDir, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := sup.restart(ctx); err != nil {
		return err
	}
	g.color(color.FgGreen, color.Bold).Fprintf(out, "Server started on http://%s\n", cfg.Server.Addr())

	var rebuilt chan struct{}
	if opts.watch {
		rebuilt = make(chan struct{}, 1)
		w, err := deploy.NewWatcher(loader, opts.debounce, func(res *deploy.Result, err error) {
			report.report(res, err)
			if err == nil {
				select {
				case rebuilt <- struct{}{}:
				default:
				}
			}
		})
		if err != nil {
			sup.stop()
			return err
		}
		if err := w.Start(); err != nil {
			sup.stop()
			return err
		}
		defer w.Stop()
		info.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", dopts.SourceDir)
	}

	for {
		select {
		case <-ctx.Done():
			info.Fprintln(out, "\nShutting down server...")
			return sup.stop()

		case <-rebuilt:
			if err := sup.restart(ctx); err != nil {
				g.color(color.FgRed).Fprintf(out, "✗ %v, previous server kept\n", err)
				continue
			}
			info.Fprintln(out, "Server restarted")

		case err := <-sup.exited():
			if !opts.watch {
				if err != nil {
					return fmt.Errorf("server exited: %w", err)
				}
				return nil
			}
			g.color(color.FgYellow).Fprintf(out, "Server exited (%v), waiting for changes\n", exitStatus(err))
		}
	}
}

func exitStatus(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

// supervisor compiles the deployed tree and keeps one server process
// running
type supervisor struct {
	dir     string
	main    string
	binary  string
	env     []string
	stdout  io.Writer
	stderr  io.Writer
	timeout time.Duration
	proc    *process
}

func newSupervisor(g *globalOptions, opts *runOptions, outputDir string, stdout, stderr io.Writer) (*supervisor, error) {
	binary := opts.binary
	if binary == "" {
		binary = filepath.Join(filepath.Dir(outputDir), "weft-server")
	}
	binary, err := filepath.Abs(binary)
	if err != nil {
		return nil, err
	}

	env := os.Environ()
	if g.configFile != "" {
		path, err := filepath.Abs(g.configFile)
		if err != nil {
			return nil, err
		}
		env = append(env, serve.ConfigEnv+"="+path)
	}

	timeout := opts.stopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	return &supervisor{
		dir:     outputDir,
		main:    opts.main,
		binary:  binary,
		env:     env,
		stdout:  stdout,
		stderr:  stderr,
		timeout: timeout,
	}, nil
}

func (s *supervisor) compile(ctx context.Context) error {
	c := exec.CommandContext(ctx, goCommand, "build", "-o", s.binary, s.main)
	c.Dir = s.dir
	c.Stdout = s.stderr
	c.Stderr = s.stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("compiling %s: %w", s.main, err)
	}
	return nil
}

// restart compiles first so a broken tree leaves the running server alone
func (s *supervisor) restart(ctx context.Context) error {
	if err := s.compile(ctx); err != nil {
		return err
	}
	if err := s.stop(); err != nil {
		return err
	}
	p, err := startProcess(s.binary, s.env, s.stdout, s.stderr)
	if err != nil {
		return err
	}
	s.proc = p
	return nil
}

func (s *supervisor) stop() error {
	if s.proc == nil {
		return nil
	}
	p := s.proc
	s.proc = nil
	return p.stop(s.timeout)
}

// exited delivers the exit of the current process; nil blocks forever
func (s *supervisor) exited() <-chan error {
	if s.proc == nil {
		return nil
	}
	return s.proc.exit
}

type process struct {
	cmd  *exec.Cmd
	exit chan error
	done chan struct{}
}

func startProcess(binary string, env []string, stdout, stderr io.Writer) (*process, error) {
	c := exec.Command(binary)
	c.Env = env
	c.Stdout = stdout
	c.Stderr = stderr
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	p := &process{cmd: c, exit: make(chan error, 1), done: make(chan struct{})}
	go func() {
		p.exit <- c.Wait()
		close(p.done)
	}()
	return p, nil
}

// stop sends SIGTERM and kills the process if it outlives timeout
func (p *process) stop(timeout time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// already gone or not signalable
		p.cmd.Process.Kill()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("killing server: %w", err)
		}
		<-p.done
		return nil
	}
}
