// Package commands implements the weft command line
package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/weft/internal/cli/config"
	"github.com/conduit-lang/weft/internal/logging"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	configFile string
	noColor    bool
}

func (g *globalOptions) loadConfig() (*config.Config, error) {
	if g.configFile != "" {
		return config.LoadFile(g.configFile)
	}
	return config.Load()
}

// commandLogger returns a console logger on w when verbose, a no-op
// logger otherwise
func commandLogger(cfg *config.Config, w io.Writer, verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	level := cfg.Log.Level
	if level == "info" {
		level = "debug"
	}
	logger, err := logging.NewWithWriter(level, logging.FormatConsole, w)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (g *globalOptions) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if g.noColor {
		c.DisableColor()
	}
	return c
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "weft",
		Short: "Deploy and serve Go web handlers",
		Long: color.CyanString(`weft - handler deployment for Go web applications

weft scans a source tree for controller, interceptor and initializer
types, validates them, generates their wiring code into an output tree
and serves the result behind a pattern router.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "Config file (default: weft.yml in the current directory)")
	rootCmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newVersionCommand(g))
	rootCmd.AddCommand(newBuildCommand(g))
	rootCmd.AddCommand(newInspectCommand(g))
	rootCmd.AddCommand(newWatchCommand(g))
	rootCmd.AddCommand(newRunCommand(g))

	return rootCmd
}

func newVersionCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version := Version
			if version == "dev" {
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
					version = info.Main.Version
				}
			}

			title := g.color(color.FgCyan, color.Bold)
			out := cmd.OutOrStdout()
			for _, line := range [][2]string{
				{"weft version: ", version},
				{"Git commit: ", GitCommit},
				{"Build date: ", BuildDate},
				{"Go version: ", runtime.Version()},
			} {
				title.Fprint(out, line[0])
				io.WriteString(out, line[1]+"\n")
			}
		},
	}
}

// Execute runs the root command until it finishes or the process is
// interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
