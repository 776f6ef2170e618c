package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/weft/internal/cli/config"
	"github.com/conduit-lang/weft/internal/cli/ui"
	"github.com/conduit-lang/weft/internal/deploy"
	werrors "github.com/conduit-lang/weft/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrBuildFailed is returned when at least one handler could not be deployed
var ErrBuildFailed = errors.New("build failed")

type buildOptions struct {
	json    bool
	verbose bool
	source  string
	output  string
}

// deployOptions applies the --source and --output overrides to the
// configured deploy section
func (o *buildOptions) deployOptions(cfg *config.Config) deploy.Options {
	dopts := cfg.DeployOptions()
	if o.source != "" {
		dopts.SourceDir = o.source
	}
	if o.output != "" {
		dopts.OutputDir = o.output
	}
	return dopts
}

// buildReport is the --json form of a deployment result
type buildReport struct {
	Success        bool              `json:"success"`
	Module         string            `json:"module,omitempty"`
	OutputDir      string            `json:"output_dir,omitempty"`
	Manifest       string            `json:"manifest,omitempty"`
	Controllers    int               `json:"controllers"`
	Interceptors   int               `json:"interceptors"`
	Initializers   int               `json:"initializers"`
	FilesCopied    int               `json:"files_copied"`
	FilesGenerated int               `json:"files_generated"`
	DurationMS     int64             `json:"duration_ms"`
	Failures       werrors.ErrorList `json:"failures"`
	Error          string            `json:"error,omitempty"`
}

func newBuildCommand(g *globalOptions) *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Deploy the handler source tree into the output tree",
		Long: `Scan the source tree for handler types and deploy them.

The build process:
  1. Copy the source tree into the output tree
  2. Parse every Go file and find handler types
  3. Validate parameters, context bindings, actions and patterns
  4. Generate specialized wiring code for every valid handler
  5. Write the deployment manifest

Handlers that fail validation are reported and left out; the rest are
still deployed.`,
		Example: `  # Deploy app/ into build/app
  weft build

  # Show each step and the loader's log
  weft build --verbose

  # Machine readable result, e.g. for editors
  weft build --json

  # Custom trees
  weft build --source handlers --output gen/handlers`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, g, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show progress and the loader log")
	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "Source tree (default: deploy.source)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output tree (default: deploy.output)")

	return cmd
}

func runBuild(cmd *cobra.Command, g *globalOptions, opts *buildOptions) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	res, err := deployOnce(cmd, g, cfg, opts)
	if opts.json {
		if werr := writeBuildJSON(cmd.OutOrStdout(), res, err); werr != nil {
			return werr
		}
	} else if err == nil {
		printBuildResult(cmd.OutOrStdout(), g, res)
	}

	if err != nil {
		return err
	}
	if !res.Success {
		return ErrBuildFailed
	}
	return nil
}

// deployOnce runs the loader with the flag overrides applied
func deployOnce(cmd *cobra.Command, g *globalOptions, cfg *config.Config, opts *buildOptions) (*deploy.Result, error) {
	dopts := opts.deployOptions(cfg)
	showProgress := opts.verbose && !opts.json
	if showProgress {
		bar := ui.NewProgressBar(cmd.ErrOrStderr(), 0, g.noColor)
		dopts.ProgressFunc = bar.Update
		defer bar.Finish()
		g.color(color.FgCyan).Fprintf(cmd.ErrOrStderr(), "Deploying %s into %s\n", dopts.SourceDir, dopts.OutputDir)
	}

	logger := commandLogger(cfg, cmd.ErrOrStderr(), showProgress)
	defer logger.Sync()

	return deploy.NewLoader(dopts, logger).Load(cmd.Context())
}

func writeBuildJSON(w io.Writer, res *deploy.Result, loadErr error) error {
	report := buildReport{Failures: werrors.ErrorList{}}
	if loadErr != nil {
		report.Error = loadErr.Error()
		report.Failures = append(report.Failures, werrors.As(loadErr))
	}
	if res != nil {
		report.Success = res.Success && loadErr == nil
		report.Module = res.Module
		report.OutputDir = res.OutputDir
		report.Manifest = res.ManifestPath
		report.Controllers = len(res.Controllers)
		report.Interceptors = len(res.Interceptors)
		report.Initializers = len(res.Initializers)
		report.FilesCopied = res.FilesCopied
		report.FilesGenerated = res.FilesGenerated
		report.DurationMS = res.Duration.Milliseconds()
		report.Failures = append(report.Failures, res.SortedFailures()...)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printBuildResult(w io.Writer, g *globalOptions, res *deploy.Result) {
	if res.Success {
		g.color(color.FgGreen, color.Bold).Fprintf(w, "✓ Deployed %s in %s\n", res.Module, res.Duration.Round(time.Millisecond))
	} else {
		g.color(color.FgYellow, color.Bold).Fprintf(w, "⚠ Deployed %s with %d problem(s)\n", res.Module, len(res.Failures))
	}

	ui.KeyValue(w, [][2]string{
		{"controllers", fmt.Sprint(len(res.Controllers))},
		{"interceptors", fmt.Sprint(len(res.Interceptors))},
		{"initializers", fmt.Sprint(len(res.Initializers))},
		{"files copied", fmt.Sprint(res.FilesCopied)},
		{"files generated", fmt.Sprint(res.FilesGenerated)},
		{"manifest", res.ManifestPath},
	}, g.noColor)

	if !res.Success {
		fmt.Fprintln(w)
		g.color(color.FgRed).Fprint(w, werrors.FormatErrorList(res.SortedFailures()))
	}
}
