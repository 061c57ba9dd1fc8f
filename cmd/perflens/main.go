// perflens runs a target executable under an external analysis tool and
// reports the tool's findings as typed results.
//
// Memory leaks come from valgrind memcheck, CPU hotspots from perf record,
// cache statistics from perf stat, system call summaries from strace -c and
// threading errors from valgrind helgrind.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitriimaksimovdevelop/perflens/internal/analyzer"
	"github.com/dmitriimaksimovdevelop/perflens/internal/config"
	"github.com/dmitriimaksimovdevelop/perflens/internal/installer"
	"github.com/dmitriimaksimovdevelop/perflens/internal/output"
)

var (
	version = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(newApp(os.Stdout, os.Stderr))
	if err := root.ExecuteContext(ctx); err != nil {
		var failed *analysisError
		if !errors.As(err, &failed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// app holds the global flags and the streams commands write to.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	jsonOut     bool
	verbose     bool
	quiet       bool
	metricsFile string

	// options builds the analyzer dependencies; tests replace it.
	options func(cfg config.RuntimeConfig, p *output.Progress) analyzer.Options
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		options: func(cfg config.RuntimeConfig, p *output.Progress) analyzer.Options {
			return analyzer.DefaultOptions(p.Logger(), cfg.ToolPaths())
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "perflens",
		Short: "Run a program under an analysis tool and summarize the findings",
		Long: `perflens wraps external analysis tools and turns their reports into
structured results.

  memory   valgrind memcheck: leaked bytes by category, largest leaks
  cpu      perf record: hottest functions, optional flame graph and pprof
  cache    perf stat: IPC and per-level cache miss rates
  syscall  strace -c: most time-consuming system calls
  thread   valgrind helgrind: data races, lock order and mutex errors

Issues found in the target are a normal outcome (exit 0). A missing tool,
missing binary, timeout or tool failure exits 1.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Config file (default ./"+config.DefaultConfigPath+" when present)")
	pf.BoolVar(&a.jsonOut, "json", false, "Print results as JSON")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "Suppress progress output")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "Also write the result as Prometheus text exposition to this file")

	rootCmd.AddCommand(
		newAnalyzeCmd(a),
		newCheckCmd(a),
		newInstallCmd(a),
		newMCPCmd(a),
	)
	return rootCmd
}

func (a *app) progress() *output.Progress {
	return output.NewProgress(a.stderr, a.quiet, a.verbose)
}

// loadConfig merges defaults, config file, environment and flag overrides.
func (a *app) loadConfig(ov config.Overrides) (config.RuntimeConfig, error) {
	cfg, err := config.Loader{ConfigPath: a.configPath}.Load(ov)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Show which external tools are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(config.Overrides{})
			if err != nil {
				return err
			}
			p := a.progress()
			tools := analyzer.CheckTools(cmd.Context(), a.options(cfg, p))
			if a.jsonOut {
				return output.WriteJSON(a.stdout, tools)
			}
			return output.RenderTools(a.stdout, tools)
		},
	}
}

func newInstallCmd(a *app) *cobra.Command {
	var dryRun bool

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install valgrind, perf, strace and FlameGraph",
		Long:  "Detect the Linux distribution and install the external tools perflens wraps.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return installer.New(a.stdout, dryRun).Run()
		},
	}
	installCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be installed")
	return installCmd
}
