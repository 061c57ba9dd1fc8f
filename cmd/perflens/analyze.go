package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitriimaksimovdevelop/perflens/internal/analyzer"
	"github.com/dmitriimaksimovdevelop/perflens/internal/config"
	"github.com/dmitriimaksimovdevelop/perflens/internal/metrics"
	"github.com/dmitriimaksimovdevelop/perflens/internal/model"
	"github.com/dmitriimaksimovdevelop/perflens/internal/output"
)

// analysisError marks a result that carried an ErrorInfo. The error has
// already been rendered, so main only sets the exit code.
type analysisError struct {
	info *model.ErrorInfo
}

func (e *analysisError) Error() string { return e.info.Message }
func (e *analysisError) Unwrap() error { return e.info }

// analyzeFlags are shared by every analyze subcommand.
type analyzeFlags struct {
	args    []string
	timeout string
	raw     bool
}

func (f *analyzeFlags) register(cmd *cobra.Command, withTimeout bool) {
	cmd.Flags().StringArrayVar(&f.args, "args", nil, "Argument for the target binary (repeatable)")
	cmd.Flags().BoolVar(&f.raw, "raw", false, "Print the tool's unparsed output")
	if withTimeout {
		cmd.Flags().StringVar(&f.timeout, "timeout", "", "Timeout in seconds or as a duration (e.g. 90, 5m)")
	}
}

// timeoutOverride parses --timeout. Zero means "not set".
func (f *analyzeFlags) timeoutOverride() (time.Duration, error) {
	if f.timeout == "" {
		return 0, nil
	}
	d, err := config.ParseDuration(f.timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid --timeout: %w", err)
	}
	return d, nil
}

// analyzeFunc runs one analyzer and returns the result with its outcome header.
type analyzeFunc func(ctx context.Context, opts analyzer.Options, cfg config.RuntimeConfig, binary string, args []string) (any, model.Outcome)

func newAnalyzeCmd(a *app) *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a binary under an analysis tool",
	}

	analyzeCmd.AddCommand(
		a.timedAnalyzeCmd("memory", "Find memory leaks with valgrind memcheck", false,
			func(ctx context.Context, opts analyzer.Options, cfg config.RuntimeConfig, binary string, args []string) (any, model.Outcome) {
				r := analyzer.NewMemoryAnalyzer(opts).Analyze(ctx, binary, args, cfg.Timeout)
				return r, r.Outcome
			}),
		newCPUCmd(a),
		a.timedAnalyzeCmd("cache", "Measure cache behaviour with perf stat", false,
			func(ctx context.Context, opts analyzer.Options, cfg config.RuntimeConfig, binary string, args []string) (any, model.Outcome) {
				r := analyzer.NewCacheAnalyzer(opts).Analyze(ctx, binary, args, cfg.Timeout)
				return r, r.Outcome
			}),
		a.timedAnalyzeCmd("syscall", "Summarize system calls with strace -c", false,
			func(ctx context.Context, opts analyzer.Options, cfg config.RuntimeConfig, binary string, args []string) (any, model.Outcome) {
				r := analyzer.NewSyscallAnalyzer(opts).Analyze(ctx, binary, args, cfg.Timeout)
				return r, r.Outcome
			}),
		a.timedAnalyzeCmd("thread", "Detect data races and lock errors with valgrind helgrind", true,
			func(ctx context.Context, opts analyzer.Options, cfg config.RuntimeConfig, binary string, args []string) (any, model.Outcome) {
				r := analyzer.NewThreadAnalyzer(opts).Analyze(ctx, binary, args, cfg.ThreadTimeout)
				return r, r.Outcome
			}),
	)
	return analyzeCmd
}

// timedAnalyzeCmd builds a subcommand whose --timeout sets either the
// general timeout or, for helgrind, the thread timeout.
func (a *app) timedAnalyzeCmd(name, short string, threadTimeout bool, fn analyzeFunc) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   name + " <binary>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := f.timeoutOverride()
			if err != nil {
				return err
			}
			var ov config.Overrides
			if threadTimeout {
				ov.ThreadTimeout = timeout
			} else {
				ov.Timeout = timeout
			}
			return a.analyze(cmd.Context(), name, args[0], &f, ov, fn)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newCPUCmd(a *app) *cobra.Command {
	var (
		f         analyzeFlags
		duration  string
		outputDir string
		frequency int
		pprof     bool
	)

	cmd := &cobra.Command{
		Use:   "cpu <binary>",
		Short: "Profile CPU usage with perf record",
		Long: `Sample the binary with perf record for a fixed duration and report the
hottest functions. When FlameGraph is installed an SVG is written to the
output directory; --pprof also writes a gzipped pprof profile.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ov := config.Overrides{OutputDir: outputDir, CPUFrequency: frequency}
			if duration != "" {
				d, err := config.ParseDuration(duration)
				if err != nil {
					return fmt.Errorf("invalid --duration: %w", err)
				}
				ov.CPUDuration = d
			}
			return a.analyze(cmd.Context(), "cpu", args[0], &f, ov,
				func(ctx context.Context, opts analyzer.Options, cfg config.RuntimeConfig, binary string, targetArgs []string) (any, model.Outcome) {
					cpu := analyzer.NewCPUAnalyzer(opts)
					if !cpu.FlameGraphAvailable() {
						opts.Log.Debug().Msg("FlameGraph scripts not found, skipping flame graph")
					}
					r := cpu.Analyze(ctx, binary, targetArgs, analyzer.CPUOptions{
						Duration:    cfg.CPUDuration,
						FrequencyHz: cfg.CPUFrequency,
						OutputDir:   cfg.OutputDir,
						Pprof:       pprof,
					})
					return r, r.Outcome
				})
		},
	}
	f.register(cmd, false)
	cmd.Flags().StringVarP(&duration, "duration", "d", "", "Sampling duration in seconds or as a duration (default 30s)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for the flame graph and pprof files (default .)")
	cmd.Flags().IntVarP(&frequency, "frequency", "F", 0, "Sampling frequency in Hz (default 99)")
	cmd.Flags().BoolVar(&pprof, "pprof", false, "Also write a gzipped pprof profile")
	return cmd
}

// analyze loads the config, runs fn and reports its result.
func (a *app) analyze(ctx context.Context, name, binary string, f *analyzeFlags, ov config.Overrides, fn analyzeFunc) error {
	cfg, err := a.loadConfig(ov)
	if err != nil {
		return err
	}
	p := a.progress()
	p.Log("Analyzing %s (%s)...", binary, name)

	result, outcome := fn(ctx, a.options(cfg, p), cfg, binary, f.args)
	if outcome.Succeeded {
		p.Log("Analysis complete")
	}
	return a.report(p, result, outcome, f.raw)
}

// report prints the result in the requested form and writes the metrics
// file. A result carrying an error turns into an analysisError.
func (a *app) report(p *output.Progress, result any, o model.Outcome, raw bool) error {
	var err error
	switch {
	case raw:
		err = output.WriteRaw(a.stdout, o.RawText)
	case a.jsonOut:
		err = output.WriteJSON(a.stdout, result)
	default:
		err = output.Render(a.stdout, result)
	}
	if err != nil {
		return err
	}

	if a.metricsFile != "" {
		if err := metrics.WriteTextfile(a.metricsFile, result); err != nil {
			return err
		}
		p.Debug("metrics written to %s", a.metricsFile)
	}

	if o.Error == nil {
		return nil
	}
	if raw {
		p.Warn("%s", o.Error.Message)
		if o.Error.Hint != "" {
			p.Warn("install with: %s", o.Error.Hint)
		}
	}
	return &analysisError{info: o.Error}
}
