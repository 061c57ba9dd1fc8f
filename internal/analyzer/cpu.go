package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/dmitriimaksimovdevelop/perflens/internal/executor"
	"github.com/dmitriimaksimovdevelop/perflens/internal/flamegraph"
	"github.com/dmitriimaksimovdevelop/perflens/internal/model"
)

const (
	DefaultCPUDuration  = 30 * time.Second
	DefaultCPUFrequency = 99
	// CPUTimeoutBuffer covers perf startup and the flush after sampling stops.
	CPUTimeoutBuffer = 60 * time.Second

	maxHotspots = 10
)

// CPUOptions control a sampling run.
type CPUOptions struct {
	Duration    time.Duration
	FrequencyHz int
	OutputDir   string // where the flame graph and pprof files go
	Pprof       bool
}

func (o CPUOptions) withDefaults() CPUOptions {
	if o.Duration <= 0 {
		o.Duration = DefaultCPUDuration
	}
	if o.FrequencyHz <= 0 {
		o.FrequencyHz = DefaultCPUFrequency
	}
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	return o
}

// CPUAnalyzer profiles a target with perf record and perf report.
type CPUAnalyzer struct {
	base
	loc *executor.Locator
}

// NewCPUAnalyzer locates perf and keeps the locator for the flame graph scripts.
func NewCPUAnalyzer(opts Options) *CPUAnalyzer {
	return &CPUAnalyzer{base: newBase(executor.Perf, opts), loc: opts.Locator}
}

// FlameGraphAvailable reports whether flamegraph.pl, its collapse script and
// perl were all found.
func (a *CPUAnalyzer) FlameGraphAvailable() bool {
	_, ok := flamegraph.NewPipeline(a.loc, a.bin, a.runner, a.fs, a.log)
	return ok
}

// Analyze samples the target for opts.Duration. The perf data file lives in
// a private temporary directory that is removed before returning.
func (a *CPUAnalyzer) Analyze(ctx context.Context, path string, args []string, opts CPUOptions) *model.CPUProfileResult {
	opts = opts.withDefaults()
	r := &cpuRun{a: a, opts: opts}
	defer r.cleanup()

	t := model.Target{Path: path, Args: args, Timeout: opts.Duration + CPUTimeoutBuffer}
	return run[*model.CPUProfileResult](ctx, &a.base, r, t)
}

// cpuRun is the state of a single Analyze call.
type cpuRun struct {
	a    *CPUAnalyzer
	opts CPUOptions
	dir  string
}

func (r *cpuRun) dataFile() string {
	return filepath.Join(r.dir, "perf.data")
}

func (r *cpuRun) Prepare() error {
	dir, err := afero.TempDir(r.a.fs, "", "perflens-cpu-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	r.dir = dir
	return nil
}

func (r *cpuRun) cleanup() {
	if r.dir == "" {
		return
	}
	if err := r.a.fs.RemoveAll(r.dir); err != nil {
		r.a.log.Warn().Err(err).Str("dir", r.dir).Msg("remove perf data")
	}
}

func (r *cpuRun) StopAfter() time.Duration {
	return r.opts.Duration
}

// Command records call graphs into the run's private data file.
func (r *cpuRun) Command(bin, target string, args []string) []string {
	argv := []string{
		bin, "record",
		"-F", strconv.Itoa(r.opts.FrequencyHz),
		"-g",
		"-o", r.dataFile(),
		"--", target,
	}
	return append(argv, args...)
}

// Parse runs the report phase against the recorded data, then the optional
// flame graph and pprof exports.
func (r *cpuRun) Parse(ctx context.Context, t model.Target, rec *executor.RawOutput) *model.CPUProfileResult {
	a := r.a
	data := r.dataFile()

	// perf can exit nonzero when the profiled program does; the data file is
	// what matters.
	if !fileExists(a.fs, data) {
		msg := fmt.Sprintf("perf record produced no data (exit status %d)", rec.ExitCode)
		if last := lastLine(rec.Stderr); last != "" {
			msg += ": " + last
		}
		res := r.Empty(t.Path, rec.Stderr, model.ExecFailed(msg))
		res.DurationSeconds = r.opts.Duration.Seconds()
		res.FrequencyHz = r.opts.FrequencyHz
		return res
	}

	report, err := a.runner.Run(ctx, executor.Request{
		Argv:    []string{a.bin, "report", "-i", data, "--stdio", "--sort", "overhead,sym", "-n"},
		Timeout: t.Timeout,
	})
	if err != nil {
		raw := ""
		if report != nil {
			raw = report.Stderr
		}
		return r.Empty(t.Path, raw, classify(err, t.Timeout))
	}
	if report.ExitCode != 0 && strings.TrimSpace(report.Stdout) == "" {
		return r.Empty(t.Path, report.Stderr,
			model.ExecFailed(fmt.Sprintf("perf report exited with status %d: %s", report.ExitCode, lastLine(report.Stderr))))
	}

	res := ParsePerfReport(t.Path, report.Stdout)
	res.DurationSeconds = r.opts.Duration.Seconds()
	res.FrequencyHz = r.opts.FrequencyHz

	r.export(ctx, t.Path, res)
	return res
}

// export writes the flame graph and pprof artifacts. Failures only cost the
// artifact, never the analysis.
func (r *cpuRun) export(ctx context.Context, target string, res *model.CPUProfileResult) {
	a := r.a
	stem := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
	var stacks []flamegraph.Stack

	pipe, ok := flamegraph.NewPipeline(a.loc, a.bin, a.runner, a.fs, a.log)
	if !ok && !r.opts.Pprof {
		return
	}
	if err := a.fs.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		a.log.Warn().Err(err).Str("dir", r.opts.OutputDir).Msg("output directory unusable, no flame graph or pprof profile")
		return
	}

	if ok {
		svg := filepath.Join(r.opts.OutputDir, stem+"_flamegraph.svg")
		out := pipe.Render(ctx, r.dataFile(), svg)
		if out.OK() {
			res.FlameGraphPath = svg
		} else {
			a.log.Warn().Err(out.Err()).Msg("flame graph not generated")
		}
		stacks = out.Stacks
	}

	if !r.opts.Pprof {
		return
	}
	if len(stacks) == 0 {
		script, err := a.runner.Run(ctx, executor.Request{
			Argv:    []string{a.bin, "script", "-i", r.dataFile()},
			Timeout: CPUTimeoutBuffer,
		})
		if err != nil || script.ExitCode != 0 {
			a.log.Warn().Err(err).Msg("perf script failed, no pprof profile")
			return
		}
		stacks = flamegraph.Collapse(script.Stdout)
	}
	if len(stacks) == 0 {
		a.log.Warn().Msg("no call stacks recorded, no pprof profile")
		return
	}

	path := filepath.Join(r.opts.OutputDir, stem+"_cpu.pb.gz")
	if err := flamegraph.WritePprof(a.fs, path, stacks, r.opts.FrequencyHz, r.opts.Duration); err != nil {
		a.log.Warn().Err(err).Msg("pprof export failed")
		return
	}
	res.PprofPath = path
}

// Empty returns a failed result; sampling parameters stay zero.
func (r *cpuRun) Empty(target, raw string, err *model.ErrorInfo) *model.CPUProfileResult {
	return &model.CPUProfileResult{Outcome: model.Failed(target, raw, err), Hotspots: []model.Hotspot{}}
}

// ParsePerfReport parses perf report --stdio rows:
//
//	# Overhead  Samples  Command  Symbol
//	    45.20%      452  myprog   [.] compute_hash
//	     3.10%       31  myprog   [k] clear_page_erms
//
// Rows are kept in overhead order, top 10. TotalSamples sums the kept rows.
func ParsePerfReport(target, raw string) *model.CPUProfileResult {
	res := &model.CPUProfileResult{Outcome: model.Parsed(target, raw)}
	hotspots := []model.Hotspot{}

	for _, line := range lines(raw) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if h, ok := parseReportRow(strings.Fields(line)); ok {
			hotspots = append(hotspots, h)
		}
	}

	sort.SliceStable(hotspots, func(i, j int) bool {
		return hotspots[i].OverheadPercent > hotspots[j].OverheadPercent
	})
	if len(hotspots) > maxHotspots {
		hotspots = hotspots[:maxHotspots]
	}
	for _, h := range hotspots {
		res.TotalSamples += h.Samples
	}
	res.Hotspots = hotspots
	return res
}

func parseReportRow(fields []string) (model.Hotspot, bool) {
	if len(fields) < 4 || !strings.HasSuffix(fields[0], "%") {
		return model.Hotspot{}, false
	}
	pct, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "%"), 64)
	if err != nil || pct < 0 {
		return model.Hotspot{}, false
	}
	samples, ok := parseCount(fields[1])
	if !ok {
		return model.Hotspot{}, false
	}

	marker := -1
	for i := 2; i < len(fields); i++ {
		if fields[i] == "[.]" || fields[i] == "[k]" {
			marker = i
			break
		}
	}
	if marker < 0 || marker == len(fields)-1 {
		return model.Hotspot{}, false
	}

	h := model.Hotspot{
		Function:        strings.Join(fields[marker+1:], " "),
		OverheadPercent: pct,
		Samples:         samples,
		Kernel:          fields[marker] == "[k]",
	}
	// With --sort overhead,sym the command column is the module; it is
	// absent on some perf versions.
	if marker > 2 {
		h.Module = fields[2]
	}
	return h, true
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
