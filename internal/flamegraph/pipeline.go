package flamegraph

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/dmitriimaksimovdevelop/perflens/internal/executor"
)

const (
	// CollapseScript must sit next to flamegraph.pl.
	CollapseScript = "stackcollapse-perf.pl"
	Title          = "CPU Flame Graph"

	defaultStepTimeout = 120 * time.Second
)

// Step names, in execution order.
const (
	StepScript   = "script"
	StepCollapse = "collapse"
	StepRender   = "render"
	StepWrite    = "write"
)

// StepResult records the outcome of one pipeline stage.
type StepResult struct {
	Name string
	Err  error
}

// Outcome is the result of Render. SVGPath is empty unless every step succeeded.
type Outcome struct {
	Steps   []StepResult
	Stacks  []Stack
	SVGPath string
}

// OK reports whether the flame graph was written.
func (o Outcome) OK() bool {
	return o.SVGPath != ""
}

// Err returns the first failed step's error, if any.
func (o Outcome) Err() error {
	for _, s := range o.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Pipeline runs perf script | stackcollapse-perf.pl | flamegraph.pl.
type Pipeline struct {
	Perf     string // perf executable
	Perl     string // perl interpreter
	Collapse string // stackcollapse-perf.pl
	Renderer string // flamegraph.pl

	Runner      executor.Executor
	Fs          afero.Fs
	StepTimeout time.Duration
	Log         zerolog.Logger
}

// NewPipeline resolves perl and the FlameGraph scripts. It reports false when
// any of them is missing, in which case no flame graph can be produced.
func NewPipeline(loc *executor.Locator, perfBin string, runner executor.Executor, fs afero.Fs, log zerolog.Logger) (*Pipeline, bool) {
	if loc == nil || perfBin == "" {
		return nil, false
	}
	script, ok := loc.Locate(executor.FlameGraph)
	if !ok {
		return nil, false
	}
	perl, ok := loc.Locate(executor.Perl)
	if !ok {
		return nil, false
	}
	collapse := filepath.Join(filepath.Dir(script), CollapseScript)
	if !loc.Exists(collapse) {
		return nil, false
	}
	return &Pipeline{
		Perf:        perfBin,
		Perl:        perl,
		Collapse:    collapse,
		Renderer:    script,
		Runner:      runner,
		Fs:          fs,
		StepTimeout: defaultStepTimeout,
		Log:         log,
	}, true
}

// Render converts a perf data file into an SVG at svgPath. A failing stage
// stops the pipeline; later stages are not attempted.
func (p *Pipeline) Render(ctx context.Context, dataFile, svgPath string) Outcome {
	var out Outcome

	step := func(name string, argv []string, stdin string) (string, bool) {
		text, err := p.exec(ctx, argv, stdin)
		out.Steps = append(out.Steps, StepResult{Name: name, Err: err})
		if err != nil {
			p.Log.Debug().Err(err).Str("step", name).Msg("flame graph step failed")
			return "", false
		}
		return text, true
	}

	script, ok := step(StepScript, []string{p.Perf, "script", "-i", dataFile}, "")
	if !ok {
		return out
	}
	folded, ok := step(StepCollapse, []string{p.Perl, p.Collapse}, script)
	if !ok {
		return out
	}
	out.Stacks = ParseFolded(folded)

	svg, ok := step(StepRender, []string{p.Perl, p.Renderer, "--title", Title}, folded)
	if !ok {
		return out
	}

	err := afero.WriteFile(p.Fs, svgPath, []byte(svg), 0o644)
	out.Steps = append(out.Steps, StepResult{Name: StepWrite, Err: err})
	if err != nil {
		return out
	}
	out.SVGPath = svgPath
	return out
}

func (p *Pipeline) exec(ctx context.Context, argv []string, stdin string) (string, error) {
	req := executor.Request{Argv: argv, Timeout: p.StepTimeout}
	if stdin != "" {
		req.Stdin = strings.NewReader(stdin)
	}
	raw, err := p.Runner.Run(ctx, req)
	if err != nil {
		return "", err
	}
	if raw.ExitCode != 0 {
		return "", fmt.Errorf("exit status %d: %s", raw.ExitCode, strings.TrimSpace(raw.Stderr))
	}
	if strings.TrimSpace(raw.Stdout) == "" {
		return "", fmt.Errorf("no output")
	}
	return raw.Stdout, nil
}
