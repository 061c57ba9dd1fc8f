// Package analyzer drives the wrapped analysis tools and parses their text
// output into typed results.
//
// Every analyzer follows the same sequence: availability, target existence,
// invocation, parse. Failures at any step produce a result with Error set
// rather than a Go error.
package analyzer

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/dmitriimaksimovdevelop/perflens/internal/executor"
	"github.com/dmitriimaksimovdevelop/perflens/internal/installer"
	"github.com/dmitriimaksimovdevelop/perflens/internal/model"
)

// Default wall-clock budgets.
const (
	DefaultTimeout       = 300 * time.Second
	DefaultThreadTimeout = 600 * time.Second
)

// Options are shared by all analyzer constructors.
type Options struct {
	Locator *executor.Locator
	Runner  executor.Executor
	Fs      afero.Fs
	Log     zerolog.Logger
}

// DefaultOptions wires the real filesystem, PATH lookup and process executor.
func DefaultOptions(log zerolog.Logger, toolPaths map[string]string) Options {
	return Options{
		Locator: executor.NewLocator(toolPaths),
		Runner:  executor.NewProcExecutor(log),
		Fs:      afero.NewOsFs(),
		Log:     log,
	}
}

// Tool is the per-analyzer capability plugged into run.
type Tool[R any] interface {
	// Command builds the argv for the located executable and absolute target.
	Command(bin, target string, args []string) []string
	// Parse turns captured output into a result. It never fails; malformed
	// input yields empty fields.
	Parse(ctx context.Context, t model.Target, out *executor.RawOutput) R
	// Empty builds a result carrying only an error.
	Empty(target, raw string, err *model.ErrorInfo) R
}

// preparer is implemented by tools that need scratch state before launch.
type preparer interface {
	Prepare() error
}

// stopper is implemented by tools that sample for a fixed time and are then
// interrupted rather than run to completion.
type stopper interface {
	StopAfter() time.Duration
}

// base holds what every analyzer resolves once at construction.
type base struct {
	tool   string // executable name, e.g. "valgrind"
	bin    string // resolved path, empty when unavailable
	runner executor.Executor
	fs     afero.Fs
	log    zerolog.Logger
}

func newBase(tool string, opts Options) base {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	b := base{tool: tool, runner: opts.Runner, fs: fs, log: opts.Log}
	if opts.Locator != nil {
		b.bin, _ = opts.Locator.Locate(tool)
	}
	return b
}

// Available reports whether the executable was found at construction time.
func (b *base) Available() bool {
	return b.bin != ""
}

// Path returns the resolved executable path, empty when unavailable.
func (b *base) Path() string {
	return b.bin
}

// run is the state machine shared by all analyzers:
// Unavailable | TargetMissing | TimedOut | Failed | Parsed.
func run[R any](ctx context.Context, b *base, tool Tool[R], t model.Target) R {
	if !b.Available() {
		return tool.Empty(t.Path, "", model.NotInstalled(b.tool, installer.HintFor(b.tool)))
	}

	if !fileExists(b.fs, t.Path) {
		return tool.Empty(t.Path, "", model.MissingBinary(t.Path))
	}

	abs, err := filepath.Abs(t.Path)
	if err != nil {
		abs = t.Path
	}

	if p, ok := tool.(preparer); ok {
		if err := p.Prepare(); err != nil {
			return tool.Empty(t.Path, "", model.ExecFailed(err.Error()))
		}
	}

	req := executor.Request{Argv: tool.Command(b.bin, abs, t.Args), Timeout: t.Timeout}
	if s, ok := tool.(stopper); ok {
		req.StopAfter = s.StopAfter()
	}
	b.log.Debug().Str("tool", b.tool).Str("target", abs).Msg("invoking")

	out, err := b.runner.Run(ctx, req)
	if err != nil {
		raw := ""
		if out != nil {
			raw = out.Stderr
		}
		return tool.Empty(t.Path, raw, classify(err, t.Timeout))
	}
	if out.Truncated {
		b.log.Warn().Str("tool", b.tool).Msg("output truncated")
	}
	return tool.Parse(ctx, t, out)
}

// classify maps an executor error onto the result error taxonomy.
func classify(err error, timeout time.Duration) *model.ErrorInfo {
	if errors.Is(err, executor.ErrTimeout) {
		return model.TimedOut(timeout)
	}
	return model.ExecFailed(err.Error())
}

func fileExists(fs afero.Fs, path string) bool {
	if path == "" {
		return false
	}
	_, err := fs.Stat(path)
	return err == nil
}
