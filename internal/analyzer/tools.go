package analyzer

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitriimaksimovdevelop/perflens/internal/executor"
	"github.com/dmitriimaksimovdevelop/perflens/internal/installer"
	"github.com/dmitriimaksimovdevelop/perflens/internal/model"
)

// versionProbeTimeout bounds each "--version" call.
const versionProbeTimeout = 5 * time.Second

type toolSpec struct {
	name    string
	purpose string
	version []string // arguments printing a version, nil for none
}

var toolSpecs = []toolSpec{
	{executor.Valgrind, "memory, thread", []string{"--version"}},
	{executor.Perf, "cpu, cache", []string{"--version"}},
	{executor.Strace, "syscall", []string{"-V"}},
	{executor.Perl, "flame graphs", []string{"-e", "print $^V"}},
	{executor.FlameGraph, "flame graphs", nil},
}

// CheckTools locates every external executable and probes the versions of
// the ones found. Probes run concurrently; a failed probe leaves Version empty.
func CheckTools(ctx context.Context, opts Options) []model.ToolStatus {
	statuses := make([]model.ToolStatus, len(toolSpecs))

	g, ctx := errgroup.WithContext(ctx)
	for i, spec := range toolSpecs {
		st := model.ToolStatus{Name: spec.name, Purpose: spec.purpose}
		if opts.Locator != nil {
			st.Path, st.Available = opts.Locator.Locate(spec.name)
		}
		if !st.Available {
			st.Hint = installer.HintFor(spec.name)
		}
		statuses[i] = st

		if !st.Available || spec.version == nil || opts.Runner == nil {
			continue
		}
		g.Go(func() error {
			argv := append([]string{statuses[i].Path}, spec.version...)
			out, err := opts.Runner.Run(ctx, executor.Request{Argv: argv, Timeout: versionProbeTimeout})
			if err != nil {
				opts.Log.Debug().Err(err).Str("tool", spec.name).Msg("version probe failed")
				return nil
			}
			statuses[i].Version = firstLine(out.Stdout, out.Stderr)
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

func firstLine(streams ...string) string {
	for _, s := range streams {
		for _, line := range lines(s) {
			if line = strings.TrimSpace(line); line != "" {
				return line
			}
		}
	}
	return ""
}
