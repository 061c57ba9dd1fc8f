package analyzer

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/perflens/internal/executor"
	"github.com/dmitriimaksimovdevelop/perflens/internal/model"
)

const maxSyscalls = 15

// "total    0.000988     105" style line led by the literal token.
var leadingTotalRe = regexp.MustCompile(`^total\s+\S+\s+([\d.]+)\s+\S+\s+(\d+)`)

// SyscallAnalyzer summarizes system call usage with strace -c.
type SyscallAnalyzer struct {
	base
}

// NewSyscallAnalyzer locates strace.
func NewSyscallAnalyzer(opts Options) *SyscallAnalyzer {
	return &SyscallAnalyzer{base: newBase(executor.Strace, opts)}
}

// Analyze runs the target under strace in summary mode.
func (a *SyscallAnalyzer) Analyze(ctx context.Context, path string, args []string, timeout time.Duration) *model.SyscallStatsResult {
	return run[*model.SyscallStatsResult](ctx, &a.base, a, model.Target{Path: path, Args: args, Timeout: timeout})
}

// Command asks strace for a summary sorted by time.
func (a *SyscallAnalyzer) Command(bin, target string, args []string) []string {
	argv := []string{bin, "-c", "-S", "time", target}
	return append(argv, args...)
}

// strace prints the summary table to stderr.
func (a *SyscallAnalyzer) Parse(_ context.Context, t model.Target, out *executor.RawOutput) *model.SyscallStatsResult {
	return ParseStraceSummary(t.Path, out.Stderr)
}

// Empty returns a failed result with an empty syscall list.
func (a *SyscallAnalyzer) Empty(target, raw string, err *model.ErrorInfo) *model.SyscallStatsResult {
	return &model.SyscallStatsResult{Outcome: model.Failed(target, raw, err), Syscalls: []model.SyscallStat{}}
}

// ParseStraceSummary parses the strace -c table:
//
//	% time     seconds  usecs/call     calls    errors syscall
//	------ ----------- ----------- --------- --------- ----------------
//	 52.26    0.000516          16        31           mmap
//	  5.26    0.000052          17         3         1 write
//
// The errors column is only present on rows that produced errors, so the
// field count decides where the name is.
func ParseStraceSummary(target, raw string) *model.SyscallStatsResult {
	res := &model.SyscallStatsResult{Outcome: model.Parsed(target, raw)}
	stats := []model.SyscallStat{}
	var spans [][2]int
	totalRow, callsKnown := false, false

	for _, rawLine := range lines(raw) {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		if strings.HasPrefix(line, "-") {
			spans = columnSpans(rawLine)
			continue
		}

		if strings.HasPrefix(line, "total") {
			if m := leadingTotalRe.FindStringSubmatch(line); m != nil {
				res.TotalTimeSeconds, _ = strconv.ParseFloat(m[1], 64)
				res.TotalCalls, _ = strconv.ParseInt(m[2], 10, 64)
				totalRow, callsKnown = true, true
			}
			continue
		}

		fields := strings.Fields(line)

		// Newer strace prints the totals row with "total" in the name column.
		if len(fields) >= 4 && len(fields) <= 6 && fields[len(fields)-1] == "total" {
			totalRow = true
			if secs, err := strconv.ParseFloat(fields[1], 64); err == nil {
				res.TotalTimeSeconds = secs
			}
			if calls, ok := totalCalls(rawLine, fields, spans); ok {
				res.TotalCalls = calls
				callsKnown = true
			}
			continue
		}

		if len(fields) != 5 && len(fields) != 6 {
			continue
		}
		stat, ok := parseSyscallRow(fields)
		if !ok {
			continue
		}
		stats = append(stats, stat)
	}

	// A totals row whose calls column could not be placed is rebuilt from
	// the rows, which all precede truncation.
	if totalRow && !callsKnown {
		for _, st := range stats {
			res.TotalCalls += st.Calls
		}
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].TimeSeconds > stats[j].TimeSeconds
	})
	if len(stats) > maxSyscalls {
		stats = stats[:maxSyscalls]
	}
	res.Syscalls = stats
	return res
}

func parseSyscallRow(fields []string) (model.SyscallStat, bool) {
	pct, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return model.SyscallStat{}, false
	}
	secs, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return model.SyscallStat{}, false
	}
	calls, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return model.SyscallStat{}, false
	}

	stat := model.SyscallStat{Calls: calls, TimeSeconds: secs, TimePercent: pct}
	if len(fields) == 6 {
		errs, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return model.SyscallStat{}, false
		}
		stat.Errors = errs
		stat.Name = fields[5]
	} else {
		stat.Name = fields[4]
	}
	return stat, true
}

// columnSpans returns the [start, end) offsets of the dash runs in a table
// separator line.
func columnSpans(sep string) [][2]int {
	var spans [][2]int
	start := -1
	for i := 0; i <= len(sep); i++ {
		dash := i < len(sep) && sep[i] == '-'
		switch {
		case dash && start < 0:
			start = i
		case !dash && start >= 0:
			spans = append(spans, [2]int{start, i})
			start = -1
		}
	}
	return spans
}

// totalCalls reads the calls column of the trailing totals row. Older strace
// leaves usecs/call blank there, so the separator's column offsets decide
// which field is which. Without them only the unambiguous widths are read.
func totalCalls(line string, fields []string, spans [][2]int) (int64, bool) {
	const callsColumn = 3
	if len(spans) > callsColumn && spans[callsColumn][0] < len(line) {
		span := spans[callsColumn]
		cell := strings.TrimSpace(line[span[0]:min(span[1], len(line))])
		if calls, err := strconv.ParseInt(cell, 10, 64); err == nil {
			return calls, true
		}
	}

	var cell string
	switch len(fields) {
	case 6:
		cell = fields[3]
	case 4:
		cell = fields[2]
	default:
		// five fields: usecs/call or errors is missing, no way to tell which
		return 0, false
	}
	calls, err := strconv.ParseInt(cell, 10, 64)
	return calls, err == nil
}
