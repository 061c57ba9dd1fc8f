package analyzer

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/dmitriimaksimovdevelop/perflens/internal/executor"
	"github.com/dmitriimaksimovdevelop/perflens/internal/model"
)

const (
	maxLeaks      = 10
	maxLeakFrames = 10
)

var (
	definitelyLostRe = regexp.MustCompile(`definitely lost: ([\d,]+) bytes`)
	indirectlyLostRe = regexp.MustCompile(`indirectly lost: ([\d,]+) bytes`)
	possiblyLostRe   = regexp.MustCompile(`possibly lost: ([\d,]+) bytes`)
	stillReachableRe = regexp.MustCompile(`still reachable: ([\d,]+) bytes`)

	// "50 bytes in 1 blocks are definitely lost in loss record 1 of 2"
	// "72 (32 direct, 40 indirect) bytes in 1 blocks are definitely lost ..."
	leakHeaderRe = regexp.MustCompile(
		`([\d,]+)(?: \([\d,]+ direct, [\d,]+ indirect\))? bytes in ([\d,]+) blocks? are (definitely|indirectly|possibly) lost`)
)

// MemoryAnalyzer finds heap leaks with valgrind memcheck.
type MemoryAnalyzer struct {
	base
}

// NewMemoryAnalyzer resolves valgrind once; the result is cached for the
// analyzer's lifetime.
func NewMemoryAnalyzer(opts Options) *MemoryAnalyzer {
	return &MemoryAnalyzer{base: newBase(executor.Valgrind, opts)}
}

// Analyze runs the target under memcheck.
func (a *MemoryAnalyzer) Analyze(ctx context.Context, path string, args []string, timeout time.Duration) *model.MemoryLeakResult {
	return run[*model.MemoryLeakResult](ctx, &a.base, a, model.Target{Path: path, Args: args, Timeout: timeout})
}

// Command runs the target under memcheck with full leak checking.
func (a *MemoryAnalyzer) Command(bin, target string, args []string) []string {
	argv := []string{
		bin,
		"--leak-check=full",
		"--show-leak-kinds=all",
		"--track-origins=yes",
		"--verbose",
		target,
	}
	return append(argv, args...)
}

// valgrind writes its report to stderr.
func (a *MemoryAnalyzer) Parse(_ context.Context, t model.Target, out *executor.RawOutput) *model.MemoryLeakResult {
	return ParseMemcheck(t.Path, out.Stderr)
}

// Empty returns a failed result with an empty leak list.
func (a *MemoryAnalyzer) Empty(target, raw string, err *model.ErrorInfo) *model.MemoryLeakResult {
	return &model.MemoryLeakResult{Outcome: model.Failed(target, raw, err), Leaks: []model.MemoryLeak{}}
}

// ParseMemcheck extracts leak totals and the largest leak records from
// valgrind memcheck output. Unrecognised lines are skipped.
func ParseMemcheck(target, raw string) *model.MemoryLeakResult {
	res := &model.MemoryLeakResult{
		Outcome:             model.Parsed(target, raw),
		DefinitelyLostBytes: firstCount(definitelyLostRe, raw),
		IndirectlyLostBytes: firstCount(indirectlyLostRe, raw),
		PossiblyLostBytes:   firstCount(possiblyLostRe, raw),
		StillReachableBytes: firstCount(stillReachableRe, raw),
	}

	leaks := []model.MemoryLeak{}
	ls := lines(raw)
	for i := 0; i < len(ls); i++ {
		m := leakHeaderRe.FindStringSubmatch(ls[i])
		if m == nil {
			continue
		}

		var frames []string
		j := i + 1
		for ; j < len(ls); j++ {
			cleaned := stripPIDPrefix(ls[j])
			if !isFrame(cleaned) {
				break
			}
			frames = append(frames, cleaned)
		}
		// A header without frames is not a leak record.
		if len(frames) == 0 {
			continue
		}
		i = j - 1

		bytesLost, _ := parseCount(m[1])
		blocks, _ := parseCount(m[2])
		if len(frames) > maxLeakFrames {
			frames = frames[:maxLeakFrames]
		}
		leaks = append(leaks, model.MemoryLeak{
			BytesLost:  bytesLost,
			Blocks:     blocks,
			LeakType:   m[3] + " lost",
			StackTrace: frames,
		})
	}

	sort.SliceStable(leaks, func(i, j int) bool {
		return leaks[i].BytesLost > leaks[j].BytesLost
	})

	res.TotalLeaks = len(leaks)
	if len(leaks) > maxLeaks {
		leaks = leaks[:maxLeaks]
	}
	res.Leaks = leaks
	return res
}

func firstCount(re *regexp.Regexp, raw string) int64 {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	n, _ := parseCount(m[1])
	return n
}
