package analyzer

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/perflens/internal/executor"
	"github.com/dmitriimaksimovdevelop/perflens/internal/model"
)

const (
	maxIssues         = 10
	maxIssueFrames    = 5
	maxDescriptionLen = 200
)

var (
	// helgrind separates error reports with an empty prefixed line.
	blockBoundaryRe = regexp.MustCompile(`==\d+==\s*\n==\d+== `)
	threadIDRe      = regexp.MustCompile(`Thread #(\d+)`)
	errorSummaryRe  = regexp.MustCompile(`ERROR SUMMARY: (\d+) errors`)
)

// ThreadAnalyzer detects threading errors with valgrind helgrind.
type ThreadAnalyzer struct {
	base
}

// NewThreadAnalyzer locates valgrind.
func NewThreadAnalyzer(opts Options) *ThreadAnalyzer {
	return &ThreadAnalyzer{base: newBase(executor.Valgrind, opts)}
}

// Analyze runs the target under helgrind.
func (a *ThreadAnalyzer) Analyze(ctx context.Context, path string, args []string, timeout time.Duration) *model.ThreadIssuesResult {
	return run[*model.ThreadIssuesResult](ctx, &a.base, a, model.Target{Path: path, Args: args, Timeout: timeout})
}

// Command runs the target under helgrind.
func (a *ThreadAnalyzer) Command(bin, target string, args []string) []string {
	argv := []string{bin, "--tool=helgrind", "--history-level=full", target}
	return append(argv, args...)
}

// Parse reads the helgrind report, which valgrind writes to stderr.
func (a *ThreadAnalyzer) Parse(_ context.Context, t model.Target, out *executor.RawOutput) *model.ThreadIssuesResult {
	return ParseHelgrind(t.Path, out.Stderr)
}

// Empty returns a failed result with an empty issue list.
func (a *ThreadAnalyzer) Empty(target, raw string, err *model.ErrorInfo) *model.ThreadIssuesResult {
	return &model.ThreadIssuesResult{Outcome: model.Failed(target, raw, err), Issues: []model.ThreadIssue{}}
}

// ParseHelgrind classifies helgrind error blocks. Blocks that are not data
// races, lock order violations or mutex errors are discarded.
func ParseHelgrind(target, raw string) *model.ThreadIssuesResult {
	res := &model.ThreadIssuesResult{Outcome: model.Parsed(target, raw)}
	issues := []model.ThreadIssue{}

	for _, block := range blockBoundaryRe.Split(raw, -1) {
		category := classifyBlock(block)
		if category == "" {
			continue
		}
		issue, ok := parseIssueBlock(block, category)
		if !ok {
			continue
		}
		switch category {
		case model.DataRace:
			res.DataRaces++
		case model.LockOrderViolation:
			res.LockOrderViolations++
		case model.MutexError:
			res.MutexErrors++
		}
		issues = append(issues, issue)
	}

	res.DetectedIssues = len(issues)
	res.TotalIssues = res.DetectedIssues
	if n, ok := ErrorSummaryCount(raw); ok {
		res.SummaryErrors = &n
		res.TotalIssues = n
	}

	if len(issues) > maxIssues {
		issues = issues[:maxIssues]
	}
	res.Issues = issues
	return res
}

// ErrorSummaryCount returns the count from valgrind's final
// "ERROR SUMMARY: N errors" line, if present.
func ErrorSummaryCount(raw string) (int, bool) {
	m := errorSummaryRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// classifyBlock applies the precedence data race > lock order > mutex error.
func classifyBlock(block string) string {
	lower := strings.ToLower(block)
	switch {
	case strings.Contains(lower, "data race"):
		return model.DataRace
	case strings.Contains(lower, "lock order"):
		return model.LockOrderViolation
	case strings.Contains(lower, "mutex") &&
		(strings.Contains(lower, "error") || strings.Contains(lower, "invalid")):
		return model.MutexError
	}
	return ""
}

func parseIssueBlock(block, category string) (model.ThreadIssue, bool) {
	ls := lines(strings.TrimSpace(block))
	description := stripPIDPrefix(ls[0])
	if description == "" {
		return model.ThreadIssue{}, false
	}

	issue := model.ThreadIssue{
		Category:    category,
		Description: truncateRunes(description, maxDescriptionLen),
		StackTrace:  []string{},
	}

	if m := threadIDRe.FindStringSubmatch(block); m != nil {
		if id, err := strconv.Atoi(m[1]); err == nil {
			issue.ThreadID = &id
		}
	}

	for _, line := range ls[1:] {
		if len(issue.StackTrace) == maxIssueFrames {
			break
		}
		if cleaned := stripPIDPrefix(line); isFrame(cleaned) {
			issue.StackTrace = append(issue.StackTrace, cleaned)
		}
	}
	return issue, true
}
