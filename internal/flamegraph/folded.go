// Package flamegraph renders perf data into flame graphs through Brendan
// Gregg's FlameGraph scripts and exports collapsed stacks as pprof profiles.
package flamegraph

import (
	"sort"
	"strconv"
	"strings"
)

// Stack is one collapsed call stack with its sample count.
// Frames are ordered root first, as stackcollapse prints them.
type Stack struct {
	Frames []string
	Count  int64
}

// String returns the collapsed form "root;child;leaf".
func (s Stack) String() string {
	return strings.Join(s.Frames, ";")
}

// ParseFolded parses collapsed stack output.
// Format: "func1;func2;func3 count". Lines without a trailing count are skipped.
func ParseFolded(raw string) []Stack {
	var stacks []Stack

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Everything before the last space is the stack.
		lastSpace := strings.LastIndex(line, " ")
		if lastSpace <= 0 {
			continue
		}
		count, err := strconv.ParseInt(line[lastSpace+1:], 10, 64)
		if err != nil || count <= 0 {
			continue
		}

		stacks = append(stacks, Stack{
			Frames: strings.Split(line[:lastSpace], ";"),
			Count:  count,
		})
	}

	sort.SliceStable(stacks, func(i, j int) bool {
		return stacks[i].Count > stacks[j].Count
	})
	return stacks
}

// TotalSamples sums the counts of all stacks.
func TotalSamples(stacks []Stack) int64 {
	var n int64
	for _, s := range stacks {
		n += s.Count
	}
	return n
}

// Folded writes stacks back in collapsed form, one per line.
func Folded(stacks []Stack) string {
	var sb strings.Builder
	for _, s := range stacks {
		sb.WriteString(s.String())
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatInt(s.Count, 10))
		sb.WriteByte('\n')
	}
	return sb.String()
}
