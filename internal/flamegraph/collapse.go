package flamegraph

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	// "myprog 12345 1234.567890:   10101010 cycles:u:"
	sampleHeaderRe = regexp.MustCompile(`^(\S.+?)\s+\d+(?:/\d+)?\s+`)
	// "	    55d0c0a0 compute+0x1a (/usr/bin/myprog)"
	stackFrameRe = regexp.MustCompile(`^\s+(\w+)\s+(.+) \((.*)\)$`)
	symOffsetRe  = regexp.MustCompile(`\+0x[\da-f]+$`)
)

// Collapse folds perf script output into stacks, counting one per sample.
// It is used when stackcollapse-perf.pl is not installed. Each stack is rooted
// at the sampled command name.
func Collapse(script string) []Stack {
	counts := make(map[string]int64)
	var comm string
	var frames []string

	flush := func() {
		if comm != "" && len(frames) > 0 {
			key := strings.Join(append([]string{comm}, frames...), ";")
			counts[key]++
		}
		comm = ""
		frames = nil
	}

	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if m := stackFrameRe.FindStringSubmatch(line); m != nil {
			if comm == "" {
				continue
			}
			// perf prints the leaf first.
			frames = append([]string{frameName(m[2], m[3])}, frames...)
			continue
		}
		if m := sampleHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			comm = strings.ReplaceAll(m[1], " ", "_")
		}
	}
	flush()

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	stacks := make([]Stack, 0, len(keys))
	for _, k := range keys {
		stacks = append(stacks, Stack{Frames: strings.Split(k, ";"), Count: counts[k]})
	}
	sort.SliceStable(stacks, func(i, j int) bool {
		return stacks[i].Count > stacks[j].Count
	})
	return stacks
}

func frameName(sym, module string) string {
	sym = symOffsetRe.ReplaceAllString(sym, "")
	if sym == "[unknown]" {
		if module != "" && module != "[unknown]" {
			return "[" + filepath.Base(module) + "]"
		}
		return "[unknown]"
	}
	// ';' separates frames in the folded format.
	return strings.ReplaceAll(sym, ";", ":")
}
