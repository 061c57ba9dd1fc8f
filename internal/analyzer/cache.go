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

// Event is one of the hardware counters requested from perf stat.
type Event int

const (
	EventCycles Event = iota
	EventInstructions
	EventCacheReferences
	EventCacheMisses
	EventL1DLoads
	EventL1DLoadMisses
	EventL1DStores
	EventL1ILoadMisses
	EventLLCLoads
	EventLLCLoadMisses
	EventLLCStores
	EventLLCStoreMisses
	EventBranchInstructions
	EventBranchMisses
	numEvents
)

var eventNames = [numEvents]string{
	EventCycles:             "cycles",
	EventInstructions:       "instructions",
	EventCacheReferences:    "cache-references",
	EventCacheMisses:        "cache-misses",
	EventL1DLoads:           "L1-dcache-loads",
	EventL1DLoadMisses:      "L1-dcache-load-misses",
	EventL1DStores:          "L1-dcache-stores",
	EventL1ILoadMisses:      "L1-icache-load-misses",
	EventLLCLoads:           "LLC-loads",
	EventLLCLoadMisses:      "LLC-load-misses",
	EventLLCStores:          "LLC-stores",
	EventLLCStoreMisses:     "LLC-store-misses",
	EventBranchInstructions: "branch-instructions",
	EventBranchMisses:       "branch-misses",
}

var eventByName = func() map[string]Event {
	m := make(map[string]Event, numEvents)
	for e, name := range eventNames {
		m[name] = Event(e)
	}
	return m
}()

func (e Event) String() string {
	if e < 0 || e >= numEvents {
		return "unknown"
	}
	return eventNames[e]
}

// EventList is the comma-joined list passed to perf stat -e.
func EventList() string {
	return strings.Join(eventNames[:], ",")
}

// Counters maps each known event to its count. Unknown names are ignored.
type Counters [numEvents]int64

// Set records a count for a known event name, with any ":u"/":k" style
// modifier removed. It reports whether the name was recognised.
func (c *Counters) Set(name string, count int64) bool {
	if i := strings.IndexByte(name, ':'); i > 0 {
		name = name[:i]
	}
	e, ok := eventByName[name]
	if !ok {
		return false
	}
	c[e] = count
	return true
}

// Get returns the count recorded for e, 0 if none.
func (c *Counters) Get(e Event) int64 {
	return c[e]
}

var (
	elapsedRe = regexp.MustCompile(`([\d.]+)\s+seconds time elapsed`)
	counterRe = regexp.MustCompile(`^([\d,]+)\s+(\S+)`)
)

// CacheAnalyzer reads hardware cache counters with perf stat.
type CacheAnalyzer struct {
	base
}

// NewCacheAnalyzer locates perf.
func NewCacheAnalyzer(opts Options) *CacheAnalyzer {
	return &CacheAnalyzer{base: newBase(executor.Perf, opts)}
}

// Analyze runs the target under perf stat.
func (a *CacheAnalyzer) Analyze(ctx context.Context, path string, args []string, timeout time.Duration) *model.CacheStatsResult {
	return run[*model.CacheStatsResult](ctx, &a.base, a, model.Target{Path: path, Args: args, Timeout: timeout})
}

// Command counts the known events with perf stat.
func (a *CacheAnalyzer) Command(bin, target string, args []string) []string {
	argv := []string{bin, "stat", "-e", EventList(), target}
	return append(argv, args...)
}

// perf stat writes its counters to stderr.
func (a *CacheAnalyzer) Parse(_ context.Context, t model.Target, out *executor.RawOutput) *model.CacheStatsResult {
	return ParsePerfStat(t.Path, out.Stderr)
}

// Empty returns a failed result with no cache levels.
func (a *CacheAnalyzer) Empty(target, raw string, err *model.ErrorInfo) *model.CacheStatsResult {
	return &model.CacheStatsResult{Outcome: model.Failed(target, raw, err), Levels: []model.CacheLevelStats{}}
}

// ParsePerfStat builds cache statistics from perf stat output.
func ParsePerfStat(target, raw string) *model.CacheStatsResult {
	var c Counters
	var elapsed float64

	for _, line := range lines(raw) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := elapsedRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				elapsed = v
			}
			continue
		}
		if m := counterRe.FindStringSubmatch(line); m != nil {
			if n, ok := parseCount(m[1]); ok {
				c.Set(m[2], n)
			}
		}
	}

	return CacheStatsFromCounters(target, raw, elapsed, &c)
}

// CacheStatsFromCounters synthesizes the per-level records. A level is only
// emitted when its counters show activity.
func CacheStatsFromCounters(target, raw string, elapsed float64, c *Counters) *model.CacheStatsResult {
	res := &model.CacheStatsResult{
		Outcome:             model.Parsed(target, raw),
		ElapsedSeconds:      elapsed,
		Cycles:              c.Get(EventCycles),
		Instructions:        c.Get(EventInstructions),
		Levels:              []model.CacheLevelStats{},
		L1InstructionMisses: c.Get(EventL1ILoadMisses),
		BranchInstructions:  c.Get(EventBranchInstructions),
		BranchMisses:        c.Get(EventBranchMisses),
	}
	if res.Cycles > 0 {
		res.IPC = float64(res.Instructions) / float64(res.Cycles)
	}

	if loads, misses := c.Get(EventL1DLoads), c.Get(EventL1DLoadMisses); loads > 0 || misses > 0 {
		res.Levels = append(res.Levels, model.CacheLevelStats{
			Level:      "L1-Data",
			Loads:      loads,
			LoadMisses: misses,
			Stores:     c.Get(EventL1DStores),
		})
	}

	if loads, stores := c.Get(EventLLCLoads), c.Get(EventLLCStores); loads > 0 || stores > 0 {
		res.Levels = append(res.Levels, model.CacheLevelStats{
			Level:       "LLC (L3)",
			Loads:       loads,
			LoadMisses:  c.Get(EventLLCLoadMisses),
			Stores:      stores,
			StoreMisses: c.Get(EventLLCStoreMisses),
		})
	}

	if refs := c.Get(EventCacheReferences); refs > 0 {
		res.Levels = append(res.Levels, model.CacheLevelStats{
			Level:      "Overall",
			Loads:      refs,
			LoadMisses: c.Get(EventCacheMisses),
		})
	}
	return res
}
