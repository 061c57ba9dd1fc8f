// Package model defines the typed results produced by the perflens analyzers.
// These types are rendered to the terminal or serialized to JSON.
package model

import (
	"encoding/json"
	"time"
)

// Target is the immutable input of one analysis.
type Target struct {
	Path    string        // executable to run under the external tool
	Args    []string      // arguments passed to the executable
	Timeout time.Duration // wall-clock budget for the external tool
}

// Outcome is the header shared by every result type.
// Error and the tool-specific fields are mutually exclusive in practice:
// a result with Error set carries zeroed fields.
type Outcome struct {
	Target    string     `json:"target"`
	Succeeded bool       `json:"succeeded"`
	Error     *ErrorInfo `json:"error,omitempty"`
	RawText   string     `json:"raw_text"`
}

// Failed returns an Outcome describing a failed analysis.
func Failed(target, raw string, err *ErrorInfo) Outcome {
	return Outcome{Target: target, Error: err, RawText: raw}
}

// Parsed returns an Outcome for a completed analysis.
func Parsed(target, raw string) Outcome {
	return Outcome{Target: target, Succeeded: true, RawText: raw}
}

// --- Memory (valgrind memcheck) ---

// Leak categories reported by memcheck. Still-reachable memory is only summed.
const (
	DefinitelyLost = "definitely lost"
	IndirectlyLost = "indirectly lost"
	PossiblyLost   = "possibly lost"
)

// MemoryLeak is one leak record from the memcheck report.
type MemoryLeak struct {
	BytesLost  int64    `json:"bytes_lost"`
	Blocks     int64    `json:"blocks"`
	LeakType   string   `json:"leak_type"`
	StackTrace []string `json:"stack_trace"`
}

// MemoryLeakResult holds the leak summary and the largest leaks.
type MemoryLeakResult struct {
	Outcome
	TotalLeaks          int          `json:"total_leaks"`
	DefinitelyLostBytes int64        `json:"definitely_lost_bytes"`
	IndirectlyLostBytes int64        `json:"indirectly_lost_bytes"`
	PossiblyLostBytes   int64        `json:"possibly_lost_bytes"`
	StillReachableBytes int64        `json:"still_reachable_bytes"`
	Leaks               []MemoryLeak `json:"leaks"`
}

// LostBytes is the sum of the three lost categories.
func (r *MemoryLeakResult) LostBytes() int64 {
	return r.DefinitelyLostBytes + r.IndirectlyLostBytes + r.PossiblyLostBytes
}

// --- CPU (perf record / perf report) ---

// Hotspot is one row of the perf report.
type Hotspot struct {
	Function        string  `json:"function"`
	OverheadPercent float64 `json:"overhead_percent"`
	Samples         int64   `json:"samples"`
	Module          string  `json:"module"`
	Kernel          bool    `json:"kernel"`
}

// CPUProfileResult holds the top hotspots and the paths of any exported artifacts.
type CPUProfileResult struct {
	Outcome
	DurationSeconds float64   `json:"duration_seconds"`
	FrequencyHz     int       `json:"frequency_hz"`
	TotalSamples    int64     `json:"total_samples"`
	Hotspots        []Hotspot `json:"hotspots"`
	FlameGraphPath  string    `json:"flamegraph_path,omitempty"`
	PprofPath       string    `json:"pprof_path,omitempty"`
}

// --- Cache (perf stat) ---

// CacheLevelStats counts accesses and misses for one cache level.
type CacheLevelStats struct {
	Level       string `json:"level"`
	Loads       int64  `json:"loads"`
	LoadMisses  int64  `json:"load_misses"`
	Stores      int64  `json:"stores"`
	StoreMisses int64  `json:"store_misses"`
}

// LoadMissRate is load misses per load in percent, 0 without loads.
func (c CacheLevelStats) LoadMissRate() float64 {
	return percent(c.LoadMisses, c.Loads)
}

// StoreMissRate is store misses per store in percent, 0 without stores.
func (c CacheLevelStats) StoreMissRate() float64 {
	return percent(c.StoreMisses, c.Stores)
}

// MarshalJSON adds the derived miss rates.
func (c CacheLevelStats) MarshalJSON() ([]byte, error) {
	type plain CacheLevelStats
	return json.Marshal(struct {
		plain
		LoadMissRate  float64 `json:"load_miss_rate"`
		StoreMissRate float64 `json:"store_miss_rate"`
	}{plain(c), c.LoadMissRate(), c.StoreMissRate()})
}

// CacheStatsResult holds the perf stat counters.
type CacheStatsResult struct {
	Outcome
	ElapsedSeconds      float64           `json:"elapsed_seconds"`
	Cycles              int64             `json:"cycles"`
	Instructions        int64             `json:"instructions"`
	IPC                 float64           `json:"ipc"`
	Levels              []CacheLevelStats `json:"levels"`
	L1InstructionMisses int64             `json:"l1_instruction_misses"`
	BranchInstructions  int64             `json:"branch_instructions"`
	BranchMisses        int64             `json:"branch_misses"`
}

// BranchMissRate is branch misses per branch instruction in percent.
func (r *CacheStatsResult) BranchMissRate() float64 {
	return percent(r.BranchMisses, r.BranchInstructions)
}

// --- Syscalls (strace -c) ---

// SyscallStat is one row of the strace summary.
type SyscallStat struct {
	Name        string  `json:"name"`
	Calls       int64   `json:"calls"`
	Errors      int64   `json:"errors"`
	TimeSeconds float64 `json:"time_seconds"`
	TimePercent float64 `json:"time_percent"`
}

// SyscallStatsResult holds the strace totals and the most expensive syscalls.
type SyscallStatsResult struct {
	Outcome
	TotalCalls       int64         `json:"total_calls"`
	TotalTimeSeconds float64       `json:"total_time_seconds"`
	Syscalls         []SyscallStat `json:"syscalls"`
}

// TotalErrors sums the error counts of the retained syscalls.
func (r *SyscallStatsResult) TotalErrors() int64 {
	var n int64
	for _, s := range r.Syscalls {
		n += s.Errors
	}
	return n
}

// ErrorRate is TotalErrors per reported call in percent, 0 without calls.
func (r *SyscallStatsResult) ErrorRate() float64 {
	return percent(r.TotalErrors(), r.TotalCalls)
}

// --- Threads (valgrind helgrind) ---

// Thread issue categories.
const (
	DataRace           = "Data Race"
	LockOrderViolation = "Lock Order Violation"
	MutexError         = "Mutex Error"
)

// ThreadIssue is one classified helgrind error block.
type ThreadIssue struct {
	Category    string   `json:"category"`
	Description string   `json:"description"`
	StackTrace  []string `json:"stack_trace"`
	ThreadID    *int     `json:"thread_id,omitempty"`
}

// ThreadIssuesResult holds per-category counts and the first issues found.
type ThreadIssuesResult struct {
	Outcome
	// TotalIssues prefers the tool's ERROR SUMMARY count over DetectedIssues.
	TotalIssues         int           `json:"total_issues"`
	DetectedIssues      int           `json:"detected_issues"`
	SummaryErrors       *int          `json:"summary_errors,omitempty"`
	DataRaces           int           `json:"data_races"`
	LockOrderViolations int           `json:"lock_order_violations"`
	MutexErrors         int           `json:"mutex_errors"`
	Issues              []ThreadIssue `json:"issues"`
}

// --- Tool availability ---

// ToolStatus describes one external executable as seen by the locator.
type ToolStatus struct {
	Name      string `json:"name"`
	Purpose   string `json:"purpose"`
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
