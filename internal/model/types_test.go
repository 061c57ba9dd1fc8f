package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPercentZeroDenominator(t *testing.T) {
	if got := percent(5, 0); got != 0 {
		t.Errorf("percent(5, 0) = %v, want 0", got)
	}
	if got := percent(1, 4); got != 25 {
		t.Errorf("percent(1, 4) = %v, want 25", got)
	}
}

func TestCacheLevelStatsJSON(t *testing.T) {
	c := CacheLevelStats{Level: "L1d", Loads: 200, LoadMisses: 10, Stores: 0, StoreMisses: 3}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["level"] != "L1d" {
		t.Errorf("level = %v", decoded["level"])
	}
	if decoded["load_miss_rate"] != 5.0 {
		t.Errorf("load_miss_rate = %v, want 5", decoded["load_miss_rate"])
	}
	if decoded["store_miss_rate"] != 0.0 {
		t.Errorf("store_miss_rate = %v, want 0 without stores", decoded["store_miss_rate"])
	}
}

func TestCacheLevelsInsideResult(t *testing.T) {
	r := CacheStatsResult{
		Outcome: Parsed("/srv/app", ""),
		Levels:  []CacheLevelStats{{Level: "LLC", Loads: 4, LoadMisses: 1}},
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"load_miss_rate":25`) {
		t.Errorf("nested level lost its derived rate: %s", data)
	}
	if !strings.Contains(string(data), `"succeeded":true`) {
		t.Errorf("outcome header not flattened: %s", data)
	}
}

func TestBranchMissRate(t *testing.T) {
	r := &CacheStatsResult{BranchInstructions: 120000, BranchMisses: 6000}
	if got := r.BranchMissRate(); got != 5 {
		t.Errorf("BranchMissRate = %v, want 5", got)
	}
	if got := (&CacheStatsResult{}).BranchMissRate(); got != 0 {
		t.Errorf("empty BranchMissRate = %v", got)
	}
}

func TestSyscallErrorRate(t *testing.T) {
	r := &SyscallStatsResult{
		TotalCalls: 40,
		Syscalls: []SyscallStat{
			{Name: "openat", Calls: 20, Errors: 3},
			{Name: "write", Calls: 20, Errors: 1},
		},
	}
	if got := r.TotalErrors(); got != 4 {
		t.Errorf("TotalErrors = %d, want 4", got)
	}
	if got := r.ErrorRate(); got != 10 {
		t.Errorf("ErrorRate = %v, want 10", got)
	}
	if got := (&SyscallStatsResult{}).ErrorRate(); got != 0 {
		t.Errorf("ErrorRate without calls = %v", got)
	}
}

func TestLostBytes(t *testing.T) {
	r := &MemoryLeakResult{
		DefinitelyLostBytes: 50,
		IndirectlyLostBytes: 10,
		PossiblyLostBytes:   5,
		StillReachableBytes: 35,
	}
	if got := r.LostBytes(); got != 65 {
		t.Errorf("LostBytes = %d, want 65 (still reachable excluded)", got)
	}
}

func TestFailedOutcome(t *testing.T) {
	o := Failed("/srv/app", "partial", TimedOut(5*time.Second))
	if o.Succeeded {
		t.Error("failed outcome must not be succeeded")
	}
	if o.RawText != "partial" || o.Target != "/srv/app" {
		t.Errorf("outcome = %+v", o)
	}

	data, _ := json.Marshal(MemoryLeakResult{Outcome: Parsed("/srv/app", "")})
	if strings.Contains(string(data), `"error"`) {
		t.Errorf("successful outcome should omit error: %s", data)
	}
	if !strings.Contains(string(data), `"leaks":null`) && !strings.Contains(string(data), `"leaks":[]`) {
		t.Errorf("leaks field missing: %s", data)
	}
}

func TestErrorInfoConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrorInfo
		kind ErrorKind
		msg  string
	}{
		{"not installed", NotInstalled("valgrind", "sudo apt-get install valgrind"), ToolNotInstalled, "valgrind is not installed"},
		{"missing binary", MissingBinary("/srv/app"), BinaryNotFound, "binary not found: /srv/app"},
		{"timed out", TimedOut(300 * time.Second), AnalysisTimedOut, "analysis timed out after 5m0s"},
		{"exec failed", ExecFailed("exit status 1"), ExecutionFailed, "exit status 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() != tt.msg {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.msg)
			}
		})
	}

	var target *ErrorInfo
	var err error = NotInstalled("perf", "hint")
	if !errors.As(err, &target) || target.Hint != "hint" {
		t.Error("ErrorInfo should satisfy the error interface")
	}
	if got := TimedOut(time.Minute).Timeout; got != time.Minute {
		t.Errorf("Timeout = %s", got)
	}
}

func TestErrorInfoJSONSeconds(t *testing.T) {
	r := SyscallStatsResult{Outcome: Failed("/srv/app", "", TimedOut(300*time.Second))}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"timeout_seconds":300`) {
		t.Errorf("timeout not reported in seconds: %s", data)
	}
	if strings.Contains(string(data), "300000000000") {
		t.Errorf("timeout leaked as nanoseconds: %s", data)
	}
	if !strings.Contains(string(data), `"kind":"timed_out"`) {
		t.Errorf("error fields missing: %s", data)
	}

	data, _ = json.Marshal(MissingBinary("/srv/app"))
	if strings.Contains(string(data), "timeout") {
		t.Errorf("errors without a budget should omit it: %s", data)
	}
}
