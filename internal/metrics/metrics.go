// Package metrics exports analysis results in the Prometheus text
// exposition format, for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitriimaksimovdevelop/perflens/internal/model"
)

const namespace = "perflens"

// Registry builds a registry holding the gauges for one result.
func Registry(result any) (*prometheus.Registry, error) {
	e := &exporter{reg: prometheus.NewRegistry(), vecs: map[string]*prometheus.GaugeVec{}}

	switch r := result.(type) {
	case *model.MemoryLeakResult:
		e.begin("memory", r.Outcome)
		e.memory(r)
	case *model.CPUProfileResult:
		e.begin("cpu", r.Outcome)
		e.cpu(r)
	case *model.CacheStatsResult:
		e.begin("cache", r.Outcome)
		e.cache(r)
	case *model.SyscallStatsResult:
		e.begin("syscall", r.Outcome)
		e.syscalls(r)
	case *model.ThreadIssuesResult:
		e.begin("thread", r.Outcome)
		e.threads(r)
	default:
		return nil, fmt.Errorf("metrics: unsupported result type %T", result)
	}

	if e.err != nil {
		return nil, e.err
	}
	return e.reg, nil
}

// WriteTextfile writes the result's gauges to path. The file is replaced
// atomically.
func WriteTextfile(path string, result any) error {
	reg, err := Registry(result)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

type exporter struct {
	reg  *prometheus.Registry
	vecs map[string]*prometheus.GaugeVec
	base prometheus.Labels
	err  error
}

func (e *exporter) begin(analyzer string, o model.Outcome) {
	e.base = prometheus.Labels{"analyzer": analyzer, "target": o.Target}
	succeeded := 0.0
	if o.Error == nil {
		succeeded = 1
	}
	e.set("analysis_succeeded", "Whether the analysis produced parsed output.", succeeded, nil)
}

// set records one sample. Every sample of a metric must use the same extra
// label names.
func (e *exporter) set(name, help string, value float64, extra prometheus.Labels) {
	if e.err != nil {
		return
	}
	labels := prometheus.Labels{}
	for k, v := range e.base {
		labels[k] = v
	}
	for k, v := range extra {
		labels[k] = v
	}

	vec, ok := e.vecs[name]
	if !ok {
		names := make([]string, 0, len(labels))
		for k := range labels {
			names = append(names, k)
		}
		sort.Strings(names)
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, names)
		if err := e.reg.Register(vec); err != nil {
			e.err = fmt.Errorf("register %s: %w", name, err)
			return
		}
		e.vecs[name] = vec
	}

	g, err := vec.GetMetricWith(labels)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", name, err)
		return
	}
	g.Set(value)
}

func (e *exporter) memory(r *model.MemoryLeakResult) {
	const help = "Heap bytes reported by memcheck, by leak category."
	e.set("memory_lost_bytes", help, float64(r.DefinitelyLostBytes), prometheus.Labels{"category": "definitely_lost"})
	e.set("memory_lost_bytes", help, float64(r.IndirectlyLostBytes), prometheus.Labels{"category": "indirectly_lost"})
	e.set("memory_lost_bytes", help, float64(r.PossiblyLostBytes), prometheus.Labels{"category": "possibly_lost"})
	e.set("memory_lost_bytes", help, float64(r.StillReachableBytes), prometheus.Labels{"category": "still_reachable"})
	e.set("memory_leak_records", "Number of leak records found.", float64(r.TotalLeaks), nil)
}

func (e *exporter) cpu(r *model.CPUProfileResult) {
	e.set("cpu_samples", "Samples attributed to the reported hotspots.", float64(r.TotalSamples), nil)
	e.set("cpu_sampling_frequency_hertz", "Sampling frequency.", float64(r.FrequencyHz), nil)
	for _, h := range r.Hotspots {
		e.set("cpu_hotspot_overhead_percent", "Share of samples in a hot function.", h.OverheadPercent,
			prometheus.Labels{"function": h.Function, "module": h.Module})
	}
}

func (e *exporter) cache(r *model.CacheStatsResult) {
	e.set("cache_cycles", "CPU cycles counted.", float64(r.Cycles), nil)
	e.set("cache_instructions", "Instructions retired.", float64(r.Instructions), nil)
	e.set("cache_ipc", "Instructions per cycle.", r.IPC, nil)
	e.set("cache_branch_miss_percent", "Branch misses per branch instruction.", r.BranchMissRate(), nil)
	for _, l := range r.Levels {
		e.set("cache_miss_percent", "Cache miss rate by level and operation.", l.LoadMissRate(),
			prometheus.Labels{"level": l.Level, "op": "load"})
		e.set("cache_miss_percent", "Cache miss rate by level and operation.", l.StoreMissRate(),
			prometheus.Labels{"level": l.Level, "op": "store"})
	}
}

func (e *exporter) syscalls(r *model.SyscallStatsResult) {
	e.set("syscall_calls_total", "System calls made by the target.", float64(r.TotalCalls), nil)
	e.set("syscall_error_rate_percent", "Failed calls per call.", r.ErrorRate(), nil)
	for _, s := range r.Syscalls {
		label := prometheus.Labels{"syscall": s.Name}
		e.set("syscall_calls", "Calls per system call.", float64(s.Calls), label)
		e.set("syscall_errors", "Failed calls per system call.", float64(s.Errors), label)
		e.set("syscall_seconds", "Time spent per system call.", s.TimeSeconds, label)
	}
}

func (e *exporter) threads(r *model.ThreadIssuesResult) {
	e.set("thread_issues_total", "Issues reported, preferring the tool's own summary.", float64(r.TotalIssues), nil)
	const help = "Classified threading issues by category."
	e.set("thread_issues", help, float64(r.DataRaces), prometheus.Labels{"category": "data_race"})
	e.set("thread_issues", help, float64(r.LockOrderViolations), prometheus.Labels{"category": "lock_order_violation"})
	e.set("thread_issues", help, float64(r.MutexErrors), prometheus.Labels{"category": "mutex_error"})
}
