package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitriimaksimovdevelop/perflens/internal/model"
)

func TestMemoryGauges(t *testing.T) {
	reg, err := Registry(&model.MemoryLeakResult{
		Outcome:             model.Parsed("/bin/app", ""),
		TotalLeaks:          1,
		DefinitelyLostBytes: 50,
		IndirectlyLostBytes: 10,
		PossiblyLostBytes:   5,
		StillReachableBytes: 35,
	})
	require.NoError(t, err)

	expected := `
# HELP perflens_memory_lost_bytes Heap bytes reported by memcheck, by leak category.
# TYPE perflens_memory_lost_bytes gauge
perflens_memory_lost_bytes{analyzer="memory",category="definitely_lost",target="/bin/app"} 50
perflens_memory_lost_bytes{analyzer="memory",category="indirectly_lost",target="/bin/app"} 10
perflens_memory_lost_bytes{analyzer="memory",category="possibly_lost",target="/bin/app"} 5
perflens_memory_lost_bytes{analyzer="memory",category="still_reachable",target="/bin/app"} 35
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "perflens_memory_lost_bytes"))
}

func TestFailedResultIsNotSucceeded(t *testing.T) {
	reg, err := Registry(&model.CacheStatsResult{
		Outcome: model.Failed("/bin/app", "", model.MissingBinary("/bin/app")),
	})
	require.NoError(t, err)

	expected := `
# HELP perflens_analysis_succeeded Whether the analysis produced parsed output.
# TYPE perflens_analysis_succeeded gauge
perflens_analysis_succeeded{analyzer="cache",target="/bin/app"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "perflens_analysis_succeeded"))
}

func TestSyscallGaugesPerName(t *testing.T) {
	reg, err := Registry(&model.SyscallStatsResult{
		Outcome:    model.Parsed("/bin/app", ""),
		TotalCalls: 34,
		Syscalls: []model.SyscallStat{
			{Name: "mmap", Calls: 31, TimeSeconds: 0.000516},
			{Name: "write", Calls: 3, Errors: 1, TimeSeconds: 0.000052},
		},
	})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "perflens_syscall_calls")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perflens.prom")
	summary := 2
	err := WriteTextfile(path, &model.ThreadIssuesResult{
		Outcome:        model.Parsed("/bin/app", ""),
		TotalIssues:    2,
		DetectedIssues: 1,
		SummaryErrors:  &summary,
		DataRaces:      1,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `perflens_thread_issues{analyzer="thread",category="data_race",target="/bin/app"} 1`)
	assert.Contains(t, string(data), `perflens_thread_issues_total{analyzer="thread",target="/bin/app"} 2`)
}

func TestUnsupportedResult(t *testing.T) {
	_, err := Registry(struct{}{})
	assert.Error(t, err)
}
