package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/dmitriimaksimovdevelop/perflens/internal/model"
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("57")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("160")).Bold(true)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Render writes a human-readable report for one analysis result.
func Render(w io.Writer, result any) error {
	var b strings.Builder

	switch r := result.(type) {
	case *model.MemoryLeakResult:
		if !renderFailure(&b, "Memory Leak Analysis", r.Outcome) {
			renderMemory(&b, r)
		}
	case *model.CPUProfileResult:
		if !renderFailure(&b, "CPU Profile", r.Outcome) {
			renderCPU(&b, r)
		}
	case *model.CacheStatsResult:
		if !renderFailure(&b, "Cache Statistics", r.Outcome) {
			renderCache(&b, r)
		}
	case *model.SyscallStatsResult:
		if !renderFailure(&b, "System Call Summary", r.Outcome) {
			renderSyscalls(&b, r)
		}
	case *model.ThreadIssuesResult:
		if !renderFailure(&b, "Thread Analysis", r.Outcome) {
			renderThreads(&b, r)
		}
	default:
		return fmt.Errorf("render: unsupported result type %T", result)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderTools writes the availability report of the external tools.
func RenderTools(w io.Writer, tools []model.ToolStatus) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render("External Tools") + "\n\n")

	rows := make([][]string, 0, len(tools))
	missing := 0
	for _, t := range tools {
		status := okStyle.Render("found")
		location := t.Path
		if !t.Available {
			status = warnStyle.Render("missing")
			location = "-"
			missing++
		}
		version := t.Version
		if version == "" {
			version = "-"
		}
		rows = append(rows, []string{t.Name, t.Purpose, status, location, version})
	}
	b.WriteString(newTable([]string{"Tool", "Used for", "Status", "Path", "Version"}, rows) + "\n")

	if missing > 0 {
		b.WriteString("\n" + labelStyle.Render("Install hints:") + "\n")
		for _, t := range tools {
			if !t.Available && t.Hint != "" {
				fmt.Fprintf(&b, "  %-14s %s\n", t.Name, t.Hint)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// renderFailure prints the header and, for a failed result, the error.
// It reports whether the result failed.
func renderFailure(b *strings.Builder, title string, o model.Outcome) bool {
	b.WriteString(titleStyle.Render(title) + " " + labelStyle.Render(o.Target) + "\n\n")
	if o.Error == nil {
		return false
	}
	b.WriteString(errorStyle.Render(" ERROR ") + " " + o.Error.Message + "\n")
	if o.Error.Hint != "" {
		b.WriteString(labelStyle.Render("Install with: ") + o.Error.Hint + "\n")
	}
	return true
}

func renderMemory(b *strings.Builder, r *model.MemoryLeakResult) {
	summary := [][]string{
		{"Definitely lost", bytesCell(r.DefinitelyLostBytes)},
		{"Indirectly lost", bytesCell(r.IndirectlyLostBytes)},
		{"Possibly lost", bytesCell(r.PossiblyLostBytes)},
		{"Still reachable", bytesCell(r.StillReachableBytes)},
	}
	b.WriteString(newTable([]string{"Category", "Bytes"}, summary) + "\n\n")

	if r.TotalLeaks == 0 && r.LostBytes() == 0 {
		b.WriteString(okStyle.Render("No memory leaks detected.") + "\n")
		return
	}

	fmt.Fprintf(b, "%s %d leak records", warnStyle.Render("Leaks:"), r.TotalLeaks)
	if len(r.Leaks) < r.TotalLeaks {
		fmt.Fprintf(b, " (showing largest %d)", len(r.Leaks))
	}
	b.WriteString("\n\n")

	for i, l := range r.Leaks {
		fmt.Fprintf(b, "%d. %s in %d blocks, %s\n", i+1, bytesCell(l.BytesLost), l.Blocks, l.LeakType)
		for _, frame := range l.StackTrace {
			b.WriteString("     " + labelStyle.Render(frame) + "\n")
		}
	}
}

func renderCPU(b *strings.Builder, r *model.CPUProfileResult) {
	fmt.Fprintf(b, "%s %.0fs at %d Hz, %s samples in top functions\n\n",
		labelStyle.Render("Sampled"), r.DurationSeconds, r.FrequencyHz, humanize.Comma(r.TotalSamples))

	if len(r.Hotspots) == 0 {
		b.WriteString(warnStyle.Render("No samples recorded.") + "\n")
	} else {
		rows := make([][]string, 0, len(r.Hotspots))
		for i, h := range r.Hotspots {
			space := "user"
			if h.Kernel {
				space = "kernel"
			}
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				fmt.Sprintf("%.2f%%", h.OverheadPercent),
				humanize.Comma(h.Samples),
				h.Function,
				h.Module,
				space,
			})
		}
		b.WriteString(newTable([]string{"#", "Overhead", "Samples", "Function", "Module", "Space"}, rows) + "\n")
	}

	if r.FlameGraphPath != "" {
		b.WriteString("\n" + labelStyle.Render("Flame graph: ") + r.FlameGraphPath + "\n")
	}
	if r.PprofPath != "" {
		b.WriteString(labelStyle.Render("pprof profile: ") + r.PprofPath + "\n")
	}
}

func renderCache(b *strings.Builder, r *model.CacheStatsResult) {
	fmt.Fprintf(b, "%s %s   %s %s   %s %.2f   %s %.3fs\n\n",
		labelStyle.Render("Cycles"), humanize.Comma(r.Cycles),
		labelStyle.Render("Instructions"), humanize.Comma(r.Instructions),
		labelStyle.Render("IPC"), r.IPC,
		labelStyle.Render("Elapsed"), r.ElapsedSeconds)

	if len(r.Levels) == 0 {
		b.WriteString(warnStyle.Render("No cache counters reported.") + "\n")
	} else {
		rows := make([][]string, 0, len(r.Levels))
		for _, l := range r.Levels {
			rows = append(rows, []string{
				l.Level,
				humanize.Comma(l.Loads),
				humanize.Comma(l.LoadMisses),
				fmt.Sprintf("%.2f%%", l.LoadMissRate()),
				humanize.Comma(l.Stores),
				humanize.Comma(l.StoreMisses),
				fmt.Sprintf("%.2f%%", l.StoreMissRate()),
			})
		}
		b.WriteString(newTable([]string{"Level", "Loads", "Load misses", "Load miss", "Stores", "Store misses", "Store miss"}, rows) + "\n")
	}

	if r.L1InstructionMisses > 0 {
		fmt.Fprintf(b, "\n%s %s\n", labelStyle.Render("L1 instruction misses:"), humanize.Comma(r.L1InstructionMisses))
	}
	if r.BranchInstructions > 0 {
		fmt.Fprintf(b, "%s %s of %s (%.2f%%)\n", labelStyle.Render("Branch misses:"),
			humanize.Comma(r.BranchMisses), humanize.Comma(r.BranchInstructions), r.BranchMissRate())
	}
}

func renderSyscalls(b *strings.Builder, r *model.SyscallStatsResult) {
	fmt.Fprintf(b, "%s %s   %s %.6fs   %s %.2f%%\n\n",
		labelStyle.Render("Calls"), humanize.Comma(r.TotalCalls),
		labelStyle.Render("Time"), r.TotalTimeSeconds,
		labelStyle.Render("Error rate"), r.ErrorRate())

	if len(r.Syscalls) == 0 {
		b.WriteString(warnStyle.Render("No system calls recorded.") + "\n")
		return
	}
	rows := make([][]string, 0, len(r.Syscalls))
	for _, s := range r.Syscalls {
		rows = append(rows, []string{
			s.Name,
			humanize.Comma(s.Calls),
			humanize.Comma(s.Errors),
			fmt.Sprintf("%.6f", s.TimeSeconds),
			fmt.Sprintf("%.2f%%", s.TimePercent),
		})
	}
	b.WriteString(newTable([]string{"Syscall", "Calls", "Errors", "Seconds", "Time"}, rows) + "\n")
}

func renderThreads(b *strings.Builder, r *model.ThreadIssuesResult) {
	rows := [][]string{
		{model.DataRace, strconv.Itoa(r.DataRaces)},
		{model.LockOrderViolation, strconv.Itoa(r.LockOrderViolations)},
		{model.MutexError, strconv.Itoa(r.MutexErrors)},
	}
	b.WriteString(newTable([]string{"Category", "Count"}, rows) + "\n\n")

	fmt.Fprintf(b, "%s %d", labelStyle.Render("Total issues:"), r.TotalIssues)
	if r.SummaryErrors != nil && *r.SummaryErrors != r.DetectedIssues {
		fmt.Fprintf(b, " (tool summary; %d classified)", r.DetectedIssues)
	}
	b.WriteString("\n\n")

	if r.TotalIssues == 0 && len(r.Issues) == 0 {
		b.WriteString(okStyle.Render("No threading issues detected.") + "\n")
		return
	}

	for i, issue := range r.Issues {
		header := fmt.Sprintf("%d. [%s] %s", i+1, issue.Category, issue.Description)
		if issue.ThreadID != nil {
			header += fmt.Sprintf(" (thread #%d)", *issue.ThreadID)
		}
		b.WriteString(warnStyle.Render(header) + "\n")
		for _, frame := range issue.StackTrace {
			b.WriteString("     " + labelStyle.Render(frame) + "\n")
		}
	}
}

func newTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
		Headers(headers...).
		Rows(rows...).
		String()
}

func bytesCell(n int64) string {
	if n < 1024 {
		return humanize.Comma(n) + " B"
	}
	return fmt.Sprintf("%s (%s B)", humanize.IBytes(uint64(n)), humanize.Comma(n))
}
