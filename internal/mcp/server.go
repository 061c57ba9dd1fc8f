package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dmitriimaksimovdevelop/perflens/internal/analyzer"
	"github.com/dmitriimaksimovdevelop/perflens/internal/config"
)

// Server wraps the MCP server instance.
type Server struct {
	mcpServer *server.MCPServer
	h         *handlers
}

// NewServer creates a new MCP server with registered tools. Analyzers use
// the real filesystem and process executor.
func NewServer(version string, cfg config.RuntimeConfig, log zerolog.Logger) *Server {
	return newServer(version, cfg, analyzer.DefaultOptions(log, cfg.ToolPaths()))
}

func newServer(version string, cfg config.RuntimeConfig, opts analyzer.Options) *Server {
	s := server.NewMCPServer("perflens", version, server.WithLogging())
	h := &handlers{cfg: cfg, opts: opts}
	registerTools(s, h)
	return &Server{mcpServer: s, h: h}
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools adds all supported tools to the server.
func registerTools(s *server.MCPServer, h *handlers) {
	binary := mcp.WithString("binary",
		mcp.Required(),
		mcp.Description("Path to the executable to analyze"),
	)
	args := mcp.WithString("args",
		mcp.Description("Arguments passed to the executable, separated by spaces"),
	)
	timeout := mcp.WithNumber("timeout",
		mcp.Description("Timeout in seconds; defaults to the configured value"),
	)

	s.AddTool(mcp.NewTool("analyze_memory",
		mcp.WithDescription("Run the executable under valgrind memcheck. Returns leak totals by category and the 10 largest leaks with stack traces."),
		binary, args, timeout,
	), h.analyzeMemory)

	s.AddTool(mcp.NewTool("analyze_cpu",
		mcp.WithDescription("Sample the executable with perf record for a fixed duration. Returns the 10 hottest functions and, when FlameGraph is installed, the path of a flame graph SVG."),
		binary, args,
		mcp.WithNumber("duration", mcp.Description("Sampling duration in seconds")),
		mcp.WithNumber("frequency", mcp.Description("Sampling frequency in Hz")),
		mcp.WithString("output_dir", mcp.Description("Directory for the flame graph and pprof files")),
		mcp.WithBoolean("pprof", mcp.Description("Also write a gzipped pprof profile")),
	), h.analyzeCPU)

	s.AddTool(mcp.NewTool("analyze_cache",
		mcp.WithDescription("Count hardware cache events with perf stat. Returns IPC and per-level miss rates."),
		binary, args, timeout,
	), h.analyzeCache)

	s.AddTool(mcp.NewTool("analyze_syscalls",
		mcp.WithDescription("Trace system calls with strace -c. Returns the 15 most time-consuming syscalls with call and error counts."),
		binary, args, timeout,
	), h.analyzeSyscalls)

	s.AddTool(mcp.NewTool("analyze_threads",
		mcp.WithDescription("Run the executable under valgrind helgrind. Returns data races, lock order violations and mutex errors. Slow."),
		binary, args, timeout,
	), h.analyzeThreads)

	s.AddTool(mcp.NewTool("check_tools",
		mcp.WithDescription("List which external analysis tools are installed, with versions and install hints."),
	), h.checkTools)
}
