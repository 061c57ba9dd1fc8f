package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dmitriimaksimovdevelop/perflens/internal/analyzer"
	"github.com/dmitriimaksimovdevelop/perflens/internal/config"
	"github.com/dmitriimaksimovdevelop/perflens/internal/model"
)

type handlers struct {
	cfg  config.RuntimeConfig
	opts analyzer.Options
}

// target extracts the common binary/args/timeout arguments.
func target(request mcp.CallToolRequest, defaultTimeout time.Duration) (model.Target, error) {
	args := getArgs(request)
	binary := stringArg(args, "binary", "")
	if binary == "" {
		return model.Target{}, fmt.Errorf("binary is required")
	}
	return model.Target{
		Path:    binary,
		Args:    strings.Fields(stringArg(args, "args", "")),
		Timeout: secondsArg(args, "timeout", defaultTimeout),
	}, nil
}

func (h *handlers) analyzeMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := target(request, h.cfg.Timeout)
	if err != nil {
		return errResult(err.Error()), nil
	}
	res := analyzer.NewMemoryAnalyzer(h.opts).Analyze(ctx, t.Path, t.Args, t.Timeout)
	return resultJSON(res, res.Error), nil
}

func (h *handlers) analyzeCPU(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := target(request, 0)
	if err != nil {
		return errResult(err.Error()), nil
	}
	args := getArgs(request)
	opts := analyzer.CPUOptions{
		Duration:    secondsArg(args, "duration", h.cfg.CPUDuration),
		FrequencyHz: int(numberArg(args, "frequency", float64(h.cfg.CPUFrequency))),
		OutputDir:   stringArg(args, "output_dir", h.cfg.OutputDir),
		Pprof:       boolArg(args, "pprof"),
	}
	res := analyzer.NewCPUAnalyzer(h.opts).Analyze(ctx, t.Path, t.Args, opts)
	return resultJSON(res, res.Error), nil
}

func (h *handlers) analyzeCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := target(request, h.cfg.Timeout)
	if err != nil {
		return errResult(err.Error()), nil
	}
	res := analyzer.NewCacheAnalyzer(h.opts).Analyze(ctx, t.Path, t.Args, t.Timeout)
	return resultJSON(res, res.Error), nil
}

func (h *handlers) analyzeSyscalls(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := target(request, h.cfg.Timeout)
	if err != nil {
		return errResult(err.Error()), nil
	}
	res := analyzer.NewSyscallAnalyzer(h.opts).Analyze(ctx, t.Path, t.Args, t.Timeout)
	return resultJSON(res, res.Error), nil
}

func (h *handlers) analyzeThreads(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := target(request, h.cfg.ThreadTimeout)
	if err != nil {
		return errResult(err.Error()), nil
	}
	res := analyzer.NewThreadAnalyzer(h.opts).Analyze(ctx, t.Path, t.Args, t.Timeout)
	return resultJSON(res, res.Error), nil
}

func (h *handlers) checkTools(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultJSON(analyzer.CheckTools(ctx, h.opts), nil), nil
}

// resultJSON serializes a result. Results carrying an error are flagged as
// tool errors but keep the full JSON so the caller sees the kind and hint.
func resultJSON(v any, failure *model.ErrorInfo) *mcp.CallToolResult {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("json marshal failed: %v", err))
	}
	res := newTextResult(string(jsonData))
	res.IsError = failure != nil
	return res
}

// getArgs safely extracts the arguments map from a CallToolRequest.
// Returns an empty map if Arguments is nil or not a map.
func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// stringArg extracts a string argument with a default value.
func stringArg(args map[string]interface{}, key, defaultVal string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

// numberArg extracts a positive JSON number, falling back to defaultVal.
func numberArg(args map[string]interface{}, key string, defaultVal float64) float64 {
	f, ok := args[key].(float64)
	if !ok || f <= 0 {
		return defaultVal
	}
	return f
}

// secondsArg reads a number of seconds as a duration.
func secondsArg(args map[string]interface{}, key string, defaultVal time.Duration) time.Duration {
	f := numberArg(args, key, 0)
	if f == 0 {
		return defaultVal
	}
	return time.Duration(f * float64(time.Second))
}

func boolArg(args map[string]interface{}, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// newTextResult creates a successful MCP tool result with text content.
func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

// errResult creates an MCP tool error result (IsError=true).
// This is returned as a tool-level error, not a transport-level JSON-RPC error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
	}
}
