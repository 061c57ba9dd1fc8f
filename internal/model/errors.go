package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ErrorKind classifies why an analysis produced no data.
type ErrorKind string

const (
	ToolNotInstalled ErrorKind = "tool_not_installed"
	BinaryNotFound   ErrorKind = "binary_not_found"
	AnalysisTimedOut ErrorKind = "timed_out"
	ExecutionFailed  ErrorKind = "execution_failed"
)

// ErrorInfo is the error attached to a result. It never aborts the process.
type ErrorInfo struct {
	Kind    ErrorKind     `json:"kind"`
	Message string        `json:"message"`
	Hint    string        `json:"hint,omitempty"`
	Timeout time.Duration `json:"-"`
}

func (e *ErrorInfo) Error() string {
	return e.Message
}

// MarshalJSON reports the timeout budget in seconds.
func (e *ErrorInfo) MarshalJSON() ([]byte, error) {
	type plain ErrorInfo
	return json.Marshal(struct {
		*plain
		TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
	}{(*plain)(e), e.Timeout.Seconds()})
}

// NotInstalled reports a missing external executable together with an install hint.
func NotInstalled(tool, hint string) *ErrorInfo {
	return &ErrorInfo{
		Kind:    ToolNotInstalled,
		Message: fmt.Sprintf("%s is not installed", tool),
		Hint:    hint,
	}
}

// MissingBinary reports a target path that does not exist.
func MissingBinary(path string) *ErrorInfo {
	return &ErrorInfo{
		Kind:    BinaryNotFound,
		Message: fmt.Sprintf("binary not found: %s", path),
	}
}

// TimedOut echoes the configured budget back to the caller.
func TimedOut(timeout time.Duration) *ErrorInfo {
	return &ErrorInfo{
		Kind:    AnalysisTimedOut,
		Message: fmt.Sprintf("analysis timed out after %s", timeout),
		Timeout: timeout,
	}
}

// ExecFailed preserves the underlying failure message.
func ExecFailed(msg string) *ErrorInfo {
	return &ErrorInfo{Kind: ExecutionFailed, Message: msg}
}
