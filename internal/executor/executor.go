// Package executor runs the wrapped analysis tools as subprocesses and
// locates their executables.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// ErrTimeout is returned when a process outlives Request.Timeout.
var ErrTimeout = errors.New("process timed out")

// LaunchError is returned when the executable could not be started.
type LaunchError struct {
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Binary, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Request describes one subprocess invocation.
type Request struct {
	Argv  []string
	Stdin io.Reader

	// Timeout is the hard budget. Exceeding it terminates the process group
	// and Run returns ErrTimeout. Zero means no limit.
	Timeout time.Duration

	// StopAfter interrupts the process group after the given time without
	// treating it as a failure. perf record flushes its data file on SIGINT.
	StopAfter time.Duration
}

// RawOutput captures the stdout/stderr from an external tool.
type RawOutput struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool // true if either stream was capped
	PID       int
}

// Executor runs external tools and captures their output.
type Executor interface {
	Run(ctx context.Context, req Request) (*RawOutput, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) (*RawOutput, error)

func (f ExecutorFunc) Run(ctx context.Context, req Request) (*RawOutput, error) {
	return f(ctx, req)
}

// ProcExecutor runs tools in their own process group with output capping.
type ProcExecutor struct {
	maxOutputBytes int64
	grace          time.Duration
	log            zerolog.Logger
}

// gracefulShutdownTimeout is how long we wait after SIGINT before sending SIGKILL.
const gracefulShutdownTimeout = 3 * time.Second

// NewProcExecutor creates an executor with a 50MB cap per stream.
func NewProcExecutor(log zerolog.Logger) *ProcExecutor {
	return &ProcExecutor{
		maxOutputBytes: 50 * 1024 * 1024,
		grace:          gracefulShutdownTimeout,
		log:            log,
	}
}

// Run executes argv and blocks until it exits.
//
// A nonzero exit status is not an error: several wrapped tools report
// "issues found" that way. The exit code is recorded in RawOutput.
// When the timeout fires or StopAfter elapses, SIGINT is sent to the whole
// process group so the tool and the analysed program go down together; if
// the group is still alive after the grace period it gets SIGKILL.
func (e *ProcExecutor) Run(ctx context.Context, req Request) (*RawOutput, error) {
	if len(req.Argv) == 0 {
		return nil, &LaunchError{Err: errors.New("empty command")}
	}
	name := req.Argv[0]
	start := time.Now()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.Command(name, req.Argv[1:]...)
	cmd.Env = Env()
	cmd.Stdin = req.Stdin
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	outW := &LimitedWriter{W: &stdout, N: e.maxOutputBytes}
	errW := &LimitedWriter{W: &stderr, N: e.maxOutputBytes}
	cmd.Stdout = outW
	cmd.Stderr = errW

	e.log.Debug().Str("argv", strings.Join(req.Argv, " ")).Dur("timeout", req.Timeout).Msg("exec")

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Binary: name, Err: err}
	}
	raw := &RawOutput{PID: cmd.Process.Pid}

	// exited is closed once Wait returns so the watcher can observe exit
	// without consuming the error value.
	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()

	var stop <-chan time.Time
	if req.StopAfter > 0 {
		timer := time.NewTimer(req.StopAfter)
		defer timer.Stop()
		stop = timer.C
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
			e.log.Debug().Str("tool", name).Dur("after", req.StopAfter).Msg("stopping")
		case <-exited:
			return
		}
		e.terminate(cmd.Process, exited)
	}()

	waitErr := <-done

	raw.Stdout = stdout.String()
	raw.Stderr = stderr.String()
	raw.Duration = time.Since(start)
	raw.Truncated = outW.Truncated || errW.Truncated
	if cmd.ProcessState != nil {
		raw.ExitCode = cmd.ProcessState.ExitCode()
	}

	if len(raw.Stdout) == 0 && len(raw.Stderr) == 0 && raw.ExitCode != 0 {
		e.log.Debug().Str("tool", name).Int("exit", raw.ExitCode).Msg("no output captured")
	}

	switch err := ctx.Err(); {
	case errors.Is(err, context.DeadlineExceeded):
		return raw, fmt.Errorf("%s: %w after %s", name, ErrTimeout, req.Timeout)
	case err != nil:
		return raw, fmt.Errorf("%s: %w", name, err)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return raw, nil
		}
		return nil, fmt.Errorf("execute %s: %w", name, waitErr)
	}
	return raw, nil
}

// terminate sends SIGINT to the process group, then SIGKILL after the grace period.
func (e *ProcExecutor) terminate(p *os.Process, exited <-chan struct{}) {
	pgid := p.Pid
	if err := unix.Kill(-pgid, unix.SIGINT); err != nil {
		_ = p.Signal(os.Interrupt)
	}
	select {
	case <-exited:
	case <-time.After(e.grace):
		_ = unix.Kill(-pgid, unix.SIGKILL)
		_ = p.Kill()
	}
}

// Env returns the current environment with the locale pinned to C, so the
// wrapped tools print numbers and messages in the format the parsers expect.
func Env() []string {
	env := make([]string, 0, len(os.Environ())+2)
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "LC_ALL=") || strings.HasPrefix(kv, "LANG=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "LC_ALL=C", "LANG=C")
}

// LimitedWriter wraps a writer with a byte limit.
type LimitedWriter struct {
	W         *bytes.Buffer
	N         int64
	written   int64
	Truncated bool
}

func (lw *LimitedWriter) Write(p []byte) (int, error) {
	if lw.written >= lw.N {
		lw.Truncated = true
		// exec.Cmd expects every byte to be consumed.
		return len(p), nil
	}
	remaining := lw.N - lw.written
	if int64(len(p)) > remaining {
		n, err := lw.W.Write(p[:remaining])
		lw.written += int64(n)
		lw.Truncated = true
		return len(p), err
	}
	n, err := lw.W.Write(p)
	lw.written += int64(n)
	return n, err
}
