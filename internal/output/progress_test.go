package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressLogEnabled(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, false, false)
	p.Log("hello %s", "world")

	out := buf.String()
	if !strings.Contains(out, "hello world") {
		t.Errorf("expected 'hello world' in output, got %q", out)
	}
	if !strings.HasPrefix(out, "[") {
		t.Errorf("expected elapsed-time prefix, got %q", out)
	}
}

func TestProgressLogQuiet(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, true, false)
	p.Log("should not appear")

	if buf.Len() != 0 {
		t.Errorf("quiet mode should produce no output, got %q", buf.String())
	}
}

func TestProgressWarnSurvivesQuiet(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, true, false)
	p.Warn("flame graph not generated")

	if !strings.Contains(buf.String(), "WARN: flame graph not generated") {
		t.Errorf("expected warning in quiet mode, got %q", buf.String())
	}
}

func TestVerboseProgressDebug(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, false, true)
	p.Debug("debug info %d", 42)

	if !strings.Contains(buf.String(), "DEBUG: debug info 42") {
		t.Errorf("expected 'DEBUG: debug info 42' in output, got %q", buf.String())
	}
}

func TestDebugDisabledWhenNotVerbose(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, false, false)
	p.Debug("should not appear")

	if strings.Contains(buf.String(), "should not appear") {
		t.Errorf("debug should not appear when verbose=false, got %q", buf.String())
	}
}

func TestVerboseOverridesQuiet(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, true, true)
	p.Log("visible despite quiet")

	if !strings.Contains(buf.String(), "visible despite quiet") {
		t.Errorf("verbose should override quiet, got %q", buf.String())
	}
}
