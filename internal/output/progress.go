// Package output handles result rendering, serialization and progress reporting.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Progress reports analysis status, usually to stderr.
type Progress struct {
	log   zerolog.Logger
	start time.Time
}

// NewProgress creates a Progress reporter. quiet suppresses informational
// messages; verbose enables debug messages and wins over quiet.
func NewProgress(w io.Writer, quiet, verbose bool) *Progress {
	p := &Progress{start: time.Now()}

	level := zerolog.InfoLevel
	switch {
	case verbose:
		level = zerolog.DebugLevel
	case quiet:
		level = zerolog.WarnLevel
	}

	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatTimestamp: func(interface{}) string {
			return fmt.Sprintf("[%s]", time.Since(p.start).Round(time.Millisecond))
		},
		FormatLevel: func(i interface{}) string {
			s, _ := i.(string)
			if s == "" || s == zerolog.LevelInfoValue {
				return ""
			}
			return strings.ToUpper(s) + ":"
		},
	}
	p.log = zerolog.New(cw).Level(level).With().Timestamp().Logger()
	return p
}

// Logger exposes the underlying logger for components that log structured fields.
func (p *Progress) Logger() zerolog.Logger {
	return p.log
}

// Log prints an informational progress message.
func (p *Progress) Log(format string, args ...interface{}) {
	p.log.Info().Msgf(format, args...)
}

// Debug prints a message only in verbose mode.
func (p *Progress) Debug(format string, args ...interface{}) {
	p.log.Debug().Msgf(format, args...)
}

// Warn prints a message even in quiet mode.
func (p *Progress) Warn(format string, args ...interface{}) {
	p.log.Warn().Msgf(format, args...)
}
