// Package logging builds the phuslu loggers used by the kernel and its
// services. Every logger ends in a hal.Logger line sink.
package logging

import (
	"bytes"
	"io"
	"strings"

	"sparkrt/hal"

	"github.com/phuslu/log"
)

// Options selects the level and the line format.
type Options struct {
	// Level is one of trace, debug, info, warn, error (default info).
	Level string
	// Format is "json", "console" or "logfmt" (default console).
	Format string
	// Color enables ANSI colors in console format.
	Color bool
}

// LineWriter adapts a hal.Logger to io.Writer, one entry per line.
type LineWriter struct {
	Out hal.Logger
}

func (w LineWriter) Write(p []byte) (int, error) {
	if w.Out != nil {
		w.Out.WriteLineBytes(bytes.TrimRight(p, "\r\n"))
	}
	return len(p), nil
}

// ParseLevel maps a level name to a log.Level. Unknown names give info.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// Writer returns the log.Writer for opts on top of w.
func Writer(w io.Writer, opts Options) log.Writer {
	switch opts.Format {
	case "json":
		return &log.IOWriter{Writer: w}
	case "logfmt":
		return &log.ConsoleWriter{
			Writer:         w,
			EndWithMessage: true,
			Formatter:      log.LogfmtFormatter{TimeField: "time"}.Formatter,
		}
	default:
		return &log.ConsoleWriter{
			Writer:      w,
			ColorOutput: opts.Color,
			QuoteString: true,
		}
	}
}

// New returns a logger writing lines to out.
func New(out hal.Logger, opts Options) *log.Logger {
	return &log.Logger{
		Level:  ParseLevel(opts.Level),
		Writer: Writer(LineWriter{Out: out}, opts),
	}
}

// Module returns a copy of base tagged with module=name.
func Module(base *log.Logger, name string) *log.Logger {
	if base == nil {
		return Discard()
	}
	l := *base
	l.Context = log.NewContext(append([]byte(nil), base.Context...)).Str("module", name).Value()
	return &l
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return &log.Logger{Level: log.PanicLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}
