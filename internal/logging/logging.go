// Package logging defines the structured logging interface the rest of
// the server writes through, plus a zerolog-backed default
// implementation.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field is a single structured log attribute.
type Field struct {
	Key   string
	Value interface{}
}

// Logger is the structured logging interface every component depends
// on. Trace is for per-request wire-level detail (start line, headers,
// body framing decisions); it is noisier than Debug and is expected to
// be off by default.
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// zerologLogger is the default Logger, backed by zerolog.
type zerologLogger struct {
	log zerolog.Logger
}

// New builds a Logger writing JSON lines to w at the given minimum level.
// level accepts the zerolog level names: "trace", "debug", "info",
// "warn", "error".
func New(w io.Writer, level string) Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return &zerologLogger{
		log: zerolog.New(w).Level(lvl).With().Timestamp().Logger(),
	}
}

func (l *zerologLogger) Trace(msg string, fields ...Field) {
	l.emit(l.log.Trace(), msg, fields)
}

func (l *zerologLogger) Debug(msg string, fields ...Field) {
	l.emit(l.log.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...Field) {
	l.emit(l.log.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...Field) {
	l.emit(l.log.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...Field) {
	l.emit(l.log.Error(), msg, fields)
}

func (l *zerologLogger) emit(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		ev = ev.Interface(f.Key, sanitizeValue(f.Value))
	}
	ev.Msg(msg)
}

// sanitizeValue truncates overly long string field values so a stray
// header or body fragment doesn't blow up a log line.
func sanitizeValue(v interface{}) interface{} {
	if s, ok := v.(string); ok && len(s) > 200 {
		return s[:200] + "...[truncated]"
	}
	return v
}

// NullLogger discards everything. Used by tests and by components that
// were not given a Logger.
type NullLogger struct{}

func (NullLogger) Trace(string, ...Field) {}
func (NullLogger) Debug(string, ...Field) {}
func (NullLogger) Info(string, ...Field)  {}
func (NullLogger) Warn(string, ...Field)  {}
func (NullLogger) Error(string, ...Field) {}
