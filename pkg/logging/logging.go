// Package logging provides the process-wide structured logger every
// component is constructed with. It is a thin wrapper around zerolog so
// call sites keep the teacher's "component_action_outcome" event naming
// without depending on log/slog's key/value pair calling convention.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is injected into every component constructor; nothing reads a
// package-level global.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger writing leveled, structured events to w.
func New(w io.Writer, level zerolog.Level) *Logger {
	zl := zerolog.New(w).With().Timestamp().Logger().Level(level)
	return &Logger{zl: zl}
}

// NewDefault builds a Logger writing to stdout at info level, matching the
// teacher's default (slog.NewTextHandler(os.Stdout, info)).
func NewDefault() *Logger {
	return New(os.Stdout, zerolog.InfoLevel)
}

// With returns a child logger carrying an additional string field on every
// subsequent event, e.g. logger.With("component", "store").
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

// Event is a single structured log line under construction.
type Event struct {
	e *zerolog.Event
}

func (l *Logger) Info(event string) *Event  { return &Event{e: l.zl.Info().Str("event", event)} }
func (l *Logger) Warn(event string) *Event  { return &Event{e: l.zl.Warn().Str("event", event)} }
func (l *Logger) Error(event string) *Event { return &Event{e: l.zl.Error().Str("event", event)} }
func (l *Logger) Debug(event string) *Event { return &Event{e: l.zl.Debug().Str("event", event)} }

func (ev *Event) Str(key, value string) *Event {
	ev.e = ev.e.Str(key, value)
	return ev
}

func (ev *Event) Int(key string, value int) *Event {
	ev.e = ev.e.Int(key, value)
	return ev
}

func (ev *Event) Int64(key string, value int64) *Event {
	ev.e = ev.e.Int64(key, value)
	return ev
}

func (ev *Event) Float64(key string, value float64) *Event {
	ev.e = ev.e.Float64(key, value)
	return ev
}

func (ev *Event) Bool(key string, value bool) *Event {
	ev.e = ev.e.Bool(key, value)
	return ev
}

func (ev *Event) Err(err error) *Event {
	ev.e = ev.e.AnErr("error", err)
	return ev
}

func (ev *Event) Send() {
	ev.e.Send()
}

func (ev *Event) Msg(msg string) {
	ev.e.Msg(msg)
}
