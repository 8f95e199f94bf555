// Package logx is a level-filtered, printf-style logging façade, the Go
// shape of the original engine's rtclog collaborator: Fatal aborts,
// everything else is a plain leveled write gated by a minimum level.
package logx

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/reactorforge/evloop/internal/clock"
)

// Level mirrors rtclog's RtcLogLevel enum, fatal-first ordering preserved.
type Level int

const (
	Fatal Level = iota
	Error
	Warn
	Info
	Debug
	Trace
)

func (l Level) String() string {
	switch l {
	case Fatal:
		return "FATAL"
	case Error:
		return "ERROR"
	case Warn:
		return "WARN"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	case Trace:
		return "TRACE"
	default:
		return "?????"
	}
}

// AbortFunc is called after a Fatal message is written. Overridable so
// tests can assert a fatal condition without killing the test binary.
type AbortFunc func()

// Logger is a minimal, mutex-guarded leveled logger writing printf-style
// lines to an io.Writer.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	name   string
	abort  AbortFunc
}

// New creates a Logger named name, writing to out, filtered at level.
func New(name string, out io.Writer, level Level) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{out: out, level: level, name: name, abort: func() { os.Exit(1) }}
}

// Default is the package-level logger used by components that are not
// given an explicit *Logger (mirrors rtclog's process-global logger).
var Default = New("evloop", os.Stderr, Info)

// SetLevel adjusts the minimum level that is emitted.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// SetAbort overrides what Fatal does after logging (tests use this to
// avoid exiting the process).
func (l *Logger) SetAbort(fn AbortFunc) {
	l.mu.Lock()
	l.abort = fn
	l.mu.Unlock()
}

func (l *Logger) enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level <= l.level
}

func (l *Logger) log(level Level, format string, args ...any) {
	if !l.enabled(level) {
		return
	}
	ts := clock.Now()
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	fmt.Fprintf(l.out, "%s %-5s [%s] %s\n", ts.Format("2006-01-02T15:04:05.000"), level, l.name, msg)
	abort := l.abort
	l.mu.Unlock()
	if level == Fatal && abort != nil {
		abort()
	}
}

func (l *Logger) Tracef(format string, args ...any) { l.log(Trace, format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.log(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(Error, format, args...) }
func (l *Logger) Fatalf(format string, args ...any) { l.log(Fatal, format, args...) }

func Tracef(format string, args ...any) { Default.Tracef(format, args...) }
func Debugf(format string, args ...any) { Default.Debugf(format, args...) }
func Infof(format string, args ...any)  { Default.Infof(format, args...) }
func Warnf(format string, args ...any)  { Default.Warnf(format, args...) }
func Errorf(format string, args ...any) { Default.Errorf(format, args...) }
func Fatalf(format string, args ...any) { Default.Fatalf(format, args...) }
