package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// Components depend on this interface rather than a concrete logger so tests
// can inject a no-op or capturing implementation.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// componentLogger writes leveled, component-tagged lines to a shared sink.
type componentLogger struct {
	sink      *sink
	component string
}

type sink struct {
	mu     sync.Mutex
	out    *log.Logger
	level  Level
	closer io.Closer
}

var (
	defaultSink     *sink
	defaultSinkOnce sync.Once
)

func getDefaultSink() *sink {
	defaultSinkOnce.Do(func() {
		out := io.Writer(os.Stderr)
		var closer io.Closer
		if path := os.Getenv("LOOM_DEBUG_LOG"); path != "" {
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
				out = f
				closer = f
			}
		}
		defaultSink = &sink{
			out:    log.New(out, "", 0),
			level:  ParseLevel(os.Getenv("LOOM_LOG_LEVEL")),
			closer: closer,
		}
	})
	return defaultSink
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{sink: getDefaultSink(), component: component}
}

// SetDefaultLevel adjusts the severity floor of the shared sink.
func SetDefaultLevel(level Level) {
	s := getDefaultSink()
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

func (l *componentLogger) logf(level Level, format string, args ...any) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if level < l.sink.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.sink.out.Printf("%s [%s] [%s] %s", time.Now().Format("2006-01-02 15:04:05.000"), level, l.component, msg)
}

func (l *componentLogger) Debug(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.logf(LevelError, format, args...) }
