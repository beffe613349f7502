package logger

import (
	"fmt"
	"strings"
	"sync"
)

// Level is the minimum severity a sink receives.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel accepts "info", "warning" (or "warn") and "error". An empty
// string is LevelInfo.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Sink is one destination of a MultiLogger.
type Sink struct {
	Logger Logger
	Min    Level
}

// MultiLogger fans messages out to several sinks, each filtered by its own
// minimum level. The daemon uses it to keep a complete log file while the
// console shows only what the user asked for.
type MultiLogger struct {
	sinks []Sink

	mu     sync.Mutex
	closed bool
}

// NewMultiLogger creates a logger over sinks, written in order.
func NewMultiLogger(sinks ...Sink) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

// All wraps loggers as sinks that receive every level.
func All(loggers ...Logger) []Sink {
	sinks := make([]Sink, len(loggers))
	for i, l := range loggers {
		sinks[i] = Sink{Logger: l, Min: LevelInfo}
	}
	return sinks
}

func (m *MultiLogger) Info(format string, args ...interface{}) {
	for _, s := range m.sinks {
		if s.Min <= LevelInfo {
			s.Logger.Info(format, args...)
		}
	}
}

func (m *MultiLogger) Warning(format string, args ...interface{}) {
	for _, s := range m.sinks {
		if s.Min <= LevelWarning {
			s.Logger.Warning(format, args...)
		}
	}
}

func (m *MultiLogger) Error(format string, args ...interface{}) {
	for _, s := range m.sinks {
		s.Logger.Error(format, args...)
	}
}

// Close closes every sink once and returns the first error. Later calls
// return nil.
func (m *MultiLogger) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	var firstErr error
	for _, s := range m.sinks {
		if err := s.Logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Logger = (*MultiLogger)(nil)
