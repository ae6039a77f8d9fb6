// Package logging implements the leveled JSON run log each role binary
// writes for operational messages -- startup, batch progress, transport
// degradation, shutdown -- as distinct from pkg/perf's PerfLogger, which
// owns the fixed-format timestamp and memory sidecar files the
// benchmark's offline analysis scripts parse.
//
// Every entry carries the role that wrote it and, once BindRun has been
// called, the identity of the benchmark run it belongs to (stamp,
// variant, batch shape), so a line from any of the three role logs can
// be matched to its run without parsing spool filenames. Each role
// constructs its own Logger at startup rather than reaching for a
// package-level default; the only process-wide singletons in this
// harness are the path-lock registry and the queue sender pool.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shadowmesh/hebench/pkg/params"
)

// Level represents logging severity.
type Level int

const (
	INFO Level = iota
	WARN
	ERROR
	FATAL
)

// String returns the string representation of a log level.
func (l Level) String() string {
	switch l {
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// RunInfo identifies the benchmark run an Entry belongs to.
type RunInfo struct {
	Stamp        string `json:"stamp"`
	Variant      string `json:"variant"`
	IntBits      int    `json:"int_bits"`
	BatchSize    int    `json:"batch_size"`
	BatchCount   int    `json:"batch_count"`
	DataHandling string `json:"data_handling"`
}

// Entry is a single JSON log line.
type Entry struct {
	Timestamp string   `json:"timestamp"`
	Level     string   `json:"level"`
	Role      string   `json:"role"`
	Run       *RunInfo `json:"run,omitempty"`
	Message   string   `json:"message"`
}

// Logger writes leveled JSON entries for one role process. Entries below
// the level it was constructed with are discarded.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	file  *os.File
	level Level
	role  string
	run   *RunInfo
}

// NewLogger opens (or appends to) the log file at logPath and returns a
// Logger for role. An empty logPath logs to stdout.
func NewLogger(role string, level Level, logPath string) (*Logger, error) {
	logger := &Logger{level: level, role: role, out: os.Stdout}

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %q: %w", logPath, err)
		}
		logger.file = file
		logger.out = file
	}

	return logger, nil
}

// BindRun attaches the run identity carried on every subsequent entry.
// Roles call this once, as soon as the run's stamp and Parameters are
// both known.
func (l *Logger) BindRun(stamp string, p *params.Parameters) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.run = &RunInfo{
		Stamp:        stamp,
		Variant:      string(p.Variant),
		IntBits:      p.IntBits,
		BatchSize:    p.BatchSize,
		BatchCount:   p.BatchCount,
		DataHandling: string(p.DataHandling),
	}
}

func (l *Logger) log(level Level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Role:      l.role,
		Run:       l.run,
		Message:   msg,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.out, "ERROR: failed to marshal log entry: %v\n", err)
		return
	}
	fmt.Fprintf(l.out, "%s\n", data)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.log(INFO, msg)
}

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...))
}

// Fatalf logs a formatted fatal message, closes the logger, and exits
// with a non-zero code.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(FATAL, fmt.Sprintf(format, args...))
	l.Close()
	os.Exit(1)
}

// Close releases the log file, if one is open.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
