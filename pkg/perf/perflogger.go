// Package perf implements the scoped, timestamped performance log each role
// opens for the duration of one benchmark run: a time log recording one
// line per event, and a sidecar memory log recording an OS memory snapshot
// alongside every event. It is a narrower, purpose-built sibling of
// pkg/logging.Logger -- same mutex discipline and file-lifecycle shape,
// but a fixed on-disk format the benchmark's offline analysis scripts
// depend on, rather than JSON.
package perf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// timestampLayout is the "YYYY-MM-DD HH:MM:SS.uuuuuu" local-time format
// every log line carries.
const timestampLayout = "2006-01-02 15:04:05.000000"

// Logger is a scoped performance logger. It owns two open files for its
// lifetime and is safe for concurrent Log calls from multiple goroutines
// within the role that created it.
type Logger struct {
	mu        sync.Mutex
	timeFile  *os.File
	memFile   *os.File
	closed    bool
}

// Open creates (or truncates) the time log at timePath and the memory log
// at memPath, creating parent directories as needed. The cmd/ mains derive
// both paths from roles.PerfTimePath and roles.PerfMemPath so the pair
// shares a run identifier.
func Open(timePath, memPath string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(timePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating time log directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(memPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating memory log directory: %w", err)
	}

	timeFile, err := os.OpenFile(timePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening time log %q: %w", timePath, err)
	}
	memFile, err := os.OpenFile(memPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		timeFile.Close()
		return nil, fmt.Errorf("opening memory log %q: %w", memPath, err)
	}

	return &Logger{timeFile: timeFile, memFile: memFile}, nil
}

// Log writes "timestamp : msg" to the time log and, with the same
// timestamp, five memory snapshots (VmSwap, VmHWM, VmRSS, VmPeak, VmSize)
// to the memory log.
func (l *Logger) Log(msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("perf logger already closed")
	}

	ts := time.Now().Format(timestampLayout)

	if _, err := fmt.Fprintf(l.timeFile, "%s : %s\n", ts, msg); err != nil {
		return fmt.Errorf("writing time log: %w", err)
	}

	snap := sampleMemory()
	fields := []struct {
		name string
		kb   int64
	}{
		{"VmSwap", snap.VmSwap},
		{"VmHWM", snap.VmHWM},
		{"VmRSS", snap.VmRSS},
		{"VmPeak", snap.VmPeak},
		{"VmSize", snap.VmSize},
	}
	for _, f := range fields {
		if _, err := fmt.Fprintf(l.memFile, "%s : %s = %d kB\n", ts, f.name, f.kb); err != nil {
			return fmt.Errorf("writing memory log: %w", err)
		}
	}
	return nil
}

// Close flushes and closes both log files. It is safe to call once; a
// second call is a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	err1 := l.timeFile.Close()
	err2 := l.memFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// StampedFilename builds the `<stamp>_<suffix>` name a performance log
// file carries, e.g.
// Performance_Measurement/data_time/<stamp>_HHE_BatchNr:4_BatchSize:2_IntSize:8_client.txt
func StampedFilename(stamp, suffix string) string {
	return fmt.Sprintf("%s_%s", stamp, suffix)
}

// Stamp returns the current local time in the YYYYMMDD_HHMMSS
// filename-stamp format every data and log file shares.
func Stamp() string {
	return time.Now().Format("20060102_150405")
}
