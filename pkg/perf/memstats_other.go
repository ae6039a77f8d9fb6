//go:build !linux

package perf

// memorySnapshot mirrors memstats_linux.go's fields. On platforms without
// /proc/self/status there is no portable per-process VmXxx exposure
// available without a platform-specific syscall or cgo; this is a
// documented limitation of the sidecar memory log, not of the benchmark
// itself -- every field degrades to zero rather than the logger failing.
type memorySnapshot struct {
	VmSwap int64
	VmHWM  int64
	VmRSS  int64
	VmPeak int64
	VmSize int64
}

func sampleMemory() memorySnapshot {
	return memorySnapshot{}
}
