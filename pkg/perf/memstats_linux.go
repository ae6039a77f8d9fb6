//go:build linux

package perf

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// memorySnapshot holds the five VmXxx fields the memory log samples from
// the OS's per-process status exposure, in kilobytes.
type memorySnapshot struct {
	VmSwap int64
	VmHWM  int64
	VmRSS  int64
	VmPeak int64
	VmSize int64
}

// sampleMemory reads /proc/self/status and extracts the five VmXxx fields.
// A field absent from the kernel's output (or an unreadable /proc) yields a
// zero value for that field rather than an error -- this is a sidecar
// diagnostic, not something a batch should fail over.
func sampleMemory() memorySnapshot {
	var snap memorySnapshot

	f, err := os.Open("/proc/self/status")
	if err != nil {
		return snap
	}
	defer f.Close()

	targets := map[string]*int64{
		"VmSwap:": &snap.VmSwap,
		"VmHWM:":  &snap.VmHWM,
		"VmRSS:":  &snap.VmRSS,
		"VmPeak:": &snap.VmPeak,
		"VmSize:": &snap.VmSize,
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if dst, ok := targets[fields[0]]; ok {
			if kb, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				*dst = kb
			}
		}
	}
	return snap
}
