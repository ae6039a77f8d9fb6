package spool

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shadowmesh/hebench/pkg/bench"
	"github.com/shadowmesh/hebench/pkg/framing"
	"github.com/shadowmesh/hebench/pkg/pathlock"
)

func TestAppendReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.bin")
	locks := pathlock.New()

	w := NewWriter(path, locks)
	records := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, r := range records {
		if err := w.Append(r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	r := NewReader(path, locks)
	for i, want := range records {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next(%d) failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("record %d = %v, want %v", i, got, want)
		}
	}
	end, err := r.Next()
	if err != nil || end != nil {
		t.Fatalf("expected clean end, got (%v, %v)", end, err)
	}
}

func TestReaderOnMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.bin")
	locks := pathlock.New()

	r := NewReader(path, locks)
	got, err := r.Next()
	if err != nil {
		t.Fatalf("expected no error for missing spool, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil at end for missing spool, got %v", got)
	}
}

func TestReaderReset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.bin")
	locks := pathlock.New()

	w := NewWriter(path, locks)
	if err := w.Append([]byte("payload")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	r := NewReader(path, locks)
	first, err := r.Next()
	if err != nil || !bytes.Equal(first, []byte("payload")) {
		t.Fatalf("unexpected first read: %v, %v", first, err)
	}

	if err := r.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	again, err := r.Next()
	if err != nil || !bytes.Equal(again, []byte("payload")) {
		t.Fatalf("unexpected read after reset: %v, %v", again, err)
	}
}

// TestConcurrentWritersProduceNoInterleaving exercises S6: two threads each
// appending 100 distinguishable frames to the same path under PathLocks
// must produce a file with exactly 200 frames, each payload present
// exactly once.
func TestConcurrentWritersProduceNoInterleaving(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concurrent.bin")
	locks := pathlock.New()

	const perWriter = 100
	var wg sync.WaitGroup
	wg.Add(2)

	write := func(tag byte) {
		defer wg.Done()
		w := NewWriter(path, locks)
		for i := 0; i < perWriter; i++ {
			payload := []byte{tag, byte(i), byte(i >> 8)}
			if err := w.Append(payload); err != nil {
				t.Errorf("Append failed: %v", err)
				return
			}
		}
	}
	go write(0xAA)
	go write(0xBB)
	wg.Wait()

	r := NewReader(path, locks)
	seen := map[byte]map[int]bool{0xAA: {}, 0xBB: {}}
	count := 0
	for {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if rec == nil {
			break
		}
		if len(rec) != 3 {
			t.Fatalf("interleaved/corrupted record of length %d: %v", len(rec), rec)
		}
		idx := int(rec[1]) | int(rec[2])<<8
		if seen[rec[0]][idx] {
			t.Fatalf("duplicate record tag=%x idx=%d", rec[0], idx)
		}
		seen[rec[0]][idx] = true
		count++
	}

	if count != perWriter*2 {
		t.Fatalf("got %d records, want %d", count, perWriter*2)
	}
	for _, tag := range []byte{0xAA, 0xBB} {
		if len(seen[tag]) != perWriter {
			t.Fatalf("tag %x: saw %d distinct records, want %d", tag, len(seen[tag]), perWriter)
		}
	}
}

// TestCorruptedSpoolReportsFirstFramesThenError exercises S5: a spool whose
// final frame is truncated by one byte still yields its earlier frames
// correctly before reporting CorruptedFrame at the damaged one.
func TestCorruptedSpoolReportsFirstFramesThenError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.bin")

	var buf bytes.Buffer
	good := [][]byte{[]byte("alpha"), []byte("bravo")}
	for _, g := range good {
		if err := framing.WriteFrame(&buf, g); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}
	// A third frame, truncated by one byte.
	if err := framing.WriteFrame(&buf, []byte("charlie-truncated")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-1]
	if err := os.WriteFile(path, truncated, 0o644); err != nil {
		t.Fatalf("writing test fixture failed: %v", err)
	}

	locks := pathlock.New()
	r := NewReader(path, locks)

	for i, want := range good {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next(%d) unexpectedly failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("record %d = %v, want %v", i, got, want)
		}
	}

	_, err := r.Next()
	if !errors.Is(err, bench.ErrCorruptedFrame) {
		t.Fatalf("expected ErrCorruptedFrame at truncated record, got %v", err)
	}
}
