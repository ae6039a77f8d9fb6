package framing

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shadowmesh/hebench/pkg/bench"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty payload", []byte{}},
		{"single byte", []byte{0x5A}},
		{"small payload", []byte("hello kreyvium")},
		{"1KB payload", bytes.Repeat([]byte{0x42}, 1024)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tc.data); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}

			got, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tc.data) {
				t.Fatalf("round trip mismatch: got %v, want %v", got, tc.data)
			}

			end, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("expected clean end, got error: %v", err)
			}
			if end != nil {
				t.Fatalf("expected nil at end of stream, got %v", end)
			}
		})
	}
}

func TestSpoolConcatenation(t *testing.T) {
	frames := [][]byte{[]byte("one"), []byte("two"), []byte("three")}

	var buf bytes.Buffer
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	for i, want := range frames {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame(%d) failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d mismatch: got %v, want %v", i, got, want)
		}
	}

	end, err := ReadFrame(&buf)
	if err != nil || end != nil {
		t.Fatalf("expected clean end after %d frames, got (%v, %v)", len(frames), end, err)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	// The oversized slice itself is allocated here; what is checked is that
	// the cap is rejected before any write attempt reaches the buffer.
	oversized := make([]byte, 0)
	_ = oversized

	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, bench.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no bytes written on rejection, wrote %d", buf.Len())
	}
}

func TestSanityCapRejectsWithoutAllocating(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x40, 0x00, 0x00, 0x01}) // length = 0x40000001 = 2^30 + 1, one past the cap
	_, err := ReadFrame(&buf)
	if !errors.Is(err, bench.ErrCorruptedFrame) {
		t.Fatalf("expected ErrCorruptedFrame, got %v", err)
	}
}

func TestTruncatedFrameDetection(t *testing.T) {
	payload := []byte("the quick brown fox")

	var full bytes.Buffer
	if err := WriteFrame(&full, payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	whole := full.Bytes()

	for cut := 1; cut < len(whole); cut++ {
		truncated := bytes.NewReader(whole[:cut])
		_, err := ReadFrame(truncated)
		if !errors.Is(err, bench.ErrCorruptedFrame) {
			t.Fatalf("truncation at %d bytes: expected ErrCorruptedFrame, got %v", cut, err)
		}
	}
}

func TestReadFrameCleanEndBeforeLength(t *testing.T) {
	empty := bytes.NewReader(nil)
	got, err := ReadFrame(empty)
	if err != nil {
		t.Fatalf("expected no error on empty source, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil payload at clean end, got %v", got)
	}
}
