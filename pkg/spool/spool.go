// Package spool implements the byte-record spool: a thread-safe append
// writer and sequential reader for the Frame records defined by
// pkg/framing. Two flavors exist -- the plain byte spool here, and the
// TFHE ciphertext-vector spool in tfhe_spool.go, which layers
// pkg/tfhecodec on top of the same framing.
package spool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shadowmesh/hebench/pkg/bench"
	"github.com/shadowmesh/hebench/pkg/framing"
	"github.com/shadowmesh/hebench/pkg/pathlock"
)

// Writer appends framed byte records to a single file, serialized by the
// path's lock so that two appenders in the same process never interleave
// a frame's length and payload writes.
type Writer struct {
	path  string
	locks *pathlock.Registry
}

// NewWriter returns an appender for path. Parent directories are created
// lazily on the first Append call, not here.
func NewWriter(path string, locks *pathlock.Registry) *Writer {
	return &Writer{path: path, locks: locks}
}

// Append writes one framed record to the spool. The path's exclusive lock
// is held for the duration of the open-write-close sequence, so the full
// record lands atomically relative to any other appender or reader on the
// same path within this process.
func (w *Writer) Append(payload []byte) error {
	h := w.locks.Acquire(w.path)
	h.Lock()
	defer h.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("%w: creating spool directory: %v", bench.ErrIO, err)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening spool %q: %v", bench.ErrIO, w.path, err)
	}
	defer f.Close()

	if err := framing.WriteFrame(f, payload); err != nil {
		return err
	}
	return nil
}

// Reader reads framed records from a spool file in insertion order. A
// Reader opened on a path that does not yet exist is valid and simply
// reports a clean end on the first Next call.
type Reader struct {
	path   string
	locks  *pathlock.Registry
	file   *os.File
	offset int64
}

// NewReader returns a sequential reader positioned at offset 0.
func NewReader(path string, locks *pathlock.Registry) *Reader {
	return &Reader{path: path, locks: locks}
}

// Next returns the next record, or (nil, nil) at a clean end of the spool.
func (r *Reader) Next() ([]byte, error) {
	h := r.locks.Acquire(r.path)
	h.Lock()
	defer h.Unlock()

	if r.file == nil {
		f, err := os.Open(r.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: opening spool %q: %v", bench.ErrIO, r.path, err)
		}
		r.file = f
		if r.offset > 0 {
			if _, err := r.file.Seek(r.offset, 0); err != nil {
				return nil, fmt.Errorf("%w: seeking spool %q: %v", bench.ErrIO, r.path, err)
			}
		}
	}

	payload, err := framing.ReadFrame(r.file)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		pos, err := r.file.Seek(0, io.SeekCurrent)
		if err == nil {
			r.offset = pos
		}
	}
	return payload, nil
}

// Reset rewinds the reader to the start of the spool. The next Next call
// re-opens the file (if it has since been created) and replays it from
// byte 0.
func (r *Reader) Reset() error {
	h := r.locks.Acquire(r.path)
	h.Lock()
	defer h.Unlock()

	r.offset = 0
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("%w: closing spool %q: %v", bench.ErrIO, r.path, err)
		}
		r.file = nil
	}
	return nil
}

// Close releases the reader's open file handle, if any.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
