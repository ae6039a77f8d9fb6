// Package framing implements the single length-prefixed record format
// shared by every on-disk spool and every persisted queue message in this
// harness: a 4-byte big-endian length followed by that many payload bytes.
package framing

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/shadowmesh/hebench/pkg/bench"
)

// LengthSize is the width of a frame's length prefix in bytes.
const LengthSize = 4

// MaxPayloadSize is the sanity cap on a single frame's payload: 2^30 bytes.
// It exists to bound recovery effort on corrupted input, not to describe a
// real protocol limit.
const MaxPayloadSize = 1 << 30

// WriteFrame writes a length-prefixed record to sink: htonl(len(p)) followed
// by p itself. It fails without writing anything if len(p) exceeds
// MaxPayloadSize. A failure partway through the two writes leaves sink in an
// undefined state; callers must not append further frames to it without
// truncating first.
func WriteFrame(sink io.Writer, p []byte) error {
	if len(p) > MaxPayloadSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds cap of %d", bench.ErrPayloadTooLarge, len(p), MaxPayloadSize)
	}

	var lenBuf [LengthSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))

	if _, err := sink.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("%w: writing frame length: %v", bench.ErrIO, err)
	}
	if len(p) == 0 {
		return nil
	}
	if _, err := sink.Write(p); err != nil {
		return fmt.Errorf("%w: writing frame payload: %v", bench.ErrIO, err)
	}
	return nil
}

// ReadFrame reads the next length-prefixed record from source. It returns
// (nil, nil) when source reports a clean io.EOF before any length byte was
// read -- the conventional "end of stream" signal. A length prefix beyond
// MaxPayloadSize, or an EOF/ErrUnexpectedEOF anywhere between the length
// and the last payload byte, is reported as bench.ErrCorruptedFrame; the
// payload is never allocated until the cap has been checked.
func ReadFrame(source io.Reader) ([]byte, error) {
	var lenBuf [LengthSize]byte
	if _, err := io.ReadFull(source, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: truncated frame length: %v", bench.ErrCorruptedFrame, err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxPayloadSize {
		return nil, fmt.Errorf("%w: frame length %d exceeds cap of %d", bench.ErrCorruptedFrame, n, MaxPayloadSize)
	}
	if n == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(source, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated frame payload: %v", bench.ErrCorruptedFrame, err)
	}
	return payload, nil
}
