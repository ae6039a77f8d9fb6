// Package bench holds the error sentinels shared across the data-plane
// packages (framing, spool, queue, codec, keystore). Every package wraps
// these with fmt.Errorf("...: %w", ...) rather than inventing its own
// error types, so callers can use errors.Is against a single vocabulary.
package bench

import "errors"

var (
	// ErrIO indicates a filesystem or socket operation failed at the OS level.
	ErrIO = errors.New("io error")

	// ErrCorruptedFrame indicates a length prefix exceeded the sanity cap
	// or a frame body was truncated before the reader saw len(payload) bytes.
	ErrCorruptedFrame = errors.New("corrupted frame")

	// ErrCodec indicates a TFHE export/import operation failed, or a buffer
	// was too short to contain the expected ciphertext element count.
	ErrCodec = errors.New("codec error")

	// ErrParamsUnbound indicates the codec was invoked without a TFHE
	// parameter handle.
	ErrParamsUnbound = errors.New("tfhe parameters unbound")

	// ErrPayloadTooLarge indicates a frame body exceeds the write-time cap.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrKeyLoad indicates a key or parameter file was missing, unreadable,
	// or malformed.
	ErrKeyLoad = errors.New("key load error")
)
