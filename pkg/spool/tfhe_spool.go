package spool

import (
	"github.com/shadowmesh/hebench/pkg/pathlock"
	"github.com/shadowmesh/hebench/pkg/tfhe"
	"github.com/shadowmesh/hebench/pkg/tfhecodec"
)

// TfheWriter appends framed records whose payload is a tfhe.CtVec encoded
// by tfhecodec, layered directly on top of the plain byte Writer.
type TfheWriter struct {
	bytes *Writer
	codec *tfhecodec.Codec
}

// NewTfheWriter returns a TFHE ciphertext-vector spool appender.
func NewTfheWriter(path string, locks *pathlock.Registry, codec *tfhecodec.Codec) *TfheWriter {
	return &TfheWriter{bytes: NewWriter(path, locks), codec: codec}
}

// Append encodes v and appends it as one framed record.
func (w *TfheWriter) Append(v tfhe.CtVec) error {
	encoded, err := w.codec.Encode(v)
	if err != nil {
		return err
	}
	return w.bytes.Append(encoded)
}

// TfheReader reads framed tfhe.CtVec records in insertion order, decoding
// each one against a fixed parameter set.
type TfheReader struct {
	bytes  *Reader
	codec  *tfhecodec.Codec
	params *tfhe.ParamSet
}

// NewTfheReader returns a sequential TFHE ciphertext-vector spool reader.
func NewTfheReader(path string, locks *pathlock.Registry, codec *tfhecodec.Codec, params *tfhe.ParamSet) *TfheReader {
	return &TfheReader{bytes: NewReader(path, locks), codec: codec, params: params}
}

// Next returns the next decoded ciphertext vector, or a zero CtVec with a
// nil error at a clean end of the spool (callers distinguish end-of-stream
// by checking ok).
func (r *TfheReader) Next() (v tfhe.CtVec, ok bool, err error) {
	raw, err := r.bytes.Next()
	if err != nil {
		return tfhe.CtVec{}, false, err
	}
	if raw == nil {
		return tfhe.CtVec{}, false, nil
	}
	v, err = r.codec.Decode(r.params, raw)
	if err != nil {
		return tfhe.CtVec{}, false, err
	}
	return v, true, nil
}

// Reset rewinds the reader to the start of the spool.
func (r *TfheReader) Reset() error { return r.bytes.Reset() }

// Close releases the reader's open file handle, if any.
func (r *TfheReader) Close() error { return r.bytes.Close() }
