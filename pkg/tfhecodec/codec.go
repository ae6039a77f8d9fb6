// Package tfhecodec adapts a tfhe.CtVec to and from an opaque byte buffer,
// using the crypto engine's per-ciphertext export/import primitives. The
// codec is pure: it carries no state beyond the parameter set it is
// invoked with.
//
// Wire layout:
//
//	[ uint32 BE : N ][ export(ct[0]) ][ export(ct[1]) ] ... [ export(ct[N-1]) ]
//
// Each export(ct[i]) block is tfhe.CiphertextSize bytes, fixed by the
// parameter set.
package tfhecodec

import (
	"encoding/binary"
	"fmt"

	"github.com/shadowmesh/hebench/pkg/bench"
	"github.com/shadowmesh/hebench/pkg/tfhe"
)

// Codec serializes and deserializes tfhe.CtVec values bound to a single
// engine. It holds no per-call state.
type Codec struct {
	engine *tfhe.Engine
}

// New returns a codec backed by engine.
func New(engine *tfhe.Engine) *Codec {
	return &Codec{engine: engine}
}

// Encode serializes v to the wire layout above.
func (c *Codec) Encode(v tfhe.CtVec) ([]byte, error) {
	if v.Params == nil {
		return nil, fmt.Errorf("%w: encoding ciphertext vector", bench.ErrParamsUnbound)
	}

	buf := make([]byte, 4, 4+len(v.Bits)*tfhe.CiphertextSize)
	binary.BigEndian.PutUint32(buf, uint32(len(v.Bits)))

	for i, bit := range v.Bits {
		exported := bit.Export()
		if len(exported) != tfhe.CiphertextSize {
			return nil, fmt.Errorf("%w: ciphertext %d exported %d bytes, want %d", bench.ErrCodec, i, len(exported), tfhe.CiphertextSize)
		}
		buf = append(buf, exported...)
	}
	return buf, nil
}

// Decode parses buf into a tfhe.CtVec bound to params. params must not be
// nil.
func (c *Codec) Decode(params *tfhe.ParamSet, buf []byte) (tfhe.CtVec, error) {
	if params == nil {
		return tfhe.CtVec{}, fmt.Errorf("%w: decoding ciphertext vector", bench.ErrParamsUnbound)
	}
	if len(buf) < 4 {
		return tfhe.CtVec{}, fmt.Errorf("%w: ciphertext vector header truncated", bench.ErrCodec)
	}

	n := binary.BigEndian.Uint32(buf[:4])
	rest := buf[4:]
	want := int(n) * tfhe.CiphertextSize
	if len(rest) != want {
		return tfhe.CtVec{}, fmt.Errorf("%w: ciphertext vector body is %d bytes, want %d for N=%d", bench.ErrCodec, len(rest), want, n)
	}

	vec := tfhe.CtVec{Params: params, Bits: make([]tfhe.Ciphertext, n)}
	for i := uint32(0); i < n; i++ {
		start := i * uint32(tfhe.CiphertextSize)
		raw := rest[start : start+uint32(tfhe.CiphertextSize)]
		bit, err := c.engine.Import(params, raw)
		if err != nil {
			return tfhe.CtVec{}, fmt.Errorf("%w: importing ciphertext %d: %v", bench.ErrCodec, i, err)
		}
		vec.Bits[i] = bit
	}
	return vec, nil
}
