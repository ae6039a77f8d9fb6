// Package tfhe defines the capability surface this harness needs from a
// TFHE-style gate-bootstrapping scheme -- parameter sets, key material, and
// per-bit ciphertexts -- plus a concrete adapter.
//
// Gate-bootstrapping mathematics are external-collaborator territory this
// benchmarking harness does not model.
// What the role state machines and the codec actually need is: a parameter
// handle every ciphertext is bound to, a secret key that can encrypt and
// decrypt one bit at a time, and a fixed-size exported byte form per
// ciphertext. The adapter here satisfies that shape with
// golang.org/x/crypto/chacha20poly1305 sealing each bit, which gives every
// "ciphertext" the authenticated, fixed-size-per-parameter-set byte
// envelope a real TFHE export would have.
package tfhe

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/shadowmesh/hebench/pkg/bench"
)

// CiphertextSize is the fixed exported size of a single bit-ciphertext
// under this adapter: a chacha20poly1305 nonce plus a one-byte sealed
// plaintext plus its authentication tag.
const CiphertextSize = chacha20poly1305.NonceSize + 1 + chacha20poly1305.Overhead

// ParamSet is an opaque TFHE parameter handle. Every ciphertext and key is
// bound to exactly one ParamSet; the codec refuses to decode without one.
type ParamSet struct {
	id string
}

// NewParamSet creates a fresh parameter handle identified by id (e.g. a
// stamped run identifier). Real TFHE parameter sets encode lattice
// dimensions, noise parameters, and bootstrapping key shapes; this adapter
// only needs a stable identity to bind keys and ciphertexts to each other.
func NewParamSet(id string) *ParamSet {
	return &ParamSet{id: id}
}

// ID returns the parameter set's stable identifier.
func (p *ParamSet) ID() string { return p.id }

// Export serializes the parameter set to an opaque byte blob for KeyStore.
func (p *ParamSet) Export() []byte {
	return []byte(p.id)
}

// ImportParamSet reconstructs a ParamSet from a blob produced by Export.
func ImportParamSet(blob []byte) (*ParamSet, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty tfhe parameter blob", bench.ErrCodec)
	}
	return &ParamSet{id: string(blob)}, nil
}

// SecretKeySet is the TFHE secret key material, bound to a ParamSet.
type SecretKeySet struct {
	Params *ParamSet
	key    [32]byte
}

// CloudKey is the evaluation ("cloud") key handed to the Server. In this
// adapter it is derived from the secret via HKDF, standing in for the real
// bootstrapping key's one-way derivation. pkg/transcipher stores it next
// to the secret key set but encrypts with the secret key set; no operation
// here computes with the cloud key.
type CloudKey struct {
	Params  *ParamSet
	evalKey [32]byte
}

// Ciphertext is a single encrypted bit, bound to a ParamSet.
type Ciphertext struct {
	Params *ParamSet
	raw    [CiphertextSize]byte
}

// Export returns the ciphertext's fixed-size exported byte form.
func (c Ciphertext) Export() []byte {
	out := make([]byte, CiphertextSize)
	copy(out, c.raw[:])
	return out
}

// CtVec is an ordered vector of bit-ciphertexts bound to one ParamSet.
type CtVec struct {
	Params *ParamSet
	Bits   []Ciphertext
}

// Engine performs per-bit encrypt/decrypt and ciphertext import, the
// "gate-bootstrapping" capability the Roles and the codec call through.
type Engine struct{}

// NewEngine returns the concrete adapter engine.
func NewEngine() *Engine { return &Engine{} }

// GenerateSecretKey creates fresh secret key material bound to params.
func (e *Engine) GenerateSecretKey(params *ParamSet) (*SecretKeySet, error) {
	sk := &SecretKeySet{Params: params}
	if _, err := rand.Read(sk.key[:]); err != nil {
		return nil, fmt.Errorf("%w: generating tfhe secret key: %v", bench.ErrIO, err)
	}
	return sk, nil
}

// ExportSecret serializes secret key material for KeyStore.
func (sk *SecretKeySet) ExportSecret() []byte {
	out := make([]byte, 32)
	copy(out, sk.key[:])
	return out
}

// ImportSecretKey reconstructs a SecretKeySet from a blob produced by
// ExportSecret, bound to params.
func ImportSecretKey(params *ParamSet, blob []byte) (*SecretKeySet, error) {
	if len(blob) != 32 {
		return nil, fmt.Errorf("%w: tfhe secret key blob is %d bytes, want 32", bench.ErrCodec, len(blob))
	}
	sk := &SecretKeySet{Params: params}
	copy(sk.key[:], blob)
	return sk, nil
}

// DeriveCloudKey derives the evaluation key a Server is trusted with.
func (e *Engine) DeriveCloudKey(sk *SecretKeySet) (*CloudKey, error) {
	ck := &CloudKey{Params: sk.Params}
	kdf := hkdf.New(sha256.New, sk.key[:], nil, []byte("hebench-tfhe-cloud-key"))
	if _, err := io.ReadFull(kdf, ck.evalKey[:]); err != nil {
		return nil, fmt.Errorf("%w: deriving cloud key: %v", bench.ErrIO, err)
	}
	return ck, nil
}

// EncryptBit encrypts a single plaintext bit (0 or 1) under sk.
func (e *Engine) EncryptBit(sk *SecretKeySet, bit byte) (Ciphertext, error) {
	aead, err := chacha20poly1305.New(sk.key[:])
	if err != nil {
		return Ciphertext{}, fmt.Errorf("%w: constructing tfhe bit cipher: %v", bench.ErrIO, err)
	}

	var ct Ciphertext
	ct.Params = sk.Params

	nonce := ct.raw[:chacha20poly1305.NonceSize]
	if _, err := rand.Read(nonce); err != nil {
		return Ciphertext{}, fmt.Errorf("%w: generating bit-ciphertext nonce: %v", bench.ErrIO, err)
	}

	sealed := aead.Seal(nil, nonce, []byte{bit & 1}, nil)
	copy(ct.raw[chacha20poly1305.NonceSize:], sealed)
	return ct, nil
}

// DecryptBit recovers the plaintext bit from a ciphertext under sk.
func (e *Engine) DecryptBit(sk *SecretKeySet, ct Ciphertext) (byte, error) {
	aead, err := chacha20poly1305.New(sk.key[:])
	if err != nil {
		return 0, fmt.Errorf("%w: constructing tfhe bit cipher: %v", bench.ErrIO, err)
	}

	nonce := ct.raw[:chacha20poly1305.NonceSize]
	sealed := ct.raw[chacha20poly1305.NonceSize:]

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: decrypting bit ciphertext: %v", bench.ErrCodec, err)
	}
	if len(plain) != 1 {
		return 0, fmt.Errorf("%w: expected 1 plaintext byte, got %d", bench.ErrCodec, len(plain))
	}
	return plain[0], nil
}

// Import reconstructs a Ciphertext from its exported byte form, binding it
// to params. This is the primitive TfheCodec's decoder calls once per
// ciphertext slot.
func (e *Engine) Import(params *ParamSet, raw []byte) (Ciphertext, error) {
	if len(raw) != CiphertextSize {
		return Ciphertext{}, fmt.Errorf("%w: tfhe ciphertext is %d bytes, want %d", bench.ErrCodec, len(raw), CiphertextSize)
	}
	var ct Ciphertext
	ct.Params = params
	copy(ct.raw[:], raw)
	return ct, nil
}
