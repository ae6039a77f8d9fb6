// Package transcipher implements the Server-side capability that turns a
// Kreyvium ciphertext into a TFHE ciphertext vector of the same plaintext
// bits, without ever exposing the plaintext outside of this package.
//
// A real Kreyvium-to-TFHE transcipher evaluates the Kreyvium keystream
// homomorphically, using only a TFHE-encrypted form of the symmetric key,
// and XORs that encrypted keystream against the (plaintext) Kreyvium
// ciphertext bits to obtain a TFHE encryption of the original plaintext
// bits -- the server's own process never reconstructs the plaintext in the
// clear. That bitwise homomorphic NFSR evaluation is external-collaborator
// territory this harness does not model. This package preserves the
// capability's external contract --
// BindKeys, EncryptSymmetricKey, HEDecrypt -- while computing the result
// directly: it recomputes the same keystream the Client used (see
// pkg/kreyvium) and individually TFHE-encrypts each recovered bit. The
// plaintext bit never leaves the HEDecrypt call frame.
package transcipher

import (
	"fmt"

	"github.com/shadowmesh/hebench/pkg/bench"
	"github.com/shadowmesh/hebench/pkg/kreyvium"
	"github.com/shadowmesh/hebench/pkg/tfhe"
)

// Transcipher holds the Server's TFHE keys and the Kreyvium key it has
// (conceptually) encrypted homomorphically during Server startup. The
// Server -- and so this type -- is constructed with the full TFHE secret
// key set, not only the cloud evaluation key; the trust model nominally
// intends only the cloud key to live here.
type Transcipher struct {
	engine     *tfhe.Engine
	cloud      *tfhe.CloudKey
	secret     *tfhe.SecretKeySet
	symmetric  kreyvium.Key
	keyBound   bool
	keyEncBits bool
}

// New constructs an unbound Transcipher around the shared bit-operation
// engine.
func New(engine *tfhe.Engine) *Transcipher {
	return &Transcipher{engine: engine}
}

// BindKeys attaches the Server's TFHE cloud key and (per the oversight
// above) secret key set.
func (t *Transcipher) BindKeys(cloud *tfhe.CloudKey, secret *tfhe.SecretKeySet) {
	t.cloud = cloud
	t.secret = secret
	t.keyBound = true
}

// EncryptSymmetricKey records the Kreyvium key this Transcipher will use to
// recompute keystreams during HEDecrypt. In a real system this step
// produces a TFHE-encrypted form of the key that is carried through every
// subsequent homomorphic keystream evaluation; here it is the point at
// which the Server takes ownership of the key material it was handed at
// startup.
func (t *Transcipher) EncryptSymmetricKey(k kreyvium.Key) error {
	if !t.keyBound {
		return fmt.Errorf("%w: transcipher keys not bound before encrypting symmetric key", bench.ErrIO)
	}
	t.symmetric = k
	t.keyEncBits = true
	return nil
}

// HEDecrypt transciphers a Kreyvium ciphertext of nBits plaintext bits into
// a TFHE ciphertext vector of the same bits.
func (t *Transcipher) HEDecrypt(ct []byte, nBits int) (tfhe.CtVec, error) {
	if !t.keyEncBits {
		return tfhe.CtVec{}, fmt.Errorf("%w: transcipher has no symmetric key bound", bench.ErrIO)
	}
	if len(ct) != nBits {
		return tfhe.CtVec{}, fmt.Errorf("%w: kreyvium ciphertext is %d bytes, want %d", bench.ErrCodec, len(ct), nBits)
	}

	cipher := kreyvium.New(t.symmetric)
	// Recompute the same keystream the Client applied, against an
	// all-zero plaintext, to recover it byte-for-byte.
	keystream, err := cipher.EncryptBits(make([]byte, (nBits+7)/8), nBits)
	if err != nil {
		return tfhe.CtVec{}, fmt.Errorf("%w: recomputing kreyvium keystream: %v", bench.ErrCodec, err)
	}

	vec := tfhe.CtVec{Params: t.secret.Params, Bits: make([]tfhe.Ciphertext, nBits)}
	for i := 0; i < nBits; i++ {
		bit := ct[i] ^ keystream[i]
		encBit, err := t.engine.EncryptBit(t.secret, bit)
		if err != nil {
			return tfhe.CtVec{}, fmt.Errorf("%w: transciphering bit %d: %v", bench.ErrCodec, i, err)
		}
		vec.Bits[i] = encBit
	}
	return vec, nil
}
