// Package kreyvium defines the capability surface this harness needs from
// the Kreyvium stream cipher, and a concrete adapter that satisfies it.
//
// The internal NFSR mathematics of Kreyvium are external-collaborator
// territory this harness does not model: the role state machines only
// need "turn a key and a
// bit count into a ciphertext that looks like a bitwise stream cipher's
// output, one byte per plaintext bit." The adapter here produces that
// shape using golang.org/x/crypto/chacha20 as the keystream generator, the
// same stream-cipher primitive the rest of this codebase's crypto
// collaborators are built on.
package kreyvium

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/chacha20"

	"github.com/shadowmesh/hebench/pkg/bench"
)

// KeySize is the width of a Kreyvium key in bytes (128 bits).
const KeySize = 16

// Key is an opaque Kreyvium secret key, exclusively owned by whichever role
// loaded it (Client in both pipelines, Server additionally in the HHE
// pipeline).
type Key [KeySize]byte

// GenerateKey produces a fresh random key, for use by the key-generation
// tool.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("%w: generating kreyvium key: %v", bench.ErrIO, err)
	}
	return k, nil
}

// Cipher is the capability a Client needs to turn a plaintext integer block
// into a Kreyvium ciphertext.
type Cipher interface {
	// EncryptBits encrypts the low nBits bits of plaintext (MSB-first within
	// each byte) and returns one ciphertext byte per plaintext bit.
	EncryptBits(plaintext []byte, nBits int) ([]byte, error)
}

// StreamCipher is the concrete adapter: a chacha20 keystream standing in for
// Kreyvium's bitwise NFSR keystream. Each output bit is still XORed with one
// keystream byte, preserving the wire shape (ciphertext length =
// plaintext bit count, one byte per encrypted bit); only the internal
// keystream-generation algorithm differs from the real cipher.
type StreamCipher struct {
	key Key
}

// New returns a StreamCipher bound to key.
func New(key Key) *StreamCipher {
	return &StreamCipher{key: key}
}

// EncryptBits implements Cipher.
func (c *StreamCipher) EncryptBits(plaintext []byte, nBits int) ([]byte, error) {
	if nBits <= 0 || nBits > len(plaintext)*8 {
		return nil, fmt.Errorf("invalid bit count %d for %d-byte plaintext", nBits, len(plaintext))
	}

	// chacha20 takes a 256-bit key; the 128-bit Kreyvium key is stretched
	// to that width with SHA-256.
	streamKey := sha256.Sum256(c.key[:])
	var nonce [chacha20.NonceSize]byte // zero nonce: fresh cipher instance per call
	stream, err := chacha20.NewUnauthenticatedCipher(streamKey[:], nonce[:])
	if err != nil {
		return nil, fmt.Errorf("%w: constructing kreyvium keystream: %v", bench.ErrIO, err)
	}

	keystream := make([]byte, nBits)
	stream.XORKeyStream(keystream, keystream)

	ct := make([]byte, nBits)
	for i := 0; i < nBits; i++ {
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		bit := (plaintext[byteIdx] >> bitIdx) & 1
		ct[i] = keystream[i] ^ bit
	}
	return ct, nil
}
