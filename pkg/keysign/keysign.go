// Package keysign signs and verifies the key-material manifest KeyGen
// writes, using ML-DSA-87 (Dilithium5) post-quantum signatures. This gives
// the benchmark's key-generation step an integrity attestation independent
// of the Frame format's own length-prefix check: a key file that was
// truncated or edited after generation fails signature verification even
// when its Frame is individually well-formed.
package keysign

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode5"

	"github.com/shadowmesh/hebench/pkg/bench"
)

// Key sizes for ML-DSA-87 (Dilithium5), per circl's mode5 parameter set.
const (
	PublicKeySize  = mode5.PublicKeySize
	PrivateKeySize = mode5.PrivateKeySize
	SignatureSize  = mode5.SignatureSize
)

// Keypair is a generated ML-DSA-87 signing identity for one KeyGen run.
type Keypair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// GenerateKeypair creates a fresh ML-DSA-87 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := mode5.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generating keysign keypair: %v", bench.ErrKeyLoad, err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling keysign public key: %v", bench.ErrKeyLoad, err)
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling keysign private key: %v", bench.ErrKeyLoad, err)
	}
	return &Keypair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

// Sign produces a detached ML-DSA-87 signature of manifest under kp's
// private key.
func Sign(kp *Keypair, manifest []byte) ([]byte, error) {
	if len(kp.PrivateKey) != PrivateKeySize {
		return nil, fmt.Errorf("%w: keysign private key is %d bytes, want %d", bench.ErrKeyLoad, len(kp.PrivateKey), PrivateKeySize)
	}
	var priv mode5.PrivateKey
	if err := priv.UnmarshalBinary(kp.PrivateKey); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling keysign private key: %v", bench.ErrKeyLoad, err)
	}
	sig := make([]byte, SignatureSize)
	mode5.SignTo(&priv, manifest, sig)
	return sig, nil
}

// Verify reports whether sig is a valid ML-DSA-87 signature of manifest
// under publicKey.
func Verify(publicKey, manifest, sig []byte) bool {
	if len(publicKey) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	var pub mode5.PublicKey
	if err := pub.UnmarshalBinary(publicKey); err != nil {
		return false
	}
	return mode5.Verify(&pub, manifest, sig)
}
