// Package keystore provides blocking load/save of the three key material
// blobs this harness's roles share: the Kreyvium secret key, the TFHE
// parameter set, and the TFHE secret key set. Every blob is wrapped in the
// same length-prefixed Frame format used everywhere else in this harness
// (pkg/framing) -- a fixed-width, big-endian length rather than a
// native-endian size_t -- so a key file produced on one platform loads
// correctly on any other.
//
// Keys here are benchmark fixtures, not end-user secrets: the blobs are
// stored as plain bytes, with no passphrase or key-derivation wrapping. A
// 0600 file mode still keeps them out of reach of other local users.
//
// A Store also holds the optional ML-DSA-87 manifest signature cmd/keygen
// writes over the three blobs (see pkg/keysign and Manifest), letting
// cmd/keygen's inspect subcommand detect key material edited or truncated
// after generation.
package keystore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/shadowmesh/hebench/pkg/bench"
	"github.com/shadowmesh/hebench/pkg/framing"
	"github.com/shadowmesh/hebench/pkg/kreyvium"
	"github.com/shadowmesh/hebench/pkg/tfhe"
)

const (
	kreyviumKeyFile = "key_kreyvium.bin"
	tfheParamsFile  = "params_tfhe.bin"
	tfheSecretFile  = "sk_tfhe.bin"
	manifestPubFile = "manifest.pub"
	manifestSigFile = "manifest.sig"
	metadataFile    = "metadata.yaml"
)

// Store loads and saves key material under a single storage root, rooted
// at <root>/storage_keys.
type Store struct {
	root string
}

// New returns a Store rooted at storageRoot (e.g. Parameters.StorageRoot).
func New(storageRoot string) *Store {
	return &Store{root: filepath.Join(storageRoot, "storage_keys")}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, name)
}

// SaveKreyviumKey writes k as a single Frame to storage_keys/key_kreyvium.bin.
func (s *Store) SaveKreyviumKey(k kreyvium.Key) error {
	return s.saveBlob(kreyviumKeyFile, k[:])
}

// LoadKreyviumKey reads storage_keys/key_kreyvium.bin back into a Key.
func (s *Store) LoadKreyviumKey() (kreyvium.Key, error) {
	var k kreyvium.Key
	blob, err := s.loadBlob(kreyviumKeyFile)
	if err != nil {
		return k, err
	}
	if len(blob) != kreyvium.KeySize {
		return k, fmt.Errorf("%w: kreyvium key blob is %d bytes, want %d", bench.ErrKeyLoad, len(blob), kreyvium.KeySize)
	}
	copy(k[:], blob)
	return k, nil
}

// SaveTFHEParams writes params' exported form to storage_keys/params_tfhe.bin.
func (s *Store) SaveTFHEParams(params *tfhe.ParamSet) error {
	return s.saveBlob(tfheParamsFile, params.Export())
}

// LoadTFHEParams reads storage_keys/params_tfhe.bin back into a ParamSet.
func (s *Store) LoadTFHEParams() (*tfhe.ParamSet, error) {
	blob, err := s.loadBlob(tfheParamsFile)
	if err != nil {
		return nil, err
	}
	params, err := tfhe.ImportParamSet(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bench.ErrKeyLoad, err)
	}
	return params, nil
}

// SaveTFHESecret writes sk's exported form to storage_keys/sk_tfhe.bin.
func (s *Store) SaveTFHESecret(sk *tfhe.SecretKeySet) error {
	return s.saveBlob(tfheSecretFile, sk.ExportSecret())
}

// LoadTFHESecret reads storage_keys/sk_tfhe.bin back into a SecretKeySet
// bound to params.
//
// The Server loads this same full secret key set rather than only the
// derived cloud key; callers decide which key each role actually needs.
func (s *Store) LoadTFHESecret(params *tfhe.ParamSet) (*tfhe.SecretKeySet, error) {
	blob, err := s.loadBlob(tfheSecretFile)
	if err != nil {
		return nil, err
	}
	sk, err := tfhe.ImportSecretKey(params, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bench.ErrKeyLoad, err)
	}
	return sk, nil
}

// Manifest builds the fixed-order, length-prefixed concatenation of the
// three key blobs that KeyGen's ML-DSA-87 signature (see pkg/keysign)
// covers: the Kreyvium key, the TFHE parameter export, and the TFHE secret
// export, in that order. Both cmd/keygen's generate subcommand (signing)
// and its inspect subcommand (verifying) call this so the two sides never
// drift.
func (s *Store) Manifest() ([]byte, error) {
	var buf bytes.Buffer
	for _, name := range []string{kreyviumKeyFile, tfheParamsFile, tfheSecretFile} {
		blob, err := s.loadBlob(name)
		if err != nil {
			return nil, fmt.Errorf("building key manifest: %w", err)
		}
		if err := framing.WriteFrame(&buf, blob); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// SaveManifestSignature stores the ML-DSA-87 public key and detached
// signature KeyGen produced over Manifest().
func (s *Store) SaveManifestSignature(publicKey, sig []byte) error {
	if err := s.saveBlob(manifestPubFile, publicKey); err != nil {
		return err
	}
	return s.saveBlob(manifestSigFile, sig)
}

// LoadManifestSignature reads back the public key and signature
// SaveManifestSignature stored.
func (s *Store) LoadManifestSignature() (publicKey, sig []byte, err error) {
	publicKey, err = s.loadBlob(manifestPubFile)
	if err != nil {
		return nil, nil, err
	}
	sig, err = s.loadBlob(manifestSigFile)
	if err != nil {
		return nil, nil, err
	}
	return publicKey, sig, nil
}

// Metadata is the human-readable sidecar cmd/keygen writes next to the
// key blobs: which parameter set the material belongs to and when it was
// generated. It is informational only -- the ML-DSA-87 manifest signature,
// not this file, is what attests to the blobs' integrity.
type Metadata struct {
	ParamSetID      string `yaml:"param_set_id"`
	GeneratedAt     string `yaml:"generated_at"`
	KreyviumKeyBits int    `yaml:"kreyvium_key_bits"`
	CiphertextBytes int    `yaml:"tfhe_ciphertext_bytes"`
}

// SaveMetadata writes md as storage_keys/metadata.yaml.
func (s *Store) SaveMetadata(md Metadata) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: creating key store directory: %v", bench.ErrIO, err)
	}
	data, err := yaml.Marshal(md)
	if err != nil {
		return fmt.Errorf("%w: marshaling key metadata: %v", bench.ErrIO, err)
	}
	if err := os.WriteFile(s.path(metadataFile), data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %q: %v", bench.ErrIO, metadataFile, err)
	}
	return nil
}

// LoadMetadata reads storage_keys/metadata.yaml back.
func (s *Store) LoadMetadata() (Metadata, error) {
	var md Metadata
	data, err := os.ReadFile(s.path(metadataFile))
	if err != nil {
		return md, fmt.Errorf("%w: opening %q: %v", bench.ErrKeyLoad, metadataFile, err)
	}
	if err := yaml.Unmarshal(data, &md); err != nil {
		return md, fmt.Errorf("%w: parsing %q: %v", bench.ErrKeyLoad, metadataFile, err)
	}
	return md, nil
}

func (s *Store) saveBlob(name string, blob []byte) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: creating key store directory: %v", bench.ErrIO, err)
	}

	f, err := os.OpenFile(s.path(name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: opening %q for write: %v", bench.ErrIO, name, err)
	}
	defer f.Close()

	if err := framing.WriteFrame(f, blob); err != nil {
		return err
	}
	return nil
}

func (s *Store) loadBlob(name string) ([]byte, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("%w: opening %q: %v", bench.ErrKeyLoad, name, err)
	}
	defer f.Close()

	blob, err := framing.ReadFrame(f)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", bench.ErrKeyLoad, name, err)
	}
	if blob == nil {
		return nil, fmt.Errorf("%w: %q is empty", bench.ErrKeyLoad, name)
	}
	return blob, nil
}
