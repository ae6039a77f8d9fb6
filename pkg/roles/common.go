// Package roles implements the three batch state machines -- Client,
// Server, and TTP -- that drive integer batches through the HE or HHE
// pipeline. Each role is constructed with its crypto collaborators -- a
// Kreyvium cipher, a TFHE engine, a transcipher -- plus the data-plane
// primitives (pkg/queue, pkg/spool, pkg/pathlock, pkg/keystore) this
// repository's core actually implements.
package roles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/shadowmesh/hebench/pkg/params"
)

const stampLen = len("20060102_150405")

// The four spool directories every run shares, each rooted at
// Parameters.StorageRoot.
const (
	dirKreyvium      = "data_kreyvium"
	dirTFHE          = "data_tfhe"
	dirEncryptedTFHE = "data_encrypted_tfhe"
	dirDecrypted     = "data_decrypted"
)

// stampedName builds the "<stamp>_<variant>_BatchNr:<N>_BatchSize:<S>_
// IntSize:<B>_<suffix>" filename every data and log file of a run carries.
func stampedName(stamp string, p *params.Parameters, suffix string) string {
	return fmt.Sprintf("%s_%s_BatchNr:%d_BatchSize:%d_IntSize:%d_%s",
		stamp, p.Variant, p.BatchCount, p.BatchSize, p.IntBits, suffix)
}

func kreyviumSpoolPath(root, stamp string, p *params.Parameters) string {
	return filepath.Join(root, dirKreyvium, stampedName(stamp, p, "data_kreyvium.bin"))
}

func tfheSpoolPath(root, stamp string, p *params.Parameters) string {
	return filepath.Join(root, dirTFHE, stampedName(stamp, p, "data_tfhe.bin"))
}

func encryptedTFHESpoolPath(root, stamp string, p *params.Parameters) string {
	return filepath.Join(root, dirEncryptedTFHE, stampedName(stamp, p, "data_tfhe.bin"))
}

func decryptedSpoolPath(root, stamp string, p *params.Parameters) string {
	return filepath.Join(root, dirDecrypted, stampedName(stamp, p, "data_decrypted.bin"))
}

const (
	dirPerfTime = "Performance_Measurement/data_time"
	dirPerfMem  = "Performance_Measurement/data_memory"
)

// PerfTimePath and PerfMemPath build the stamped PerfLogger file pair each
// cmd/ main opens for the role it runs.
func PerfTimePath(root, stamp string, p *params.Parameters, role string) string {
	return filepath.Join(root, dirPerfTime, stampedName(stamp, p, role+".txt"))
}

func PerfMemPath(root, stamp string, p *params.Parameters, role string) string {
	return filepath.Join(root, dirPerfMem, stampedName(stamp, p, role+".txt"))
}

// latestFile returns the path of the file in dir whose name's leading
// 15-character YYYYMMDD_HHMMSS stamp is lexicographically greatest, which
// is how a role picks up a peer's most recent spool.
func latestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || len(e.Name()) < stampLen {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no stamped files found in %q", dir)
	}

	sort.Slice(names, func(i, j int) bool {
		return names[i][:stampLen] < names[j][:stampLen]
	})
	return filepath.Join(dir, names[len(names)-1]), nil
}

// bitsMSBFirst expands the low nBits bits of block into one byte per bit
// (0 or 1), most-significant-bit first within each source byte -- the same
// bit order pkg/kreyvium.StreamCipher.EncryptBits uses, so the HE pipeline
// and the HHE pipeline agree on how an IntegerBlock maps onto a bit
// sequence.
func bitsMSBFirst(block []byte, nBits int) []byte {
	bits := make([]byte, nBits)
	for i := 0; i < nBits; i++ {
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		bits[i] = (block[byteIdx] >> bitIdx) & 1
	}
	return bits
}

// bitsToBytesMSBFirst is bitsMSBFirst's inverse: it packs one bit per
// element of bits (MSB first within each output byte) back into a byte
// slice of (len(bits)+7)/8 bytes.
func bitsToBytesMSBFirst(bits []byte) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit&1 == 0 {
			continue
		}
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		out[byteIdx] |= 1 << bitIdx
	}
	return out
}
