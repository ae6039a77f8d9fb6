package roles

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shadowmesh/hebench/pkg/keystore"
	"github.com/shadowmesh/hebench/pkg/kreyvium"
	"github.com/shadowmesh/hebench/pkg/params"
	"github.com/shadowmesh/hebench/pkg/pathlock"
	"github.com/shadowmesh/hebench/pkg/queue"
	"github.com/shadowmesh/hebench/pkg/spool"
	"github.com/shadowmesh/hebench/pkg/tfhe"
	"github.com/shadowmesh/hebench/pkg/tfhecodec"
	"github.com/shadowmesh/hebench/pkg/transcipher"
)

func provisionKeys(t *testing.T, root string) *keystore.Store {
	t.Helper()
	store := keystore.New(root)
	engine := tfhe.NewEngine()

	kreyviumKey, err := kreyvium.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if err := store.SaveKreyviumKey(kreyviumKey); err != nil {
		t.Fatalf("SaveKreyviumKey: %v", err)
	}

	tfheParams := tfhe.NewParamSet("roles-test")
	if err := store.SaveTFHEParams(tfheParams); err != nil {
		t.Fatalf("SaveTFHEParams: %v", err)
	}
	sk, err := engine.GenerateSecretKey(tfheParams)
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}
	if err := store.SaveTFHESecret(sk); err != nil {
		t.Fatalf("SaveTFHESecret: %v", err)
	}
	return store
}

func decryptedIntegers(t *testing.T, path string, nBatches, batchSize, intBytes int) [][]byte {
	t.Helper()
	locks := pathlock.New()
	reader := spool.NewReader(path, locks)

	var out [][]byte
	for b := 0; b < nBatches; b++ {
		payload, err := reader.Next()
		if err != nil {
			t.Fatalf("reading decrypted batch %d: %v", b, err)
		}
		if payload == nil {
			t.Fatalf("decrypted spool ended early at batch %d", b)
		}
		if len(payload) != batchSize*intBytes {
			t.Fatalf("batch %d is %d bytes, want %d", b, len(payload), batchSize*intBytes)
		}
		for i := 0; i < batchSize; i++ {
			out = append(out, payload[i*intBytes:(i+1)*intBytes])
		}
	}
	return out
}

// TestHESingleComponentPipeline drives the HE pipeline end to end through
// spool files: the Client
// encrypts directly under TFHE to a spool file, and the TTP reads that
// same file (SINGLE_COMPONENT data handling: the Client still binds its
// endpoint to send SOF, but no ciphertext crosses the network) and
// recovers the original integers.
func TestHESingleComponentPipeline(t *testing.T) {
	root := t.TempDir()
	store := provisionKeys(t, root)
	engine := tfhe.NewEngine()
	codec := tfhecodec.New(engine)
	locks := pathlock.New()
	transport := queue.NewTransport()
	defer transport.Close()

	p := &params.Parameters{
		Variant:      params.HE,
		IntBits:      8,
		BatchSize:    2,
		BatchCount:   2,
		DataHandling: params.SingleComponent,
		StorageRoot:  root,
		Endpoints:    params.Endpoints{HEBind: "ws://127.0.0.1:18754/tfhe"},
	}

	client := &Client{Params: p, Root: root, Locks: locks, Queue: transport, Keys: store, Engine: engine, Codec: codec}
	if err := client.Run("20260101_000000"); err != nil {
		t.Fatalf("client.Run: %v", err)
	}

	ttp := &TTP{Params: p, Root: root, Locks: locks, Queue: transport, Keys: store, Engine: engine, Codec: codec}
	decryptedPath, err := ttp.Run(context.Background(), "20260101_000001")
	if err != nil {
		t.Fatalf("ttp.Run: %v", err)
	}

	ints := decryptedIntegers(t, decryptedPath, p.BatchCount, p.BatchSize, p.IntBytes())
	if len(ints) != p.BatchCount*p.BatchSize {
		t.Fatalf("recovered %d integers, want %d", len(ints), p.BatchCount*p.BatchSize)
	}
}

// TestHHESingleComponentPipeline drives the staged HHE hand-off: Client sends
// SOF on its bound endpoint and writes a
// Kreyvium spool, Server picks it up by latest-file lookup and
// transciphers it to a TFHE spool, and TTP picks that up the same way and
// decrypts every integer.
func TestHHESingleComponentPipeline(t *testing.T) {
	root := t.TempDir()
	store := provisionKeys(t, root)
	engine := tfhe.NewEngine()
	codec := tfhecodec.New(engine)
	locks := pathlock.New()
	transport := queue.NewTransport()
	defer transport.Close()

	p := &params.Parameters{
		Variant:      params.HHE,
		IntBits:      8,
		BatchSize:    2,
		BatchCount:   2,
		DataHandling: params.SingleComponent,
		StorageRoot:  root,
		Endpoints:    params.Endpoints{KreyviumBind: "ws://127.0.0.1:18755/kreyvium"},
	}

	client := &Client{Params: p, Root: root, Locks: locks, Queue: transport, Keys: store, Engine: engine, Codec: codec}
	if err := client.Run("20260101_000000"); err != nil {
		t.Fatalf("client.Run: %v", err)
	}

	tc := transcipher.New(engine)
	server := &Server{Params: p, Root: root, Locks: locks, Queue: transport, Keys: store, Engine: engine, Codec: codec, Transcipher: tc}
	if err := server.Run(context.Background(), "20260101_000001"); err != nil {
		t.Fatalf("server.Run: %v", err)
	}

	ttp := &TTP{Params: p, Root: root, Locks: locks, Queue: transport, Keys: store, Engine: engine, Codec: codec}
	decryptedPath, err := ttp.Run(context.Background(), "20260101_000002")
	if err != nil {
		t.Fatalf("ttp.Run: %v", err)
	}

	ints := decryptedIntegers(t, decryptedPath, p.BatchCount, p.BatchSize, p.IntBytes())
	if len(ints) != p.BatchCount*p.BatchSize {
		t.Fatalf("recovered %d integers, want %d", len(ints), p.BatchCount*p.BatchSize)
	}

	// Recover the Client's original plaintexts directly from its Kreyvium
	// spool and check the TTP's output matches them value for value.
	want := kreyviumPlaintexts(t, store, root, p)
	if len(want) != len(ints) {
		t.Fatalf("kreyvium spool holds %d ciphertexts, decrypted spool %d integers", len(want), len(ints))
	}
	for i := range want {
		if !bytes.Equal(ints[i], want[i]) {
			t.Fatalf("integer %d decrypted to %x, client produced %x", i, ints[i], want[i])
		}
	}
}

// kreyviumPlaintexts reads every frame of the latest Kreyvium spool under
// root and decrypts it with the stored key, reconstructing the plaintext
// integers the Client produced.
func kreyviumPlaintexts(t *testing.T, store *keystore.Store, root string, p *params.Parameters) [][]byte {
	t.Helper()
	key, err := store.LoadKreyviumKey()
	if err != nil {
		t.Fatalf("LoadKreyviumKey: %v", err)
	}
	path, err := latestFile(filepath.Join(root, dirKreyvium))
	if err != nil {
		t.Fatalf("latestFile: %v", err)
	}
	cipher := kreyvium.New(key)
	reader := spool.NewReader(path, pathlock.New())

	var out [][]byte
	for {
		ct, err := reader.Next()
		if err != nil {
			t.Fatalf("reading kreyvium spool: %v", err)
		}
		if ct == nil {
			break
		}
		keystream, err := cipher.EncryptBits(make([]byte, (len(ct)+7)/8), len(ct))
		if err != nil {
			t.Fatalf("recomputing keystream: %v", err)
		}
		plain := make([]byte, len(ct)/8)
		for i := range ct {
			if (ct[i]^keystream[i])&1 == 1 {
				plain[i/8] |= 1 << (7 - i%8)
			}
		}
		out = append(out, plain)
	}
	return out
}

// TestHHEAllAtOnceOverQueue exercises the ALL_AT_ONCE path end to end over
// real queue sockets: Client streams Kreyvium
// ciphertexts to Server, Server transciphers and streams TFHE ciphertexts
// to TTP, and every stage is driven concurrently the way three separate
// role processes would be.
func TestHHEAllAtOnceOverQueue(t *testing.T) {
	root := t.TempDir()
	store := provisionKeys(t, root)
	engine := tfhe.NewEngine()
	codec := tfhecodec.New(engine)
	locks := pathlock.New()
	transport := queue.NewTransport()
	defer transport.Close()

	p := &params.Parameters{
		Variant:      params.HHE,
		IntBits:      8,
		BatchSize:    2,
		BatchCount:   1,
		DataHandling: params.AllAtOnce,
		StorageRoot:  root,
		Endpoints: params.Endpoints{
			KreyviumBind: "ws://127.0.0.1:18752/kreyvium",
			TFHEBind:     "ws://127.0.0.1:18753/tfhe",
		},
	}

	tc := transcipher.New(engine)
	server := &Server{Params: p, Root: root, Locks: locks, Queue: transport, Keys: store, Engine: engine, Codec: codec, Transcipher: tc}
	ttp := &TTP{Params: p, Root: root, Locks: locks, Queue: transport, Keys: store, Engine: engine, Codec: codec}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Run(context.Background(), "20260101_010000") }()

	ttpResult := make(chan string, 1)
	ttpErr := make(chan error, 1)
	go func() {
		path, err := ttp.Run(context.Background(), "20260101_010001")
		ttpResult <- path
		ttpErr <- err
	}()

	// Give the Server and TTP a moment to bind/dial before the Client
	// starts sending; both sides' own retry/bind semantics tolerate the
	// race regardless.
	time.Sleep(50 * time.Millisecond)

	client := &Client{Params: p, Root: root, Locks: locks, Queue: transport, Keys: store, Engine: engine, Codec: codec}
	if err := client.Run("20260101_005900"); err != nil {
		t.Fatalf("client.Run: %v", err)
	}

	if err := <-serverErr; err != nil {
		t.Fatalf("server.Run: %v", err)
	}
	decryptedPath := <-ttpResult
	if err := <-ttpErr; err != nil {
		t.Fatalf("ttp.Run: %v", err)
	}

	ints := decryptedIntegers(t, decryptedPath, p.BatchCount, p.BatchSize, p.IntBytes())
	if len(ints) != p.BatchCount*p.BatchSize {
		t.Fatalf("recovered %d integers, want %d", len(ints), p.BatchCount*p.BatchSize)
	}
}

// TestLatestFileSelectsLexicographicMaximum exercises the stamp-based
// most-recent-file lookup the staged hand-off depends on.
func TestLatestFileSelectsLexicographicMaximum(t *testing.T) {
	dir := t.TempDir()
	locks := pathlock.New()
	names := []string{"20260101_000000_x.bin", "20260103_000000_x.bin", "20260102_235959_x.bin"}
	for _, n := range names {
		w := spool.NewWriter(filepath.Join(dir, n), locks)
		if err := w.Append([]byte("payload")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := latestFile(dir)
	if err != nil {
		t.Fatalf("latestFile: %v", err)
	}
	want := filepath.Join(dir, "20260103_000000_x.bin")
	if got != want {
		t.Fatalf("latestFile = %q, want %q", got, want)
	}
}

func TestStampedNameMatchesSpecFormat(t *testing.T) {
	p := &params.Parameters{Variant: params.HHE, IntBits: 16, BatchSize: 3, BatchCount: 5}
	got := stampedName("20260101_000000", p, "data_kreyvium.bin")
	want := fmt.Sprintf("20260101_000000_HHE_BatchNr:5_BatchSize:3_IntSize:16_data_kreyvium.bin")
	if got != want {
		t.Fatalf("stampedName = %q, want %q", got, want)
	}
}

func TestBitsRoundTrip(t *testing.T) {
	block := []byte{0x5A, 0xA5}
	bits := bitsMSBFirst(block, 16)
	back := bitsToBytesMSBFirst(bits)
	if !bytes.Equal(back, block) {
		t.Fatalf("bit round trip = %x, want %x", back, block)
	}
}
