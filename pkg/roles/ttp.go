package roles

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/shadowmesh/hebench/pkg/logging"
	"github.com/shadowmesh/hebench/pkg/metrics"
	"github.com/shadowmesh/hebench/pkg/params"
	"github.com/shadowmesh/hebench/pkg/pathlock"
	"github.com/shadowmesh/hebench/pkg/perf"
	"github.com/shadowmesh/hebench/pkg/queue"
	"github.com/shadowmesh/hebench/pkg/spool"
	"github.com/shadowmesh/hebench/pkg/tfhe"
	"github.com/shadowmesh/hebench/pkg/tfhecodec"
)

// TTP drives the trusted-third-party state machine: acquire a stream of
// TFHE ciphertext vectors (from the wire or from disk), decrypt each bit,
// and append each batch's recovered plaintext bytes to the decrypted
// output spool.
type TTP struct {
	Params *params.Parameters
	Root   string
	Locks  *pathlock.Registry
	Queue  *queue.Transport
	Keys   keystoreReader
	Engine *tfhe.Engine
	Codec  *tfhecodec.Codec
	Log    *logging.Logger
	Perf   *perf.Logger

	// Metrics is the optional Redis/Postgres sidecar mirror; see
	// Client.Metrics for the no-op-when-nil contract.
	Metrics *metrics.Sink
	RunID   string
}

func (t *TTP) runID(stamp string) string {
	if t.RunID != "" {
		return t.RunID
	}
	return stamp
}

// Run executes the TTP state machine end to end, returning the path of
// the decrypted-byte spool it produced.
func (t *TTP) Run(ctx context.Context, stamp string) (string, error) {
	runID := t.runID(stamp)
	started := time.Now()
	_ = t.Metrics.RunStarted(runID, "ttp", t.Params, started)
	path, err := t.run(ctx, stamp)
	_ = t.Metrics.RunFinished(runID, "ttp", err == nil, time.Since(started))
	return path, err
}

func (t *TTP) run(ctx context.Context, stamp string) (string, error) {
	tfheParams, err := t.Keys.LoadTFHEParams()
	if err != nil {
		return "", fmt.Errorf("ttp: loading tfhe params: %w", err)
	}
	secret, err := t.Keys.LoadTFHESecret(tfheParams)
	if err != nil {
		return "", fmt.Errorf("ttp: loading tfhe secret key: %w", err)
	}

	tfhePath, err := t.acquireTFHESpool(ctx, stamp, tfheParams)
	if err != nil {
		return "", err
	}

	reader := spool.NewTfheReader(tfhePath, t.Locks, t.Codec, tfheParams)
	decryptedPath := decryptedSpoolPath(t.Root, stamp, t.Params)
	writer := spool.NewWriter(decryptedPath, t.Locks)

	for b := 1; b <= t.Params.BatchCount; b++ {
		var batchBuf []byte
		for i := 0; i < t.Params.BatchSize; i++ {
			vec, ok, err := reader.Next()
			if err != nil {
				return "", fmt.Errorf("ttp: reading tfhe frame: %w", err)
			}
			if !ok {
				return "", fmt.Errorf("ttp: tfhe spool exhausted at batch %d item %d", b, i)
			}
			plain, err := t.decrypt(secret, vec)
			if err != nil {
				return "", fmt.Errorf("ttp: decrypting batch %d item %d: %w", b, i, err)
			}
			batchBuf = append(batchBuf, plain...)
		}
		if err := writer.Append(batchBuf); err != nil {
			return "", fmt.Errorf("ttp: appending batch %d to decrypted spool: %w", b, err)
		}
		t.logEvent(fmt.Sprintf("ttp batch %d/%d complete", b, t.Params.BatchCount))
		_ = t.Metrics.BatchComplete(t.runID(stamp), "ttp", b)
	}

	return decryptedPath, nil
}

func (t *TTP) decrypt(secret *tfhe.SecretKeySet, vec tfhe.CtVec) ([]byte, error) {
	bits := make([]byte, len(vec.Bits))
	for i, ct := range vec.Bits {
		bit, err := t.Engine.DecryptBit(secret, ct)
		if err != nil {
			return nil, err
		}
		bits[i] = bit
	}
	return bitsToBytesMSBFirst(bits), nil
}

// acquireTFHESpool implements the TTP READY branch: pull-receive from the
// variant-appropriate endpoint when data is expected on the wire, or
// locate the most recently written TFHE spool on disk otherwise.
func (t *TTP) acquireTFHESpool(ctx context.Context, stamp string, tfheParams *tfhe.ParamSet) (string, error) {
	if t.Params.DataHandling == params.SingleComponent {
		path, err := latestFile(filepath.Join(t.Root, dirTFHE))
		if err != nil {
			return "", fmt.Errorf("ttp: locating latest tfhe spool: %w", err)
		}
		return path, nil
	}

	endpoint := t.endpoint()
	path := encryptedTFHESpoolPath(t.Root, stamp, t.Params)
	writer := spool.NewWriter(path, t.Locks)
	receiver := queue.NewReceiver(endpoint, true)
	receiver.Log = t.Log
	count := t.Params.BatchCount * t.Params.BatchSize

	n, err := receiver.ReceiveAndStore(ctx, writer, count)
	if err != nil {
		return "", fmt.Errorf("ttp: receiving tfhe ciphertexts: %w", err)
	}
	t.logf("received %d tfhe ciphertext vectors", n)
	return path, nil
}

func (t *TTP) endpoint() string {
	if t.Params.Variant == params.HE {
		return t.Params.Endpoints.HEBind
	}
	return t.Params.Endpoints.TFHEBind
}

func (t *TTP) logf(format string, args ...interface{}) {
	if t.Log != nil {
		t.Log.Infof(format, args...)
	}
}

func (t *TTP) logEvent(msg string) {
	if t.Log != nil {
		t.Log.Info(msg)
	}
	if t.Perf != nil {
		if err := t.Perf.Log(msg); err != nil && t.Log != nil {
			t.Log.Warnf("perf log write failed: %v", err)
		}
	}
}
