package roles

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
	"time"

	"github.com/shadowmesh/hebench/pkg/kreyvium"
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

// Client drives the client-side state machine: load a key, send SOF, run
// batches of produce/encrypt/drain, then finalize with EOF.
type Client struct {
	Params *params.Parameters
	Root   string
	Locks  *pathlock.Registry
	Queue  *queue.Transport
	Keys   keystoreReader
	Engine *tfhe.Engine
	Codec  *tfhecodec.Codec
	Log    *logging.Logger
	Perf   *perf.Logger

	// Metrics is the optional Redis/Postgres sidecar mirror. A nil
	// Metrics, or a Sink constructed from a disabled MetricsConfig, makes
	// every hook below a no-op.
	Metrics *metrics.Sink
	RunID   string
}

// keystoreReader is the subset of *keystore.Store the Client needs,
// narrowed so tests can substitute an in-memory fake.
type keystoreReader interface {
	LoadKreyviumKey() (kreyvium.Key, error)
	LoadTFHEParams() (*tfhe.ParamSet, error)
	LoadTFHESecret(*tfhe.ParamSet) (*tfhe.SecretKeySet, error)
}

// Run executes the Client state machine end to end for the stamp
// identifying this run's spool/log files.
func (c *Client) Run(stamp string) error {
	runID := c.runID(stamp)
	started := time.Now()
	_ = c.Metrics.RunStarted(runID, "client", c.Params, started)

	var err error
	switch c.Params.Variant {
	case params.HHE:
		err = c.runHHE(stamp)
	case params.HE:
		err = c.runHE(stamp)
	default:
		err = fmt.Errorf("client: unknown variant %q", c.Params.Variant)
	}

	_ = c.Metrics.RunFinished(runID, "client", err == nil, time.Since(started))
	return err
}

func (c *Client) runID(stamp string) string {
	if c.RunID != "" {
		return c.RunID
	}
	return stamp
}

func (c *Client) runHHE(stamp string) error {
	key, err := c.Keys.LoadKreyviumKey()
	if err != nil {
		return fmt.Errorf("client: loading kreyvium key: %w", err)
	}
	cipher := kreyvium.New(key)
	endpoint := c.Params.Endpoints.KreyviumBind
	spoolPath := kreyviumSpoolPath(c.Root, stamp, c.Params)

	if err := c.Queue.SendSOF(endpoint); err != nil {
		return fmt.Errorf("client: sending SOF: %w", err)
	}
	c.logf("sent SOF on %s", endpoint)

	if c.Params.DataHandling == params.TransmitKreyvium || c.Params.DataHandling == params.TransmitTFHE {
		return c.retransmitLatest(dirKreyvium, endpoint)
	}

	writer := spool.NewWriter(spoolPath, c.Locks)
	for b := 1; b <= c.Params.BatchCount; b++ {
		batch := make([][]byte, 0, c.Params.BatchSize)
		for i := 0; i < c.Params.BatchSize; i++ {
			block, err := randomIntegerBlock(c.Params.IntBytes())
			if err != nil {
				return fmt.Errorf("client: producing integer block: %w", err)
			}
			ct, err := cipher.EncryptBits(block, c.Params.IntBits)
			if err != nil {
				return fmt.Errorf("client: encrypting batch %d item %d: %w", b, i, err)
			}
			batch = append(batch, ct)
		}
		if err := c.drainBytes(batch, endpoint, writer); err != nil {
			return fmt.Errorf("client: draining batch %d: %w", b, err)
		}
		c.logEvent(fmt.Sprintf("client batch %d/%d complete", b, c.Params.BatchCount))
		_ = c.Metrics.BatchComplete(c.runID(stamp), "client", b)
	}

	return c.finalize(endpoint)
}

func (c *Client) runHE(stamp string) error {
	tfheParams, err := c.Keys.LoadTFHEParams()
	if err != nil {
		return fmt.Errorf("client: loading tfhe params: %w", err)
	}
	sk, err := c.Keys.LoadTFHESecret(tfheParams)
	if err != nil {
		return fmt.Errorf("client: loading tfhe secret key: %w", err)
	}
	endpoint := c.Params.Endpoints.HEBind
	spoolPath := tfheSpoolPath(c.Root, stamp, c.Params)

	if err := c.Queue.SendSOF(endpoint); err != nil {
		return fmt.Errorf("client: sending SOF: %w", err)
	}
	c.logf("sent SOF on %s", endpoint)

	if c.Params.DataHandling == params.TransmitTFHE {
		return c.retransmitLatest(dirTFHE, endpoint)
	}

	writer := spool.NewTfheWriter(spoolPath, c.Locks, c.Codec)
	for b := 1; b <= c.Params.BatchCount; b++ {
		batch := make([]tfhe.CtVec, 0, c.Params.BatchSize)
		for i := 0; i < c.Params.BatchSize; i++ {
			block, err := randomIntegerBlock(c.Params.IntBytes())
			if err != nil {
				return fmt.Errorf("client: producing integer block: %w", err)
			}
			ct, err := c.encryptTFHE(sk, block)
			if err != nil {
				return fmt.Errorf("client: encrypting batch %d item %d: %w", b, i, err)
			}
			batch = append(batch, ct)
		}
		if err := c.drainTFHE(batch, endpoint, writer); err != nil {
			return fmt.Errorf("client: draining batch %d: %w", b, err)
		}
		c.logEvent(fmt.Sprintf("client batch %d/%d complete", b, c.Params.BatchCount))
		_ = c.Metrics.BatchComplete(c.runID(stamp), "client", b)
	}

	return c.finalize(endpoint)
}

func (c *Client) encryptTFHE(sk *tfhe.SecretKeySet, block []byte) (tfhe.CtVec, error) {
	bits := bitsMSBFirst(block, c.Params.IntBits)
	vec := tfhe.CtVec{Params: sk.Params, Bits: make([]tfhe.Ciphertext, len(bits))}
	for i, bit := range bits {
		ct, err := c.Engine.EncryptBit(sk, bit)
		if err != nil {
			return tfhe.CtVec{}, err
		}
		vec.Bits[i] = ct
	}
	return vec, nil
}

// drainBytes dispatches a completed batch of byte ciphertexts:
// ALL_AT_ONCE sends each one over the queue, SINGLE_COMPONENT appends
// each one to the byte spool.
func (c *Client) drainBytes(batch [][]byte, endpoint string, writer *spool.Writer) error {
	switch c.Params.DataHandling {
	case params.AllAtOnce:
		for _, ct := range batch {
			if err := c.Queue.Send(endpoint, ct); err != nil {
				return err
			}
		}
	case params.SingleComponent:
		for _, ct := range batch {
			if err := writer.Append(ct); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unexpected data_handling %q in main loop", c.Params.DataHandling)
	}
	return nil
}

func (c *Client) drainTFHE(batch []tfhe.CtVec, endpoint string, writer *spool.TfheWriter) error {
	switch c.Params.DataHandling {
	case params.AllAtOnce:
		for _, v := range batch {
			encoded, err := c.Codec.Encode(v)
			if err != nil {
				return err
			}
			if err := c.Queue.Send(endpoint, encoded); err != nil {
				return err
			}
		}
	case params.SingleComponent:
		for _, v := range batch {
			if err := writer.Append(v); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unexpected data_handling %q in main loop", c.Params.DataHandling)
	}
	return nil
}

// retransmitLatest implements the TRANSMIT_KREYVIUM/TRANSMIT_TFHE modes:
// the main loop is skipped, and the most recently written spool file for
// dir is re-sent frame by frame through the queue, followed by EOF.
func (c *Client) retransmitLatest(dir, endpoint string) error {
	path, err := latestFile(filepath.Join(c.Root, dir))
	if err != nil {
		return fmt.Errorf("locating latest %s spool: %w", dir, err)
	}
	reader := spool.NewReader(path, c.Locks)
	for {
		payload, err := reader.Next()
		if err != nil {
			return err
		}
		if payload == nil {
			break
		}
		if err := c.Queue.Send(endpoint, payload); err != nil {
			return err
		}
	}
	return c.finalize(endpoint)
}

func (c *Client) finalize(endpoint string) error {
	if c.Params.DataHandling != params.SingleComponent {
		if err := c.Queue.SendEOF(endpoint); err != nil {
			return fmt.Errorf("client: sending EOF: %w", err)
		}
		c.logf("sent EOF on %s", endpoint)
	}
	return nil
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.Log != nil {
		c.Log.Infof(format, args...)
	}
}

func (c *Client) logEvent(msg string) {
	if c.Log != nil {
		c.Log.Info(msg)
	}
	if c.Perf != nil {
		if err := c.Perf.Log(msg); err != nil && c.Log != nil {
			c.Log.Warnf("perf log write failed: %v", err)
		}
	}
}

func randomIntegerBlock(nBytes int) ([]byte, error) {
	block := make([]byte, nBytes)
	if _, err := rand.Read(block); err != nil {
		return nil, err
	}
	return block, nil
}
