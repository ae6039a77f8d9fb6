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
	"github.com/shadowmesh/hebench/pkg/transcipher"
)

// Server drives the HHE-only Server state machine: it
// loads the TFHE keys and the Kreyvium key, binds them into a transcipher,
// then reads Kreyvium frames (from the wire or from disk) and transciphers
// each one into a TFHE ciphertext vector forwarded toward the TTP.
type Server struct {
	Params      *params.Parameters
	Root        string
	Locks       *pathlock.Registry
	Queue       *queue.Transport
	Keys        keystoreReader
	Engine      *tfhe.Engine
	Codec       *tfhecodec.Codec
	Transcipher *transcipher.Transcipher
	Log         *logging.Logger
	Perf        *perf.Logger

	// Metrics is the optional Redis/Postgres sidecar mirror; see
	// Client.Metrics for the no-op-when-nil contract.
	Metrics *metrics.Sink
	RunID   string
}

func (s *Server) runID(stamp string) string {
	if s.RunID != "" {
		return s.RunID
	}
	return stamp
}

// Run executes the Server state machine end to end.
func (s *Server) Run(ctx context.Context, stamp string) error {
	if s.Params.Variant != params.HHE {
		return fmt.Errorf("server: variant %q has no Server role", s.Params.Variant)
	}

	runID := s.runID(stamp)
	started := time.Now()
	_ = s.Metrics.RunStarted(runID, "server", s.Params, started)
	err := s.run(ctx, stamp)
	_ = s.Metrics.RunFinished(runID, "server", err == nil, time.Since(started))
	return err
}

func (s *Server) run(ctx context.Context, stamp string) error {
	tfheParams, err := s.Keys.LoadTFHEParams()
	if err != nil {
		return fmt.Errorf("server: loading tfhe params: %w", err)
	}
	secret, err := s.Keys.LoadTFHESecret(tfheParams)
	if err != nil {
		return fmt.Errorf("server: loading tfhe secret key: %w", err)
	}
	cloud, err := s.Engine.DeriveCloudKey(secret)
	if err != nil {
		return fmt.Errorf("server: deriving cloud key: %w", err)
	}
	kreyviumKey, err := s.Keys.LoadKreyviumKey()
	if err != nil {
		return fmt.Errorf("server: loading kreyvium key: %w", err)
	}

	s.Transcipher.BindKeys(cloud, secret)
	if err := s.Transcipher.EncryptSymmetricKey(kreyviumKey); err != nil {
		return fmt.Errorf("server: encrypting symmetric key into transcipher: %w", err)
	}

	kreyviumPath, err := s.acquireKreyviumSpool(ctx, stamp)
	if err != nil {
		return err
	}

	reader := spool.NewReader(kreyviumPath, s.Locks)
	writer := spool.NewTfheWriter(tfheSpoolPath(s.Root, stamp, s.Params), s.Locks, s.Codec)
	ttpEndpoint := s.Params.Endpoints.TFHEBind

	for b := 1; b <= s.Params.BatchCount; b++ {
		batch := make([]tfhe.CtVec, 0, s.Params.BatchSize)
		for i := 0; i < s.Params.BatchSize; i++ {
			frame, err := reader.Next()
			if err != nil {
				return fmt.Errorf("server: reading kreyvium frame: %w", err)
			}
			if frame == nil {
				return fmt.Errorf("server: kreyvium spool exhausted at batch %d item %d", b, i)
			}
			ct, err := s.Transcipher.HEDecrypt(frame, len(frame))
			if err != nil {
				return fmt.Errorf("server: transciphering batch %d item %d: %w", b, i, err)
			}
			batch = append(batch, ct)
		}
		if err := s.drain(batch, ttpEndpoint, writer); err != nil {
			return fmt.Errorf("server: draining batch %d: %w", b, err)
		}
		s.logEvent(fmt.Sprintf("server batch %d/%d complete", b, s.Params.BatchCount))
		_ = s.Metrics.BatchComplete(s.runID(stamp), "server", b)
	}

	if s.Params.DataHandling != params.SingleComponent {
		if err := s.Queue.SendEOF(ttpEndpoint); err != nil {
			return fmt.Errorf("server: sending EOF to ttp: %w", err)
		}
		s.logf("sent EOF on %s", ttpEndpoint)
	}
	return nil
}

// acquireKreyviumSpool implements the Server READY branch: pull-receive
// from the Client when the data is expected on the wire, or locate the
// most recently written Kreyvium spool on disk otherwise.
func (s *Server) acquireKreyviumSpool(ctx context.Context, stamp string) (string, error) {
	switch s.Params.DataHandling {
	case params.AllAtOnce, params.TransmitKreyvium:
		path := kreyviumSpoolPath(s.Root, stamp, s.Params)
		writer := spool.NewWriter(path, s.Locks)
		receiver := queue.NewReceiver(s.Params.Endpoints.KreyviumBind, true)
		receiver.Log = s.Log
		count := s.Params.BatchCount * s.Params.BatchSize
		n, err := receiver.ReceiveAndStore(ctx, writer, count)
		if err != nil {
			return "", fmt.Errorf("server: receiving kreyvium ciphertexts: %w", err)
		}
		s.logf("received %d kreyvium ciphertexts from client", n)
		return path, nil
	default:
		path, err := latestFile(filepath.Join(s.Root, dirKreyvium))
		if err != nil {
			return "", fmt.Errorf("server: locating latest kreyvium spool: %w", err)
		}
		return path, nil
	}
}

// drain dispatches a completed batch of TFHE ciphertext vectors: append
// each to the server-side TFHE spool for SINGLE_COMPONENT runs, or forward
// each to the TTP over the queue otherwise.
func (s *Server) drain(batch []tfhe.CtVec, ttpEndpoint string, writer *spool.TfheWriter) error {
	if s.Params.DataHandling == params.SingleComponent {
		for _, v := range batch {
			if err := writer.Append(v); err != nil {
				return err
			}
		}
		return nil
	}

	for _, v := range batch {
		encoded, err := s.Codec.Encode(v)
		if err != nil {
			return err
		}
		if err := s.Queue.Send(ttpEndpoint, encoded); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.Log != nil {
		s.Log.Infof(format, args...)
	}
}

func (s *Server) logEvent(msg string) {
	if s.Log != nil {
		s.Log.Info(msg)
	}
	if s.Perf != nil {
		if err := s.Perf.Log(msg); err != nil && s.Log != nil {
			s.Log.Warnf("perf log write failed: %v", err)
		}
	}
}
