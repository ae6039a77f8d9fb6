// Command server runs the HHE-only Server role: receive Kreyvium
// ciphertexts, transcipher each one into a TFHE ciphertext vector, and
// forward the result toward the TTP, per Parameters.DataHandling.
package main

import (
	"context"
	"flag"
	"log"
	"path/filepath"

	"github.com/shadowmesh/hebench/pkg/keystore"
	"github.com/shadowmesh/hebench/pkg/logging"
	"github.com/shadowmesh/hebench/pkg/metrics"
	"github.com/shadowmesh/hebench/pkg/params"
	"github.com/shadowmesh/hebench/pkg/pathlock"
	"github.com/shadowmesh/hebench/pkg/perf"
	"github.com/shadowmesh/hebench/pkg/queue"
	"github.com/shadowmesh/hebench/pkg/roles"
	"github.com/shadowmesh/hebench/pkg/tfhe"
	"github.com/shadowmesh/hebench/pkg/tfhecodec"
	"github.com/shadowmesh/hebench/pkg/transcipher"
)

func main() {
	configPath := flag.String("config", "server.yaml", "Path to the Parameters YAML file")
	generateConfig := flag.Bool("generate-config", false, "Write a default Parameters file and exit")
	flag.Parse()

	if *generateConfig {
		if err := params.Write(params.Default(), *configPath); err != nil {
			log.Fatalf("failed to generate config: %v", err)
		}
		log.Printf("generated default config: %s", *configPath)
		return
	}

	p, err := params.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load parameters: %v", err)
	}

	logPath := filepath.Join(p.StorageRoot, "logs", "server.log")
	logger, err := logging.NewLogger("server", logging.INFO, logPath)
	if err != nil {
		log.Fatalf("failed to open logger: %v", err)
	}
	defer logger.Close()

	stamp := perf.Stamp()
	logger.BindRun(stamp, p)
	perfLogger, err := perf.Open(
		roles.PerfTimePath(p.StorageRoot, stamp, p, "server"),
		roles.PerfMemPath(p.StorageRoot, stamp, p, "server"),
	)
	if err != nil {
		logger.Fatalf("failed to open perf logger: %v", err)
	}
	defer perfLogger.Close()

	metricsSink, err := metrics.NewSink(p.Metrics)
	if err != nil {
		logger.Fatalf("failed to open metrics sink: %v", err)
	}
	defer metricsSink.Close()

	transport := queue.NewTransport()
	transport.Log = logger

	engine := tfhe.NewEngine()
	server := &roles.Server{
		Params:      p,
		Root:        p.StorageRoot,
		Locks:       pathlock.New(),
		Queue:       transport,
		Keys:        keystore.New(p.StorageRoot),
		Engine:      engine,
		Codec:       tfhecodec.New(engine),
		Transcipher: transcipher.New(engine),
		Log:         logger,
		Perf:        perfLogger,
		Metrics:     metricsSink,
	}

	logger.Infof("starting server run %s (batches=%dx%d, int_bits=%d)",
		stamp, p.BatchCount, p.BatchSize, p.IntBits)

	if err := server.Run(context.Background(), stamp); err != nil {
		logger.Fatalf("server run failed: %v", err)
	}

	logger.Info("server run complete")
}
