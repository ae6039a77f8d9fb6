// Command ttp runs the TTP role: acquire a stream of TFHE ciphertext
// vectors (from the wire or from disk), decrypt each one, and append the
// recovered plaintext bytes to the decrypted-output spool.
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
)

func main() {
	configPath := flag.String("config", "ttp.yaml", "Path to the Parameters YAML file")
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

	logPath := filepath.Join(p.StorageRoot, "logs", "ttp.log")
	logger, err := logging.NewLogger("ttp", logging.INFO, logPath)
	if err != nil {
		log.Fatalf("failed to open logger: %v", err)
	}
	defer logger.Close()

	stamp := perf.Stamp()
	logger.BindRun(stamp, p)
	perfLogger, err := perf.Open(
		roles.PerfTimePath(p.StorageRoot, stamp, p, "ttp"),
		roles.PerfMemPath(p.StorageRoot, stamp, p, "ttp"),
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
	ttp := &roles.TTP{
		Params:  p,
		Root:    p.StorageRoot,
		Locks:   pathlock.New(),
		Queue:   transport,
		Keys:    keystore.New(p.StorageRoot),
		Engine:  engine,
		Codec:   tfhecodec.New(engine),
		Log:     logger,
		Perf:    perfLogger,
		Metrics: metricsSink,
	}

	logger.Infof("starting ttp run %s (batches=%dx%d, int_bits=%d)",
		stamp, p.BatchCount, p.BatchSize, p.IntBits)

	decryptedPath, err := ttp.Run(context.Background(), stamp)
	if err != nil {
		logger.Fatalf("ttp run failed: %v", err)
	}

	logger.Infof("ttp run complete, decrypted spool at %s", decryptedPath)
}
