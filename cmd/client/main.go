// Command client runs the Client role of an HE or HHE benchmark: produce
// random integer blocks, encrypt each one under the configured variant,
// and drain the resulting ciphertexts per Parameters.DataHandling. The
// binary takes only the -config flag locating its Parameters file and the
// -generate-config bootstrap flag; all per-run shape comes from that file.
package main

import (
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
	configPath := flag.String("config", "client.yaml", "Path to the Parameters YAML file")
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

	logPath := filepath.Join(p.StorageRoot, "logs", "client.log")
	logger, err := logging.NewLogger("client", logging.INFO, logPath)
	if err != nil {
		log.Fatalf("failed to open logger: %v", err)
	}
	defer logger.Close()

	stamp := perf.Stamp()
	logger.BindRun(stamp, p)
	perfLogger, err := perf.Open(
		roles.PerfTimePath(p.StorageRoot, stamp, p, "client"),
		roles.PerfMemPath(p.StorageRoot, stamp, p, "client"),
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

	client := &roles.Client{
		Params:  p,
		Root:    p.StorageRoot,
		Locks:   pathlock.New(),
		Queue:   transport,
		Keys:    keystore.New(p.StorageRoot),
		Engine:  tfhe.NewEngine(),
		Codec:   tfhecodec.New(tfhe.NewEngine()),
		Log:     logger,
		Perf:    perfLogger,
		Metrics: metricsSink,
	}

	logger.Infof("starting client run %s (variant=%s, batches=%dx%d, int_bits=%d)",
		stamp, p.Variant, p.BatchCount, p.BatchSize, p.IntBits)

	if err := client.Run(stamp); err != nil {
		logger.Fatalf("client run failed: %v", err)
	}

	logger.Info("client run complete")
}
