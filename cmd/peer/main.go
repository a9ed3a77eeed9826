// Command peer launches a single participant in the distributed
// mutual-exclusion protocol: it resolves the peer topology, brings up
// the TCP mesh, wires the lock protocol to a logger and metrics
// recorder, then drives the scenario file's Lock/Wait commands for
// its own pid.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/jabolina/lamport-lock/internal/config"
	"github.com/jabolina/lamport-lock/internal/csworker"
	"github.com/jabolina/lamport-lock/internal/scenario"
	"github.com/jabolina/lamport-lock/pkg/dlock/core"
	"github.com/jabolina/lamport-lock/pkg/dlock/logging"
	"github.com/jabolina/lamport-lock/pkg/dlock/metrics"
)

var (
	pid          = kingpin.Flag("pid", "This peer's id, in [0, N).").Required().Int32()
	scenarioPath = kingpin.Flag("scenario", "Path to the scenario file.").Required().ExistingFile()
	logPath      = kingpin.Flag("log-file", "Path to the shared critical-section log.").Default("log.txt").String()
	peerFlags    = kingpin.Flag("peer", "Repeatable pid=host:port topology entry.").Strings()
	topologyPath = kingpin.Flag("topology", "Path to a TOML topology file (alternative to --peer).").String()
	metricsAddr  = kingpin.Flag("metrics-addr", "If set, serve Prometheus metrics on this address.").String()
	debug        = kingpin.Flag("debug", "Enable debug logging.").Bool()
)

func main() {
	kingpin.Parse()
	os.Exit(run())
}

func run() int {
	log := logging.New()
	log.ToggleDebug(*debug)
	log = log.WithField("pid", *pid).(*logging.Logrus)

	topology, err := resolveTopology()
	if err != nil {
		log.Errorf("failed to resolve topology: %v", err)
		return 1
	}
	if *pid < 0 || int(*pid) >= topology.N() {
		log.Errorf("pid %d out of range [0, %d)", *pid, topology.N())
		return 1
	}

	scn, err := scenario.ParseFile(*scenarioPath)
	if err != nil {
		log.Errorf("failed to parse scenario: %v", err)
		return 1
	}
	if scn.N != topology.N() {
		log.Errorf("scenario declares N=%d but topology has %d peers", scn.N, topology.N())
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := core.NewTCPTransport(*pid, topology, log)
	if err != nil {
		log.Errorf("failed to establish transport: %v", err)
		return 1
	}
	defer transport.Close()

	recorder := metrics.New(*pid)
	if *metricsAddr != "" {
		go func() {
			if err := recorder.Serve(ctx, *metricsAddr); err != nil {
				log.Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	protocol := core.NewProtocol(core.Config{
		Self:      *pid,
		N:         int32(topology.N()),
		Transport: transport,
		Log:       log,
		Metrics:   recorder,
	})
	defer protocol.Close()

	driver := &scenario.Driver{
		Pid:    *pid,
		Lock:   protocol,
		Worker: csworker.New(*logPath),
	}

	if err := driver.Run(ctx, scn.ForPid(*pid)); err != nil {
		log.Errorf("scenario failed: %v", err)
		return 1
	}

	log.Infof("scenario complete")
	return 0
}

func resolveTopology() (*config.Topology, error) {
	if *topologyPath != "" {
		return config.LoadFile(*topologyPath)
	}
	return config.FromFlags(*peerFlags)
}
