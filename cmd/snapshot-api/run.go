package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chainops/snapshot-publisher/internal/config"
	"github.com/chainops/snapshot-publisher/internal/export"
	"github.com/chainops/snapshot-publisher/internal/jobs"
	"github.com/chainops/snapshot-publisher/internal/manifest"
	"github.com/chainops/snapshot-publisher/internal/node"
	"github.com/chainops/snapshot-publisher/internal/server"
	"github.com/chainops/snapshot-publisher/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the snapshot publishing service",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.InitLog(zap.NewAtomicLevelAt(zapcore.InfoLevel))
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalf("reading configuration: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			zap.S().Fatalf("validating configuration: %v", err)
		}

		logger = log.InitLog(log.AtomicLevel(cfg.LogLevel))
		defer func() { _ = logger.Sync() }()
		undo = zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Named("main").Info("Starting snapshot API service")
		defer zap.S().Named("main").Info("Snapshot API service stopped")
		zap.S().Named("main").Infof("Using config: %s", cfg)

		// One instance per host: a second one would race the first over the
		// node service and the artifacts.
		lock := flock.New(cfg.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			zap.S().Fatalf("acquiring instance lock %s: %v", cfg.LockPath, err)
		}
		if !locked {
			zap.S().Fatalf("another snapshot-api instance is already running (lock %s)", cfg.LockPath)
		}
		defer func() { _ = lock.Unlock() }()

		tip := node.NewClient(cfg.NodeRPC)
		services := node.NewSystemdManager(cfg.NodeService)
		exporter := export.NewSupervisor(cfg, services)
		builder := manifest.NewBuilder(cfg)
		countArtifacts := func() int { return export.CountArtifacts(cfg.SnapshotsDir) }
		controller := jobs.NewController(tip, exporter, builder, countArtifacts)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Address)
			if err != nil {
				zap.S().Fatalf("creating listener: %s", err)
			}

			srv := server.New(cfg, controller, listener)
			if err := srv.Run(ctx); err != nil {
				zap.S().Fatalf("Error running server: %s", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.MetricsAddress)
			if err != nil {
				zap.S().Fatalf("creating metrics listener: %s", err)
			}

			metricsServer := server.NewMetricServer(cfg.MetricsAddress, listener, countArtifacts)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalf("Error running metrics server: %s", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
