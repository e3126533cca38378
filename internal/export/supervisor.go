package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chainops/snapshot-publisher/internal/config"
	"github.com/chainops/snapshot-publisher/internal/jobs"
)

const defaultPollInterval = 100 * time.Millisecond

// ServiceManager cycles the node's service around an export.
type ServiceManager interface {
	// Stop stops the service and waits for the stop to take effect.
	Stop(ctx context.Context) error
	// Start asks the service to start without waiting for readiness.
	Start(ctx context.Context) error
}

// Supervisor drives the external export operation. The export binary is
// known to not exit reliably after writing its output, so completion is
// detected by polling for the artifact, and the process group is killed
// unconditionally afterwards.
type Supervisor struct {
	dir          string
	binary       string
	dataDir      string
	runAsUser    string
	serviceName  string
	timeout      time.Duration
	pollInterval time.Duration
	services     ServiceManager
	launcher     Launcher
}

type SupervisorOption func(*Supervisor)

// WithLauncher replaces the os/exec launcher, for tests.
func WithLauncher(l Launcher) SupervisorOption {
	return func(s *Supervisor) { s.launcher = l }
}

// WithPollInterval overrides the artifact poll interval, for tests.
func WithPollInterval(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.pollInterval = d }
}

func NewSupervisor(cfg *config.Config, services ServiceManager, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		dir:          cfg.SnapshotsDir,
		binary:       cfg.NodeBin,
		dataDir:      cfg.NodeDataDir,
		runAsUser:    cfg.NodeUser,
		serviceName:  cfg.NodeService,
		timeout:      cfg.ExportTimeout,
		pollInterval: defaultPollInterval,
		services:     services,
		launcher:     NewLauncher(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export produces the artifact for height, cycling the node service around
// the operation. When the artifact already exists the node is left
// untouched, which makes the whole job safe to retry.
func (s *Supervisor) Export(ctx context.Context, height uint64, log *jobs.LiveLog) (string, error) {
	target := ArtifactPath(s.dir, height)

	if _, err := os.Stat(target); err == nil {
		log.Appendf("snapshot %s already exists, skipping export", filepath.Base(target))
		return target, nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshots dir: %w", err)
	}

	// The export must not race a live node, so the stop is synchronous.
	log.Appendf("stopping service %s", s.serviceName)
	if err := s.services.Stop(ctx); err != nil {
		return "", fmt.Errorf("stopping service %s: %w", s.serviceName, err)
	}
	log.Appendf("service %s stopped", s.serviceName)

	log.Appendf("exporting state to %s", target)
	proc, err := s.launcher.Launch(s.commandSpec(target))
	if err != nil {
		return "", fmt.Errorf("starting export: %w", err)
	}

	found := s.waitForArtifact(target, log)

	log.Append("terminating export process group")
	proc.Terminate()

	if !found {
		return "", &ExportFailedError{Path: target}
	}
	log.Appendf("snapshot %s exported", filepath.Base(target))

	// Restart is best effort. A failure here is for the operator to notice,
	// not a job failure.
	log.Appendf("requesting service %s restart", s.serviceName)
	if err := s.services.Start(ctx); err != nil {
		log.Appendf("service %s restart failed, manual start required: %s", s.serviceName, err)
	}

	return target, nil
}

func (s *Supervisor) commandSpec(target string) CommandSpec {
	if s.runAsUser != "" {
		return CommandSpec{
			Path: "sudo",
			Args: []string{"-u", s.runAsUser, s.binary, "--export-state", target},
			Dir:  s.dataDir,
		}
	}
	return CommandSpec{
		Path: s.binary,
		Args: []string{"--export-state", target},
		Dir:  s.dataDir,
	}
}

// waitForArtifact polls for target on a fixed interval until it appears or
// the timeout elapses. Completion is artifact-based on purpose: the export
// process may never exit, so its lifecycle is not watched at all.
func (s *Supervisor) waitForArtifact(target string, log *jobs.LiveLog) bool {
	deadline := time.Now().Add(s.timeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(target); err == nil {
			return true
		}
		if time.Now().After(deadline) {
			log.Appendf("no artifact after %s, giving up", s.timeout)
			return false
		}
		<-ticker.C
	}
}
