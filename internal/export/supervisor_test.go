package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainops/snapshot-publisher/internal/config"
	"github.com/chainops/snapshot-publisher/internal/jobs"
)

type stubProcess struct {
	mu         sync.Mutex
	terminated bool
}

func (p *stubProcess) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = true
}

func (p *stubProcess) wasTerminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

type stubLauncher struct {
	mu       sync.Mutex
	specs    []CommandSpec
	err      error
	onLaunch func(spec CommandSpec)
	proc     *stubProcess
}

func (l *stubLauncher) Launch(spec CommandSpec) (Process, error) {
	l.mu.Lock()
	l.specs = append(l.specs, spec)
	l.mu.Unlock()

	if l.err != nil {
		return nil, l.err
	}
	if l.onLaunch != nil {
		l.onLaunch(spec)
	}
	l.proc = &stubProcess{}
	return l.proc, nil
}

func (l *stubLauncher) launched() []CommandSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CommandSpec(nil), l.specs...)
}

type stubServices struct {
	mu       sync.Mutex
	calls    []string
	stopErr  error
	startErr error
}

func (s *stubServices) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.calls = append(s.calls, "stop")
	s.mu.Unlock()
	return s.stopErr
}

func (s *stubServices) Start(ctx context.Context) error {
	s.mu.Lock()
	s.calls = append(s.calls, "start")
	s.mu.Unlock()
	return s.startErr
}

func (s *stubServices) callList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// writeArtifact stands in for the export child: the target path is the last
// command argument.
func writeArtifact(t *testing.T) func(spec CommandSpec) {
	t.Helper()
	return func(spec CommandSpec) {
		target := spec.Args[len(spec.Args)-1]
		require.NoError(t, os.WriteFile(target, []byte("state"), 0644))
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SnapshotsDir:  filepath.Join(t.TempDir(), "snapshots"),
		NodeBin:       "/usr/local/bin/noded",
		NodeDataDir:   "/var/lib/noded",
		NodeService:   "noded",
		ExportTimeout: time.Second,
	}
}

func TestExportProducesArtifact(t *testing.T) {
	cfg := testConfig(t)
	services := &stubServices{}
	launcher := &stubLauncher{onLaunch: writeArtifact(t)}
	s := NewSupervisor(cfg, services, WithLauncher(launcher), WithPollInterval(5*time.Millisecond))

	log := jobs.NewLiveLog()
	path, err := s.Export(context.Background(), 12345, log)

	require.NoError(t, err)
	assert.Equal(t, ArtifactPath(cfg.SnapshotsDir, 12345), path)
	assert.FileExists(t, path)
	assert.True(t, launcher.proc.wasTerminated())
	assert.Equal(t, []string{"stop", "start"}, services.callList())
	assert.Contains(t, log.Snapshot(), "snapshot 12345.snap exported")

	spec := launcher.launched()[0]
	assert.Equal(t, cfg.NodeBin, spec.Path)
	assert.Equal(t, []string{"--export-state", path}, spec.Args)
	assert.Equal(t, cfg.NodeDataDir, spec.Dir)
}

func TestExportSkipsWhenArtifactExists(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.SnapshotsDir, 0755))
	existing := ArtifactPath(cfg.SnapshotsDir, 500)
	require.NoError(t, os.WriteFile(existing, []byte("state"), 0644))

	services := &stubServices{}
	launcher := &stubLauncher{}
	s := NewSupervisor(cfg, services, WithLauncher(launcher), WithPollInterval(5*time.Millisecond))

	log := jobs.NewLiveLog()
	path, err := s.Export(context.Background(), 500, log)

	require.NoError(t, err)
	assert.Equal(t, existing, path)
	// The node was never touched.
	assert.Empty(t, launcher.launched())
	assert.Empty(t, services.callList())
	assert.Contains(t, log.Snapshot(), "already exists")
}

func TestExportTimesOutWithoutArtifact(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExportTimeout = 50 * time.Millisecond
	services := &stubServices{}
	launcher := &stubLauncher{} // the child never writes anything
	s := NewSupervisor(cfg, services, WithLauncher(launcher), WithPollInterval(5*time.Millisecond))

	log := jobs.NewLiveLog()
	_, err := s.Export(context.Background(), 77, log)

	var exportErr *ExportFailedError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, ArtifactPath(cfg.SnapshotsDir, 77), exportErr.Path)
	assert.True(t, launcher.proc.wasTerminated())
	// No restart after a failed export.
	assert.Equal(t, []string{"stop"}, services.callList())
	assert.Contains(t, log.Snapshot(), "giving up")
}

func TestExportRunsAsConfiguredUser(t *testing.T) {
	cfg := testConfig(t)
	cfg.NodeUser = "chain"
	services := &stubServices{}
	launcher := &stubLauncher{onLaunch: writeArtifact(t)}
	s := NewSupervisor(cfg, services, WithLauncher(launcher), WithPollInterval(5*time.Millisecond))

	path, err := s.Export(context.Background(), 9, jobs.NewLiveLog())
	require.NoError(t, err)

	spec := launcher.launched()[0]
	assert.Equal(t, "sudo", spec.Path)
	assert.Equal(t, []string{"-u", "chain", cfg.NodeBin, "--export-state", path}, spec.Args)
	assert.Equal(t, cfg.NodeDataDir, spec.Dir)
}

func TestExportFailsWhenStopFails(t *testing.T) {
	cfg := testConfig(t)
	services := &stubServices{stopErr: errors.New("unit stuck")}
	launcher := &stubLauncher{}
	s := NewSupervisor(cfg, services, WithLauncher(launcher), WithPollInterval(5*time.Millisecond))

	_, err := s.Export(context.Background(), 3, jobs.NewLiveLog())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopping service noded")
	assert.Empty(t, launcher.launched())
}

func TestExportFailsWhenLaunchFails(t *testing.T) {
	cfg := testConfig(t)
	services := &stubServices{}
	launcher := &stubLauncher{err: errors.New("no such binary")}
	s := NewSupervisor(cfg, services, WithLauncher(launcher), WithPollInterval(5*time.Millisecond))

	_, err := s.Export(context.Background(), 3, jobs.NewLiveLog())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting export")
	assert.Equal(t, []string{"stop"}, services.callList())
}

func TestExportRestartFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	services := &stubServices{startErr: errors.New("unit masked")}
	launcher := &stubLauncher{onLaunch: writeArtifact(t)}
	s := NewSupervisor(cfg, services, WithLauncher(launcher), WithPollInterval(5*time.Millisecond))

	log := jobs.NewLiveLog()
	path, err := s.Export(context.Background(), 4, log)

	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Contains(t, log.Snapshot(), "restart failed")
}
