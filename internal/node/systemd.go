package node

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes one command to completion. The default implementation
// shells out; tests capture the argv instead.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return nil
}

// SystemdManager cycles a systemd unit around the export operation.
type SystemdManager struct {
	unit   string
	runner Runner
}

type SystemdOption func(*SystemdManager)

// WithRunner replaces the exec-backed runner, for tests.
func WithRunner(r Runner) SystemdOption {
	return func(m *SystemdManager) { m.runner = r }
}

func NewSystemdManager(unit string, opts ...SystemdOption) *SystemdManager {
	m := &SystemdManager{
		unit:   unit,
		runner: execRunner{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stop stops the unit and waits for systemd to finish the stop job.
func (m *SystemdManager) Stop(ctx context.Context) error {
	return m.runner.Run(ctx, "systemctl", "stop", m.unit)
}

// Start asks systemd to start the unit without waiting for readiness.
func (m *SystemdManager) Start(ctx context.Context) error {
	return m.runner.Run(ctx, "systemctl", "start", "--no-block", m.unit)
}
