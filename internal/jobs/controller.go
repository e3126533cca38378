package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainops/snapshot-publisher/pkg/metrics"
)

// ErrAlreadyRunning is returned by Submit while a job is in flight. Jobs are
// never queued, callers retry once the running one ends.
var ErrAlreadyRunning = errors.New("a job is already running")

// TipResolver returns the node's current progress height.
type TipResolver interface {
	Tip(ctx context.Context) (uint64, error)
}

// Exporter produces the snapshot artifact for a height and returns its path.
type Exporter interface {
	Export(ctx context.Context, height uint64, log *LiveLog) (string, error)
}

// ManifestRebuilder regenerates the published checksum manifest.
type ManifestRebuilder interface {
	Rebuild(ctx context.Context, log *LiveLog) error
}

// Controller is the single-flight gate in front of the snapshot pipeline.
// One controller exists per process; every state transition happens under mu.
type Controller struct {
	tip      TipResolver
	exporter Exporter
	manifest ManifestRebuilder
	count    func() int

	mu            sync.Mutex
	running       bool
	startedAt     time.Time
	lastCompleted time.Time
	lastSuccess   *bool
	lastOutput    string
	live          *LiveLog
}

// Status is a point-in-time view of the controller state. While a job runs,
// LastOutput carries a snapshot of its live log; afterwards it carries the
// frozen output of the last job.
type Status struct {
	Running       bool
	RunningFor    time.Duration
	SnapshotCount int
	LastCompleted time.Time
	LastSuccess   *bool
	LastOutput    string
}

// NewController wires the pipeline stages. count reports the number of
// artifacts on disk and runs outside the controller lock.
func NewController(tip TipResolver, exporter Exporter, manifest ManifestRebuilder, count func() int) *Controller {
	return &Controller{
		tip:      tip,
		exporter: exporter,
		manifest: manifest,
		count:    count,
	}
}

// Submit starts a snapshot job unless one is already running. The job body
// runs on its own goroutine, detached from the caller's cancellation: once
// accepted, a job runs to completion or export timeout. Its progress is
// observed through Status, never through the submitting call.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.startedAt = time.Now()
	c.live = NewLiveLog()
	live := c.live
	c.mu.Unlock()

	live.Append("snapshot job accepted")
	go c.runJob(context.WithoutCancel(ctx), live)

	return nil
}

// Status returns the current view without blocking a running job. The
// artifact count is computed off the lock.
func (c *Controller) Status() Status {
	c.mu.Lock()
	s := Status{
		Running:       c.running,
		LastCompleted: c.lastCompleted,
		LastSuccess:   c.lastSuccess,
		LastOutput:    c.lastOutput,
	}
	if c.running {
		s.RunningFor = time.Since(c.startedAt)
		s.LastOutput = c.live.Snapshot()
	}
	c.mu.Unlock()

	s.SnapshotCount = c.count()
	return s
}

func (c *Controller) runJob(ctx context.Context, live *LiveLog) {
	start := time.Now()
	err := c.pipeline(ctx, live)
	elapsed := time.Since(start)

	result := metrics.JobResultSucceeded
	if err != nil {
		result = metrics.JobResultFailed
		live.Appendf("snapshot job failed after %ds: %s", int(elapsed.Seconds()), err)
		zap.S().Named("jobs").Errorw("snapshot job failed", "error", err, "elapsed", elapsed)
	} else {
		live.Appendf("snapshot job completed in %ds", int(elapsed.Seconds()))
	}

	metrics.IncreaseJobsTotalMetric(result)
	metrics.ObserveJobDurationMetric(elapsed.Seconds())
	metrics.UpdateArtifactsCountMetric(c.count())

	ok := err == nil
	c.mu.Lock()
	c.running = false
	c.startedAt = time.Time{}
	c.lastCompleted = time.Now().UTC()
	c.lastSuccess = &ok
	c.lastOutput = live.Take()
	c.live = nil
	c.mu.Unlock()
}

// pipeline is the job body: resolve the tip, export its artifact, rebuild
// the manifest. A stage failure aborts the rest.
func (c *Controller) pipeline(ctx context.Context, live *LiveLog) error {
	height, err := c.tip.Tip(ctx)
	if err != nil {
		return fmt.Errorf("querying node tip: %w", err)
	}
	live.Appendf("node tip at height %d", height)

	if _, err := c.exporter.Export(ctx, height, live); err != nil {
		return err
	}

	return c.manifest.Rebuild(ctx, live)
}
