// Package scheduler coordinates the set of contract runtimes configured for
// one daemon process, starting and stopping a reconciler.Supervisor per
// runtime and aggregating their health into the process-wide health
// checker.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/cuemby/tau/pkg/log"
	"github.com/cuemby/tau/pkg/metrics"
	"github.com/cuemby/tau/pkg/reconciler"
	"github.com/cuemby/tau/pkg/transporthealth"
	"github.com/rs/zerolog"
)

// Coordinator owns a named set of runtime supervisors and starts/stops them
// together.
type Coordinator struct {
	logger      zerolog.Logger
	mu          sync.RWMutex
	supervisors map[string]*reconciler.Supervisor
	runners     map[string]reconciler.Runner
	started     bool
}

// NewCoordinator creates an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		logger:      log.WithComponent("scheduler"),
		supervisors: make(map[string]*reconciler.Supervisor),
		runners:     make(map[string]reconciler.Runner),
	}
}

// Register adds a named runtime to the coordinator. Safe to call only
// before Start.
func (c *Coordinator) Register(name string, supervisor *reconciler.Supervisor, runner reconciler.Runner) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("cannot register runtime %q after the coordinator has started", name)
	}
	if _, exists := c.supervisors[name]; exists {
		return fmt.Errorf("runtime %q is already registered", name)
	}
	c.supervisors[name] = supervisor
	c.runners[name] = runner
	return nil
}

// Start starts every registered supervisor and registers each as a health
// component named "runtime:<name>".
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started = true
	for name, supervisor := range c.supervisors {
		metrics.RegisterComponent(healthComponentName(name), transporthealth.Healthy, "")
		supervisor.Start()
		c.logger.Info().Str("runtime", name).Msg("runtime registered with coordinator")
	}
}

// Stop stops every registered supervisor.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, supervisor := range c.supervisors {
		supervisor.Stop()
		c.logger.Info().Str("runtime", name).Msg("runtime stopped")
	}
	c.started = false
}

// Snapshot returns the current health snapshot for every registered
// runtime, keyed by runtime name.
func (c *Coordinator) Snapshot() map[string]transporthealth.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshots := make(map[string]transporthealth.Snapshot, len(c.runners))
	for name, runner := range c.runners {
		snapshots[name] = runner.Health()
	}
	return snapshots
}

// RefreshHealth updates the process-wide health checker from each
// registered runtime's current snapshot. Intended to be called on the
// same interval as the metrics collector.
func (c *Coordinator) RefreshHealth() {
	for name, snapshot := range c.Snapshot() {
		classification := snapshot.Classify()
		metrics.UpdateComponent(healthComponentName(name), classification.State, classification.Reason)
	}
}

func healthComponentName(runtime string) string {
	return "runtime:" + runtime
}
