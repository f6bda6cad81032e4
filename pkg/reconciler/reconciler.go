// Package reconciler supervises a single contract runtime on a tick,
// driving repeated RunOnce cycles the way a long-lived daemon would.
package reconciler

import (
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/tau/pkg/events"
	"github.com/cuemby/tau/pkg/log"
	"github.com/cuemby/tau/pkg/metrics"
	"github.com/cuemby/tau/pkg/runtime"
	"github.com/cuemby/tau/pkg/transporthealth"
	"github.com/rs/zerolog"
)

// Runner is the subset of a runtime-specific Runner (customcommand.Runner,
// multichannel.Runner, memoryrt.Runner) the supervisor needs.
type Runner interface {
	RunOnce(fixturePath string) (runtime.Summary, error)
	Health() transporthealth.Snapshot
}

// Supervisor ticks one Runner on an interval, folding each cycle's summary
// into the runtime metrics catalog and the event broker.
type Supervisor struct {
	name        string
	runner      Runner
	fixturePath string
	interval    time.Duration
	broker      *events.Broker
	logger      zerolog.Logger
	mu          sync.RWMutex
	stopCh      chan struct{}
}

// New constructs a Supervisor for the named runtime. broker may be nil, in
// which case cycle events are not published.
func New(name string, runner Runner, fixturePath string, interval time.Duration, broker *events.Broker) *Supervisor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Supervisor{
		name:        name,
		runner:      runner,
		fixturePath: fixturePath,
		interval:    interval,
		broker:      broker,
		logger:      log.WithRuntime(name),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the supervision loop.
func (s *Supervisor) Start() {
	go s.run()
}

// Stop stops the supervisor.
func (s *Supervisor) Stop() {
	close(s.stopCh)
}

func (s *Supervisor) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Msg("runtime supervisor started")

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			s.logger.Info().Msg("runtime supervisor stopped")
			return
		}
	}
}

func (s *Supervisor) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.publish(events.EventCycleStarted, "cycle started", nil)

	timer := metrics.NewTimer()
	summary, err := s.runner.RunOnce(s.fixturePath)
	timer.ObserveDurationVec(metrics.RuntimeCycleDuration, s.name)

	if err != nil {
		s.logger.Error().Err(err).Msg("runtime cycle failed")
		s.publish(events.EventCaseFailed, err.Error(), nil)
		return
	}

	metrics.RuntimeCyclesTotal.WithLabelValues(s.name).Inc()
	metrics.RuntimeCasesTotal.WithLabelValues(s.name, "applied").Add(float64(summary.AppliedCases))
	metrics.RuntimeCasesTotal.WithLabelValues(s.name, "malformed").Add(float64(summary.MalformedCases))
	metrics.RuntimeCasesTotal.WithLabelValues(s.name, "failed").Add(float64(summary.FailedCases))
	metrics.RuntimeCasesTotal.WithLabelValues(s.name, "duplicate").Add(float64(summary.DuplicateSkips))

	health := s.runner.Health()
	metrics.RuntimeQueueDepth.WithLabelValues(s.name).Set(float64(health.QueueDepth))
	metrics.RuntimeFailureStreak.WithLabelValues(s.name).Set(float64(health.FailureStreak))

	classification := health.Classify()
	switch classification.State {
	case transporthealth.Unhealthy:
		s.publish(events.EventRuntimeUnhealthy, classification.Reason, nil)
	case transporthealth.Degraded:
		s.publish(events.EventRuntimeDegraded, classification.Reason, nil)
	}

	if summary.FailedCases > 0 {
		s.publish(events.EventCaseFailed, "cycle observed failed cases", map[string]string{
			"failed_cases": strconv.Itoa(summary.FailedCases),
		})
	}
	s.publish(events.EventCycleCompleted, "cycle completed", map[string]string{
		"applied_cases": strconv.Itoa(summary.AppliedCases),
	})

	s.logger.Debug().
		Int("applied", summary.AppliedCases).
		Int("failed", summary.FailedCases).
		Str("health", string(classification.State)).
		Msg("supervised cycle completed")
}

func (s *Supervisor) publish(eventType events.EventType, message string, metadata map[string]string) {
	if s.broker == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["runtime"] = s.name
	s.broker.Publish(&events.Event{
		Type:     eventType,
		Message:  message,
		Metadata: metadata,
	})
}
