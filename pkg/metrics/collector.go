package metrics

import (
	"time"

	"github.com/cuemby/tau/pkg/transporthealth"
)

// HealthSource is polled by a Collector once per tick to refresh the
// runtime-engine gauges for one named runtime.
type HealthSource func() transporthealth.Snapshot

// Collector periodically samples a set of runtime health sources and
// folds them into the package's Prometheus gauges.
type Collector struct {
	sources map[string]HealthSource
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector over the given named
// health sources (runtime name -> snapshot provider).
func NewCollector(sources map[string]HealthSource) *Collector {
	return &Collector{
		sources: sources,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for runtime, source := range c.sources {
		snapshot := source()
		RuntimeQueueDepth.WithLabelValues(runtime).Set(float64(snapshot.QueueDepth))
		RuntimeFailureStreak.WithLabelValues(runtime).Set(float64(snapshot.FailureStreak))
	}
}
