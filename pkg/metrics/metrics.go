package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Runtime engine metrics
	RuntimeCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tau_runtime_cycles_total",
			Help: "Total number of contract-runtime cycles completed, by runtime",
		},
		[]string{"runtime"},
	)

	RuntimeCasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tau_runtime_cases_total",
			Help: "Total number of contract-runtime cases processed, by runtime and outcome",
		},
		[]string{"runtime", "outcome"},
	)

	RuntimeCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tau_runtime_cycle_duration_seconds",
			Help:    "Time taken for a contract-runtime cycle, by runtime",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"runtime"},
	)

	RuntimeQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tau_runtime_queue_depth",
			Help: "Backlog case count observed at the end of the last cycle, by runtime",
		},
		[]string{"runtime"},
	)

	RuntimeFailureStreak = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tau_runtime_failure_streak",
			Help: "Consecutive failed-cycle count, by runtime",
		},
		[]string{"runtime"},
	)

	// Outbound dispatch metrics
	DispatchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tau_dispatch_requests_total",
			Help: "Total number of outbound dispatch requests, by transport and status",
		},
		[]string{"transport", "status"},
	)

	// Session store metrics
	SessionEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tau_session_entries_total",
			Help: "Total number of entries currently held by a session store",
		},
		[]string{"session"},
	)

	// Channel store metrics
	ChannelStoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tau_channel_store_writes_total",
			Help: "Total number of channel-store append/write operations, by record kind",
		},
		[]string{"kind"},
	)

	// Release lookup cache metrics
	ReleaseCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tau_release_cache_lookups_total",
			Help: "Total number of release lookup cache queries, by outcome",
		},
		[]string{"outcome"},
	)

	// Sandboxed tool metrics
	ToolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tau_tool_invocations_total",
			Help: "Total number of sandboxed tool invocations, by tool and status",
		},
		[]string{"tool", "status"},
	)
)

func init() {
	prometheus.MustRegister(RuntimeCyclesTotal)
	prometheus.MustRegister(RuntimeCasesTotal)
	prometheus.MustRegister(RuntimeCycleDuration)
	prometheus.MustRegister(RuntimeQueueDepth)
	prometheus.MustRegister(RuntimeFailureStreak)
	prometheus.MustRegister(DispatchRequestsTotal)
	prometheus.MustRegister(SessionEntriesTotal)
	prometheus.MustRegister(ChannelStoreWritesTotal)
	prometheus.MustRegister(ReleaseCacheLookupsTotal)
	prometheus.MustRegister(ToolInvocationsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
