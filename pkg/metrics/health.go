package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/tau/pkg/transporthealth"
)

// HealthStatus represents the health status of the process as a whole.
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "degraded", "unhealthy", "ready", "not_ready"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

var (
	healthChecker = &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}

	// criticalComponents gates readiness: Tau cannot serve a cycle without
	// a working session store, channel store, and runtime engine.
	criticalComponents = []string{"session_store", "channel_store", "runtime_engine"}

	// stateRank orders transporthealth.State from best to worst so the
	// process-wide status can fold down to the single worst component.
	stateRank = map[transporthealth.State]int{
		transporthealth.Healthy:   0,
		transporthealth.Degraded:  1,
		transporthealth.Unhealthy: 2,
	}
)

// ComponentHealth tracks the current transport-health classification of a
// single component, the same tri-state model a runtime cycle is classified
// into by transporthealth.Classify.
type ComponentHealth struct {
	Name    string
	State   transporthealth.State
	Message string
	Updated time.Time
}

// HealthChecker aggregates component health across the process.
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	startTime  time.Time
	version    string
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// RegisterComponent registers or overwrites a component's current
// transport-health state.
func RegisterComponent(name string, state transporthealth.State, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		State:   state,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent updates the health state of a component
func UpdateComponent(name string, state transporthealth.State, message string) {
	RegisterComponent(name, state, message) // Same implementation
}

func worstState(a, b transporthealth.State) transporthealth.State {
	if stateRank[b] > stateRank[a] {
		return b
	}
	return a
}

// GetHealth folds every registered component's classification down to the
// single worst state observed across the process.
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	overall := transporthealth.Healthy
	components := make(map[string]string, len(healthChecker.components))

	for name, comp := range healthChecker.components {
		overall = worstState(overall, comp.State)
		if comp.State != transporthealth.Healthy && comp.Message != "" {
			components[name] = string(comp.State) + ": " + comp.Message
		} else {
			components[name] = string(comp.State)
		}
	}

	return HealthStatus{
		Status:     string(overall),
		Timestamp:  time.Now(),
		Components: components,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
		StartTime:  healthChecker.startTime,
	}
}

// GetReadiness reports whether every critical component is at least
// degraded rather than unhealthy. A degraded runtime is still processing
// cycles, only backlogged or recently failing, so it counts as ready; an
// unhealthy or unregistered one does not.
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string, len(criticalComponents))

	for _, name := range criticalComponents {
		comp, exists := healthChecker.components[name]
		switch {
		case !exists:
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case comp.State == transporthealth.Unhealthy:
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "unhealthy: " + comp.Message
		default:
			components[name] = string(comp.State)
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
		StartTime:  healthChecker.startTime,
	}
}

// HealthHandler returns an HTTP handler for the /health endpoint
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()

		w.Header().Set("Content-Type", "application/json")

		statusCode := http.StatusOK
		if health.Status == string(transporthealth.Unhealthy) {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(health)
	}
}

// ReadyHandler returns an HTTP handler for the /ready endpoint
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()

		w.Header().Set("Content-Type", "application/json")

		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(readiness)
	}
}

// LivenessHandler returns a simple liveness check (always returns 200 if process is running)
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).String(),
		})
	}
}
