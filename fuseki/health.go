package fuseki

import (
	"sync"
	"time"
)

// EndpointHealth tracks the health status of the Fuseki endpoint.
type EndpointHealth struct {
	// Available indicates if the endpoint is currently usable.
	Available bool `json:"available"`

	// LastSuccess is the time of the last successful request.
	LastSuccess time.Time `json:"last_success,omitempty"`

	// LastFailure is the time of the last failed request.
	LastFailure time.Time `json:"last_failure,omitempty"`

	// LastError is the message of the most recent transport failure.
	LastError string `json:"last_error,omitempty"`

	// FailureCount is the number of consecutive failures.
	FailureCount int `json:"failure_count"`

	// CircuitOpen indicates if the circuit breaker has tripped.
	CircuitOpen bool `json:"circuit_open"`

	// CircuitOpenedAt is when the circuit was opened.
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig configures the health tracking behavior.
type HealthConfig struct {
	// FailureThreshold is the number of failures before opening the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long to wait before trying the endpoint again.
	RecoveryTimeout time.Duration
}

// DefaultHealthConfig returns sensible defaults for health tracking.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

// healthTracker records transport-level outcomes. HTTP error statuses are
// answers, not failures, and do not count against the endpoint.
type healthTracker struct {
	mu     sync.RWMutex
	config HealthConfig
	status EndpointHealth
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultHealthConfig().FailureThreshold
	}
	return &healthTracker{
		config: cfg,
		status: EndpointHealth{Available: true},
	}
}

func (h *healthTracker) markSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.status.LastSuccess = time.Now()
	h.status.FailureCount = 0
	h.status.Available = true
	h.status.CircuitOpen = false
}

func (h *healthTracker) markFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.status.LastFailure = time.Now()
	h.status.FailureCount++
	if err != nil {
		h.status.LastError = err.Error()
	}

	if h.status.FailureCount >= h.config.FailureThreshold && !h.status.CircuitOpen {
		h.status.CircuitOpen = true
		h.status.CircuitOpenedAt = time.Now()
		h.status.Available = false
	}
}

// available returns false while the circuit is open and the recovery
// timeout has not passed. After the timeout one request is let through.
func (h *healthTracker) available() bool {
	h.mu.RLock()
	circuitOpen := h.status.CircuitOpen
	openedAt := h.status.CircuitOpenedAt
	recovery := h.config.RecoveryTimeout
	h.mu.RUnlock()

	if !circuitOpen {
		return true
	}
	return time.Since(openedAt) > recovery
}

func (h *healthTracker) snapshot() EndpointHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}
