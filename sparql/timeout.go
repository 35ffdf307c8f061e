package sparql

import "time"

// Adaptive timeout tiers by store size.
const (
	smallStoreTriples  = 10_000
	mediumStoreTriples = 100_000
	smallStoreTimeout  = 5 * time.Second
	mediumStoreTimeout = 15 * time.Second

	// DefaultTimeout is the execution window when nothing else applies.
	DefaultTimeout = 30 * time.Second
)

// TimeoutPolicy decides a query's execution window.
type TimeoutPolicy struct {
	// Default applies when no explicit or adaptive timeout is chosen.
	Default time.Duration
	// Max caps explicit per-request timeouts. Zero means no cap.
	Max time.Duration
	// Adaptive shortens the window for small stores.
	Adaptive bool
}

// DefaultTimeoutPolicy returns a 30s default, a 5m cap and adaptive tiers.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{Default: DefaultTimeout, Max: 5 * time.Minute, Adaptive: true}
}

// Decide returns the timeout for a query. An explicit request wins, capped
// at Max. Otherwise stores under 10k triples get 5s and stores under 100k get
// 15s when Adaptive is set and the size is known (tripleCount >= 0).
func (p TimeoutPolicy) Decide(requested time.Duration, tripleCount int) time.Duration {
	def := p.Default
	if def <= 0 {
		def = DefaultTimeout
	}
	if requested > 0 {
		if p.Max > 0 && requested > p.Max {
			return p.Max
		}
		return requested
	}
	if p.Adaptive && tripleCount >= 0 {
		switch {
		case tripleCount < smallStoreTriples:
			return smallStoreTimeout
		case tripleCount < mediumStoreTriples:
			return mediumStoreTimeout
		}
	}
	return def
}
