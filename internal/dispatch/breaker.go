package dispatch

import (
	"sync"
	"time"
)

type CircuitState int

const (
	StateClosed   CircuitState = iota // healthy, requests flow
	StateOpen                         // unhealthy, requests blocked
	StateHalfOpen                     // probing, one request allowed
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold      = 5
	defaultRecoveryProbeInterval = 15 * time.Second
)

// HealthTracker keeps one circuit breaker per provider. Breaker state is
// consulted before dispatch and surfaced on the health endpoint; it never
// influences routing decisions, which stay a pure function of config.
type HealthTracker struct {
	mu       sync.Mutex
	breakers map[string]*breaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

type breaker struct {
	state    CircuitState
	failures int
	openedAt time.Time
}

func NewHealthTracker(failureThreshold int, recoveryProbeInterval time.Duration) *HealthTracker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if recoveryProbeInterval <= 0 {
		recoveryProbeInterval = defaultRecoveryProbeInterval
	}
	return &HealthTracker{
		breakers:              make(map[string]*breaker),
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
	}
}

func (ht *HealthTracker) get(provider string) *breaker {
	b, ok := ht.breakers[provider]
	if !ok {
		b = &breaker{state: StateClosed}
		ht.breakers[provider] = b
	}
	return b
}

// current returns the breaker's state, transitioning open breakers to
// half-open once the probe interval has elapsed. Caller holds ht.mu.
func (ht *HealthTracker) current(b *breaker) CircuitState {
	if b.state == StateOpen && time.Since(b.openedAt) >= ht.recoveryProbeInterval {
		b.state = StateHalfOpen
	}
	return b.state
}

// Allow reports whether a request may go out to the provider.
func (ht *HealthTracker) Allow(provider string) bool {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return ht.current(ht.get(provider)) != StateOpen
}

func (ht *HealthTracker) RecordSuccess(provider string) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	b := ht.get(provider)
	b.state = StateClosed
	b.failures = 0
}

func (ht *HealthTracker) RecordFailure(provider string) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	b := ht.get(provider)
	b.failures++
	switch ht.current(b) {
	case StateClosed:
		if b.failures >= ht.failureThreshold {
			b.state = StateOpen
			b.openedAt = time.Now()
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = time.Now()
	}
}

// States returns the current breaker state per provider, for health
// introspection.
func (ht *HealthTracker) States() map[string]string {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	out := make(map[string]string, len(ht.breakers))
	for name, b := range ht.breakers {
		out[name] = ht.current(b).String()
	}
	return out
}
