package resilience

import (
	"errors"
	"sort"
	"sync"
	"time"

	"dropship-rest-api/pkg/logger"
)

// ErrCircuitOpen is the degraded reason reported while a breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	StateClosed   CircuitState = "closed"    // Normal operation
	StateOpen     CircuitState = "open"      // Blocking requests
	StateHalfOpen CircuitState = "half-open" // Testing if the source recovered
)

// halfOpenSuccesses is the number of consecutive half-open successes that
// close the circuit again.
const halfOpenSuccesses = 3

// CircuitBreaker guards one marketplace source.
type CircuitBreaker struct {
	name            string
	maxFailures     int
	cooldown        time.Duration
	state           CircuitState
	failures        int
	successCount    int
	lastFailureTime time.Time
	lastStateChange time.Time
	now             func() time.Time
	mu              sync.Mutex
}

// NewCircuitBreaker creates a closed breaker that opens after maxFailures
// consecutive failures and stays open for cooldown.
func NewCircuitBreaker(name string, maxFailures int, cooldown time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		name:            name,
		maxFailures:     maxFailures,
		cooldown:        cooldown,
		state:           StateClosed,
		now:             time.Now,
		lastStateChange: time.Now(),
	}
}

// Allow reports whether a request may proceed, moving an open breaker to
// half-open once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastStateChange) >= cb.cooldown {
		cb.setState(StateHalfOpen)
		cb.successCount = 0
		logger.Logger.Info().Str("circuit", cb.name).Msg("circuit breaker half-open")
	}
	return cb.state != StateOpen
}

// RecordFailure counts one failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.now()

	switch {
	case cb.state == StateHalfOpen:
		cb.setState(StateOpen)
		logger.Logger.Warn().Str("circuit", cb.name).Msg("circuit breaker reopened after half-open failure")
	case cb.state == StateClosed && cb.failures >= cb.maxFailures:
		cb.setState(StateOpen)
		logger.Logger.Error().
			Str("circuit", cb.name).
			Int("failures", cb.failures).
			Int("threshold", cb.maxFailures).
			Msg("circuit breaker opened")
	}
}

// RecordSuccess counts one successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= halfOpenSuccesses {
			cb.setState(StateClosed)
			cb.failures = 0
			cb.successCount = 0
			logger.Logger.Info().Str("circuit", cb.name).Msg("circuit breaker closed after recovery")
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) setState(s CircuitState) {
	cb.state = s
	cb.lastStateChange = cb.now()
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerStats is a point-in-time view of one breaker.
type BreakerStats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"state"`
	Failures        int          `json:"failures"`
	MaxFailures     int          `json:"max_failures"`
	LastFailureTime *time.Time   `json:"last_failure_time,omitempty"`
	LastStateChange time.Time    `json:"last_state_change"`
}

// Stats returns breaker statistics.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := BreakerStats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		MaxFailures:     cb.maxFailures,
		LastStateChange: cb.lastStateChange,
	}
	if !cb.lastFailureTime.IsZero() {
		t := cb.lastFailureTime
		s.LastFailureTime = &t
	}
	return s
}

// BreakerSet holds one breaker per source name.
type BreakerSet struct {
	maxFailures int
	cooldown    time.Duration
	breakers    map[string]*CircuitBreaker
	mu          sync.Mutex
}

// NewBreakerSet creates an empty set whose breakers share one policy.
func NewBreakerSet(maxFailures int, cooldown time.Duration) *BreakerSet {
	return &BreakerSet{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		breakers:    make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (s *BreakerSet) Get(name string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(name, s.maxFailures, s.cooldown)
	s.breakers[name] = cb
	return cb
}

// Stats returns stats for every breaker, ordered by name.
func (s *BreakerSet) Stats() []BreakerStats {
	s.mu.Lock()
	names := make([]string, 0, len(s.breakers))
	for name := range s.breakers {
		names = append(names, name)
	}
	s.mu.Unlock()

	sort.Strings(names)
	out := make([]BreakerStats, 0, len(names))
	for _, name := range names {
		out = append(out, s.Get(name).Stats())
	}
	return out
}
