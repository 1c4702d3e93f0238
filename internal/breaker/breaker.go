// Package breaker implements per-dependency circuit breaking for external
// calls. One independently-locked state machine per dependency, so an
// unhealthy dependency can never block calls to a healthy one.
package breaker

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// State represents the circuit state for one dependency.
type State string

const (
	// StateClosed allows all calls (default)
	StateClosed State = "closed"
	// StateOpen rejects all calls until the reset timeout elapses
	StateOpen State = "open"
	// StateHalfOpen allows exactly one trial call
	StateHalfOpen State = "half_open"
)

// Options configures breaker behavior for all dependencies.
type Options struct {
	// FailureThreshold is the number of failures within Window that opens the circuit
	FailureThreshold int
	// Window is the sliding window for failure counting
	Window time.Duration
	// ResetTimeout is how long an open circuit waits before allowing a trial call
	ResetTimeout time.Duration
}

// DefaultOptions returns breaker defaults matching production config.
func DefaultOptions() Options {
	return Options{
		FailureThreshold: 5,
		Window:           time.Minute,
		ResetTimeout:     30 * time.Second,
	}
}

// circuit holds the state machine for one dependency. All fields are guarded
// by mu; the clock is injectable for tests.
type circuit struct {
	mu            sync.Mutex
	state         State
	failureCount  int
	windowStart   time.Time
	openedAt      time.Time
	trialInFlight bool
}

// Breaker is a registry of per-dependency circuits.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	opts     Options
	logger   arbor.ILogger
	now      func() time.Time
}

// New creates a breaker registry with the given options.
func New(opts Options, logger arbor.ILogger) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultOptions().FailureThreshold
	}
	if opts.Window <= 0 {
		opts.Window = DefaultOptions().Window
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = DefaultOptions().ResetTimeout
	}

	return &Breaker{
		circuits: make(map[string]*circuit),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (b *Breaker) SetClock(now func() time.Time) {
	b.now = now
}

// circuitFor returns the circuit for a dependency, creating it on first use.
func (b *Breaker) circuitFor(dependency string) *circuit {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[dependency]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[dependency] = c
	}
	return c
}

// Allow reports whether a call to the dependency may proceed.
// Open circuits reject until the reset timeout elapses, then transition to
// half-open and admit exactly one trial call.
func (b *Breaker) Allow(dependency string) bool {
	c := b.circuitFor(dependency)
	now := b.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return true

	case StateOpen:
		if now.Sub(c.openedAt) < b.opts.ResetTimeout {
			return false
		}
		// Reset timeout elapsed - admit one trial
		c.state = StateHalfOpen
		c.trialInFlight = true
		if b.logger != nil {
			b.logger.Info().
				Str("dependency", dependency).
				Msg("Circuit half-open, admitting trial call")
		}
		return true

	case StateHalfOpen:
		if c.trialInFlight {
			return false
		}
		c.trialInFlight = true
		return true
	}

	return false
}

// Record reports the outcome of a call to the dependency. Callers must only
// record transport/timeout/5xx-class outcomes as failures; semantic errors
// are not evidence of dependency unavailability and should be recorded as
// success or not at all.
func (b *Breaker) Record(dependency string, success bool) {
	c := b.circuitFor(dependency)
	now := b.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if success {
		switch c.state {
		case StateHalfOpen:
			// Trial succeeded - close and reset
			c.state = StateClosed
			c.failureCount = 0
			c.trialInFlight = false
			if b.logger != nil {
				b.logger.Info().
					Str("dependency", dependency).
					Msg("Circuit closed after successful trial")
			}
		case StateClosed:
			c.failureCount = 0
		}
		return
	}

	switch c.state {
	case StateHalfOpen:
		// Trial failed - reopen with a fresh reset timer
		c.state = StateOpen
		c.openedAt = now
		c.trialInFlight = false
		if b.logger != nil {
			b.logger.Warn().
				Str("dependency", dependency).
				Msg("Circuit reopened after failed trial")
		}

	case StateClosed:
		// Failures outside the window do not accumulate
		if c.failureCount == 0 || now.Sub(c.windowStart) > b.opts.Window {
			c.windowStart = now
			c.failureCount = 0
		}
		c.failureCount++

		if c.failureCount >= b.opts.FailureThreshold {
			c.state = StateOpen
			c.openedAt = now
			if b.logger != nil {
				b.logger.Warn().
					Str("dependency", dependency).
					Int("failures", c.failureCount).
					Msg("Circuit opened")
			}
		}
	}
}

// StateOf returns the current state for a dependency. Used by status
// reporting and metrics; never consulted on the call path.
func (b *Breaker) StateOf(dependency string) State {
	c := b.circuitFor(dependency)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// States returns a snapshot of all known dependency states.
func (b *Breaker) States() map[string]State {
	b.mu.Lock()
	deps := make([]string, 0, len(b.circuits))
	for dep := range b.circuits {
		deps = append(deps, dep)
	}
	b.mu.Unlock()

	states := make(map[string]State, len(deps))
	for _, dep := range deps {
		states[dep] = b.StateOf(dep)
	}
	return states
}
