package toolclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/marketbrief/internal/breaker"
	"github.com/ternarybob/marketbrief/internal/telemetry"
)

// errCircuitOpen is the cause carried by fail-fast rejections.
var errCircuitOpen = errors.New("circuit open")

// Client guards external dependency calls. It consults the circuit breaker
// before each call, enforces the per-call timeout, classifies the outcome,
// and always reports the outcome back to the breaker.
type Client struct {
	breaker *breaker.Breaker
	logger  arbor.ILogger
}

// New creates a tool client backed by the given breaker registry.
func New(b *breaker.Breaker, logger arbor.ILogger) *Client {
	return &Client{
		breaker: b,
		logger:  logger,
	}
}

// Call invokes fn against the named dependency.
//
// If the dependency's circuit is open the call fails fast with an
// Unavailable error and no network attempt. Otherwise fn runs under a
// timeout-bounded context; the classified outcome is recorded to the breaker
// regardless of success. Semantic refusals (wrapped via Rejected, or
// returned as a DependencyError with KindRejected) are recorded as success
// because they prove the dependency is reachable.
func (c *Client) Call(ctx context.Context, dep Dependency, timeout time.Duration, fn func(ctx context.Context) error) error {
	if !c.breaker.Allow(dep.String()) {
		telemetry.ToolCallsRejected.WithLabelValues(dep.String()).Inc()
		if c.logger != nil {
			c.logger.Debug().
				Str("dependency", dep.String()).
				Msg("Call rejected, circuit open")
		}
		return &DependencyError{Dependency: dep, Kind: KindUnavailable, Err: errCircuitOpen}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(callCtx)
	latency := time.Since(start)

	depErr := c.classify(dep, callCtx, err)

	// Parent-context cancellation (run deadline, shutdown) says nothing
	// about the dependency's health: the call was abandoned, not refused.
	// Skip the breaker so a cancelled fan-out cannot open a healthy circuit.
	canceled := depErr != nil && depErr.Kind == KindUnavailable &&
		errors.Is(err, context.Canceled) && ctx.Err() != nil

	success := depErr == nil || depErr.Kind == KindRejected
	if !canceled {
		c.breaker.Record(dep.String(), success)
	}

	outcome := "success"
	if depErr != nil {
		outcome = string(depErr.Kind)
	}
	telemetry.ToolCalls.WithLabelValues(dep.String(), outcome).Inc()

	if c.logger != nil {
		c.logger.Debug().
			Str("dependency", dep.String()).
			Str("outcome", outcome).
			Dur("latency", latency).
			Msg("Dependency call completed")
	}

	if depErr != nil {
		return depErr
	}
	return nil
}

// classify maps a raw call error onto the dependency error taxonomy.
func (c *Client) classify(dep Dependency, callCtx context.Context, err error) *DependencyError {
	if err == nil {
		return nil
	}

	// Already classified by the call site (e.g. semantic refusal)
	var depErr *DependencyError
	if errors.As(err, &depErr) {
		return depErr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &DependencyError{Dependency: dep, Kind: KindTimeout, Err: fmt.Errorf("call exceeded deadline: %w", err)}
	}

	// Anything else is a transport/availability failure
	return &DependencyError{Dependency: dep, Kind: KindUnavailable, Err: err}
}

// Breaker exposes the underlying breaker registry for status reporting.
func (c *Client) Breaker() *breaker.Breaker {
	return c.breaker
}
