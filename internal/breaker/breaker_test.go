package breaker

import (
	"sync"
	"testing"
	"time"
)

func newTestBreaker(threshold int, window, reset time.Duration) (*Breaker, *time.Time) {
	b := New(Options{
		FailureThreshold: threshold,
		Window:           window,
		ResetTimeout:     reset,
	}, nil)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return now })
	return b, &now
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute, 30*time.Second)

	for i := 0; i < 2; i++ {
		b.Record("llm", false)
		if !b.Allow("llm") {
			t.Fatalf("circuit opened after %d failures, threshold is 3", i+1)
		}
	}

	b.Record("llm", false)
	if b.Allow("llm") {
		t.Error("circuit should be open after reaching failure threshold")
	}
	if got := b.StateOf("llm"); got != StateOpen {
		t.Errorf("state = %s, want %s", got, StateOpen)
	}
}

func TestBreakerRecoveryCycle(t *testing.T) {
	b, now := newTestBreaker(3, time.Minute, 30*time.Second)

	for i := 0; i < 3; i++ {
		b.Record("llm", false)
	}
	if b.Allow("llm") {
		t.Fatal("circuit should be open")
	}

	// Before reset timeout: still rejecting
	*now = now.Add(29 * time.Second)
	if b.Allow("llm") {
		t.Error("circuit should still reject before reset timeout")
	}

	// After reset timeout: exactly one trial is admitted
	*now = now.Add(2 * time.Second)
	if !b.Allow("llm") {
		t.Fatal("expected one trial call after reset timeout")
	}
	if b.Allow("llm") {
		t.Error("only one trial call should be admitted while half-open")
	}
	if got := b.StateOf("llm"); got != StateHalfOpen {
		t.Errorf("state = %s, want %s", got, StateHalfOpen)
	}

	// Successful trial closes and resets the failure count
	b.Record("llm", true)
	if got := b.StateOf("llm"); got != StateClosed {
		t.Errorf("state after successful trial = %s, want %s", got, StateClosed)
	}

	// Two failures must not reopen (count was reset to 0)
	b.Record("llm", false)
	b.Record("llm", false)
	if !b.Allow("llm") {
		t.Error("failure count should have been reset by the successful trial")
	}
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	b, now := newTestBreaker(2, time.Minute, 30*time.Second)

	b.Record("filings", false)
	b.Record("filings", false)

	*now = now.Add(31 * time.Second)
	if !b.Allow("filings") {
		t.Fatal("expected trial call")
	}

	b.Record("filings", false)
	if got := b.StateOf("filings"); got != StateOpen {
		t.Errorf("state after failed trial = %s, want %s", got, StateOpen)
	}

	// Reset timer restarted at trial failure, not at original open
	*now = now.Add(29 * time.Second)
	if b.Allow("filings") {
		t.Error("reset timer should restart when the trial fails")
	}
	*now = now.Add(2 * time.Second)
	if !b.Allow("filings") {
		t.Error("expected a new trial after the restarted reset timeout")
	}
}

func TestBreakerIsolationBetweenDependencies(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute, 30*time.Second)

	b.Record("filings", false)
	b.Record("filings", false)

	if b.Allow("filings") {
		t.Error("filings circuit should be open")
	}
	if !b.Allow("market_data") {
		t.Error("market_data circuit must not be affected by filings failures")
	}
	if !b.Allow("llm") {
		t.Error("llm circuit must not be affected by filings failures")
	}
}

func TestBreakerWindowExpiryResetsCount(t *testing.T) {
	b, now := newTestBreaker(3, time.Minute, 30*time.Second)

	b.Record("llm", false)
	b.Record("llm", false)

	// Window passes - stale failures no longer count
	*now = now.Add(2 * time.Minute)
	b.Record("llm", false)
	b.Record("llm", false)

	if !b.Allow("llm") {
		t.Error("failures outside the sliding window should not accumulate")
	}

	b.Record("llm", false)
	if b.Allow("llm") {
		t.Error("three failures within the window should open the circuit")
	}
}

func TestBreakerSuccessResetsClosedCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute, 30*time.Second)

	b.Record("llm", false)
	b.Record("llm", false)
	b.Record("llm", true)
	b.Record("llm", false)
	b.Record("llm", false)

	if !b.Allow("llm") {
		t.Error("success between failures should reset the consecutive count")
	}
}

func TestBreakerConcurrentRecords(t *testing.T) {
	b, _ := newTestBreaker(50, time.Minute, 30*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				b.Record("llm", false)
			}
		}()
	}
	wg.Wait()

	// 50 failures recorded concurrently must reach the threshold; a lost
	// update leaving the breaker closed would be a correctness bug.
	if b.Allow("llm") {
		t.Error("breaker should be open after 50 concurrent failures with threshold 50")
	}
}
