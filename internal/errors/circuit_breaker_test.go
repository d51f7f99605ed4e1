package errors

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker(threshold int, timeout time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: threshold,
		SuccessThreshold: 1,
		Timeout:          timeout,
	})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)
	boom := errors.New("boom")

	cb.Mark(boom)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after one failure, got %s", cb.State())
	}
	cb.Mark(boom)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %s", cb.State())
	}

	err := cb.Allow()
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected CircuitOpenError, got %v", err)
	}
	if openErr.RetryIn <= 0 {
		t.Fatalf("expected positive retry window, got %v", openErr.RetryIn)
	}
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb, now := newTestBreaker(1, time.Second)
	cb.Mark(errors.New("boom"))
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	*now = now.Add(2 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected half-open probe to be allowed: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}

	cb.Mark(nil)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	cb.Mark(errors.New("boom"))
	cb.Reset()
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected reset breaker to allow requests: %v", err)
	}
	if m := cb.Metrics(); m.FailureCount != 0 || m.State != StateClosed {
		t.Fatalf("unexpected metrics after reset: %+v", m)
	}
}
