package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	pkerrors "pumpkit/internal/errors"
	"pumpkit/internal/logging"
)

// FailurePolicy decides whether a finished exchange counts against the
// breaker. resp is nil when err is not.
type FailurePolicy func(resp *http.Response, err error) bool

// TransportFailures counts only requests that never got a response.
// Every HTTP reply, whatever its status, is the service answering.
func TransportFailures(_ *http.Response, err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// ServerFailures counts transport failures and 5xx replies.
func ServerFailures(resp *http.Response, err error) bool {
	if err != nil {
		return TransportFailures(resp, err)
	}
	return resp != nil && resp.StatusCode >= http.StatusInternalServerError
}

// BreakerOptions configures a breaker-guarded client.
type BreakerOptions struct {
	Name   string
	Config pkerrors.CircuitBreakerConfig
	// IsFailure defaults to TransportFailures.
	IsFailure FailurePolicy
}

type circuitBreakerRoundTripper struct {
	base      http.RoundTripper
	breaker   *pkerrors.CircuitBreaker
	isFailure FailurePolicy
}

// NewWithBreaker builds an HTTP client guarded by a circuit breaker that
// classifies exchanges with opts.IsFailure.
func NewWithBreaker(timeout time.Duration, logger logging.Logger, opts BreakerOptions) *http.Client {
	client := New(timeout, logger)
	client.Transport = WrapTransport(client.Transport, opts)
	return client
}

// WrapTransport wraps base with circuit breaker protection.
func WrapTransport(base http.RoundTripper, opts BreakerOptions) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if opts.Name == "" {
		opts.Name = "http-client"
	}
	if opts.IsFailure == nil {
		opts.IsFailure = TransportFailures
	}
	return &circuitBreakerRoundTripper{
		base:      base,
		breaker:   pkerrors.NewCircuitBreaker(opts.Name, opts.Config),
		isFailure: opts.IsFailure,
	}
}

func (t *circuitBreakerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if t.isFailure(resp, err) {
		if err == nil {
			t.breaker.Mark(fmt.Errorf("http status %d", resp.StatusCode))
		} else {
			t.breaker.Mark(err)
		}
	} else if err == nil || !errors.Is(err, context.Canceled) {
		t.breaker.Mark(nil)
	}
	return resp, err
}

// Ready reports whether client would currently send a request. It returns the
// *errors.CircuitOpenError an open breaker would produce and never consumes a
// half-open probe. Clients without a breaker are always ready.
func Ready(client *http.Client) error {
	if client == nil {
		return nil
	}
	for rt := client.Transport; rt != nil; {
		guarded, ok := rt.(*circuitBreakerRoundTripper)
		if !ok {
			return nil
		}
		if err := guarded.breaker.Check(); err != nil {
			return err
		}
		rt = guarded.base
	}
	return nil
}
