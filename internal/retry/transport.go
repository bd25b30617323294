package retry

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Transport is an http.RoundTripper that re-sends requests answered with a
// retryable status code or failed with a transient network error (see
// IsRetryable). Backoff doubles from Policy.InitialBackoff, and a
// Retry-After header in seconds takes precedence when it asks for longer.
// Only requests without a body are retried.
type Transport struct {
	Base   http.RoundTripper
	Policy Policy
	LogFn  LogFunc
}

// NewTransport wraps base (http.DefaultTransport when nil) with the policy.
func NewTransport(base http.RoundTripper, p Policy, logFn LogFunc) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Policy: p, LogFn: logFn}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	maxRetries := t.Policy.TransportRetries
	if req.Body != nil && req.Body != http.NoBody {
		maxRetries = 0
	}

	for n := 0; ; n++ {
		resp, err := t.Base.RoundTrip(req)
		if err != nil {
			if n >= maxRetries || req.Context().Err() != nil || !IsRetryable(err) {
				return nil, err
			}
			wait := t.Policy.Backoff(n)
			if t.LogFn != nil {
				t.LogFn(n+1, maxRetries+1, wait, err)
			}
			if err := sleep(req.Context(), wait); err != nil {
				return nil, err
			}
			continue
		}
		if n >= maxRetries || !t.Policy.IsRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		wait := t.Policy.Backoff(n)
		if ra := retryAfter(resp.Header.Get("Retry-After")); ra > wait {
			wait = ra
		}

		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if t.LogFn != nil {
			t.LogFn(n+1, maxRetries+1, wait, &transportStatus{code: resp.StatusCode})
		}

		if err := sleep(req.Context(), wait); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type transportStatus struct {
	code int
}

func (e *transportStatus) Error() string {
	return "transient HTTP status " + strconv.Itoa(e.code)
}

func (e *transportStatus) HTTPStatus() int { return e.code }
