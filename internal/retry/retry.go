package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"
)

// ErrExhausted is returned by Do when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// LogFunc is a callback for logging retry attempts
type LogFunc func(attempt int, maxAttempts int, backoff time.Duration, err error)

// Policy describes how external calls are retried. Two layers use it: Do runs
// a fixed number of attempts with a per-attempt timeout, and Transport retries
// transient HTTP status codes underneath each attempt.
type Policy struct {
	// MaxAttempts is the number of attempts Do makes before giving up.
	MaxAttempts int
	// Timeout bounds each individual attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
	// TransportRetries is how many extra times Transport re-sends a request
	// that came back with a retryable status.
	TransportRetries int
	// InitialBackoff is the first Transport backoff; it doubles after each retry.
	InitialBackoff time.Duration
	// RetryableStatus lists HTTP status codes Transport treats as transient.
	RetryableStatus []int
}

// DefaultRetryableStatus are the transient HTTP status codes.
var DefaultRetryableStatus = []int{429, 500, 502, 503, 504}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		Timeout:          10 * time.Second,
		TransportRetries: 5,
		InitialBackoff:   time.Second,
		RetryableStatus:  slices.Clone(DefaultRetryableStatus),
	}
}

// NoDelay returns a policy with the same attempt counts as p but no waiting,
// for tests.
func (p Policy) NoDelay() Policy {
	p.InitialBackoff = 0
	return p
}

// IsRetryableStatus reports whether code is in the policy's retryable set.
func (p Policy) IsRetryableStatus(code int) bool {
	statuses := p.RetryableStatus
	if statuses == nil {
		statuses = DefaultRetryableStatus
	}
	return slices.Contains(statuses, code)
}

// Backoff returns the wait before transport retry n (0-based).
func (p Policy) Backoff(n int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	return p.InitialBackoff * time.Duration(1<<n)
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do stops retrying immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do executes fn up to p.MaxAttempts times without sleeping between attempts.
// Each attempt receives a context bounded by p.Timeout. Errors wrapped with
// Permanent and cancellation of ctx end the loop early.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, logFn LogFunc) error {
	return DoPaced(ctx, p, nil, fn, logFn)
}

// DoPaced is Do with wait called on ctx before every attempt, ahead of the
// attempt's own timeout. A wait error is returned as is, without further
// attempts.
func DoPaced(ctx context.Context, p Policy, wait func(ctx context.Context) error, fn func(ctx context.Context) error, logFn LogFunc) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		if wait != nil {
			if err := wait(ctx); err != nil {
				return err
			}
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		lastErr = fn(attemptCtx)
		cancel()

		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			var perm *permanentError
			errors.As(lastErr, &perm)
			return perm.err
		}
		if logFn != nil && attempt < maxAttempts {
			logFn(attempt, maxAttempts, 0, lastErr)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}

// httpStatusError is implemented by errors that carry an HTTP status code.
type httpStatusError interface {
	HTTPStatus() int
}

// IsRetryable returns true if the error is a transient error that should be retried.
// This includes network timeouts, 5xx server errors and rate limiting.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Check for timeout errors
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Check for URL errors (connection refused, DNS errors, etc.)
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatus()
		return code >= 500 || code == 429
	}

	// Check for common transient error messages
	errStr := err.Error()
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "temporary failure") {
		return true
	}

	return false
}

// IsRateLimited returns true if the error indicates rate limiting (HTTP 429).
func IsRateLimited(err error) bool {
	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatus() == 429
	}
	return false
}
