package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	var logged []int
	err := Do(context.Background(), Policy{MaxAttempts: 3}, func(ctx context.Context) error {
		calls++
		return errors.New("always fails")
	}, func(attempt, maxAttempts int, backoff time.Duration, err error) {
		logged = append(logged, attempt)
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(logged) != 2 {
		t.Errorf("expected 2 retry log calls, got %d", len(logged))
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("not found")
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5}, func(ctx context.Context) error {
		calls++
		return Permanent(sentinel)
	}, nil)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if IsPermanent(err) {
		t.Error("returned error should be unwrapped from Permanent")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_PerAttemptTimeout(t *testing.T) {
	p := Policy{MaxAttempts: 2, Timeout: 20 * time.Millisecond}
	calls := 0
	start := time.Now()
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("attempts took too long: %v", elapsed)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 3}, func(ctx context.Context) error {
		calls++
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no calls, got %d", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"500", statusErr(500), true},
		{"503 wrapped", fmt.Errorf("fetch: %w", statusErr(503)), true},
		{"429", statusErr(429), true},
		{"404", statusErr(404), false},
		{"deadline", context.DeadlineExceeded, true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"plain", errors.New("bad json"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(statusErr(429)) {
		t.Error("429 should be rate limited")
	}
	if IsRateLimited(statusErr(500)) {
		t.Error("500 should not be rate limited")
	}
}

func TestPolicy_IsRetryableStatus(t *testing.T) {
	p := DefaultPolicy()
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !p.IsRetryableStatus(code) {
			t.Errorf("expected %d to be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404, 501} {
		if p.IsRetryableStatus(code) {
			t.Errorf("expected %d not to be retryable", code)
		}
	}
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for n, w := range want {
		if got := p.Backoff(n); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", n, got, w)
		}
	}
	if got := p.NoDelay().Backoff(3); got != 0 {
		t.Errorf("NoDelay backoff = %v, want 0", got)
	}
}

func TestTransport_RetriesTransientStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := DefaultPolicy().NoDelay()
	client := &http.Client{Transport: NewTransport(nil, p, nil)}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if hits != 3 {
		t.Errorf("expected 3 hits, got %d", hits)
	}
}

func TestTransport_GivesUpAfterTransportRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := Policy{TransportRetries: 2}
	client := &http.Client{Transport: NewTransport(nil, p, nil)}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected final 502, got %d", resp.StatusCode)
	}
	if hits != 3 {
		t.Errorf("expected 3 hits (1 + 2 retries), got %d", hits)
	}
}

func TestTransport_DoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewTransport(nil, DefaultPolicy().NoDelay(), nil)}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if hits != 1 {
		t.Errorf("expected 1 hit, got %d", hits)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTransport_RetriesNetworkErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var calls int32
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, timeoutErr{}
		}
		return http.DefaultTransport.RoundTrip(r)
	})

	var logged int
	client := &http.Client{Transport: NewTransport(base, DefaultPolicy().NoDelay(), func(attempt, maxAttempts int, backoff time.Duration, err error) {
		logged++
	})}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if calls != 3 || logged != 2 {
		t.Errorf("calls = %d, logged = %d, want 3 and 2", calls, logged)
	}
}

func TestTransport_DoesNotRetryPermanentNetworkErrors(t *testing.T) {
	var calls int32
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("tls: bad certificate")
	})

	client := &http.Client{Transport: NewTransport(base, DefaultPolicy().NoDelay(), nil)}
	if _, err := client.Get("http://example.invalid/"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoPaced_WaitsBeforeEachAttemptOnCallerContext(t *testing.T) {
	var waits int
	err := DoPaced(context.Background(), Policy{MaxAttempts: 3, Timeout: time.Millisecond}, func(ctx context.Context) error {
		waits++
		if _, ok := ctx.Deadline(); ok {
			t.Error("wait should not run under the attempt timeout")
		}
		return nil
	}, func(ctx context.Context) error {
		return errors.New("boom")
	}, nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if waits != 3 {
		t.Errorf("waits = %d, want 3", waits)
	}
}

func TestDoPaced_WaitErrorStops(t *testing.T) {
	sentinel := errors.New("limiter")
	calls := 0
	err := DoPaced(context.Background(), Policy{MaxAttempts: 3}, func(ctx context.Context) error {
		return sentinel
	}, func(ctx context.Context) error {
		calls++
		return nil
	}, nil)
	if err != sentinel || calls != 0 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRetryAfter(t *testing.T) {
	if got := retryAfter("2"); got != 2*time.Second {
		t.Errorf("retryAfter(2) = %v", got)
	}
	if got := retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"); got != 0 {
		t.Errorf("HTTP-date form should be ignored, got %v", got)
	}
	if got := retryAfter(""); got != 0 {
		t.Errorf("empty header = %v", got)
	}
}
