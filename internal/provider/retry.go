package provider

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// RetryPolicy bounds how transient HTTP failures are retried.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy is used by the native client when nothing is configured.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:  3,
	BaseDelay: 500 * time.Millisecond,
	MaxDelay:  8 * time.Second,
}

// NewHTTPClient returns a client whose transport retries 429/5xx responses
// and network timeouts with jittered exponential backoff.
func NewHTTPClient(policy RetryPolicy, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &retryingTransport{next: http.DefaultTransport, policy: policy},
	}
}

type retryingTransport struct {
	next   http.RoundTripper
	policy RetryPolicy
}

func (t *retryingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var (
		prev    *http.Response
		prevErr error
	)
	for try := 0; try <= t.policy.Attempts; try++ {
		if try > 0 {
			if err := wait(req.Context(), t.delay(try)); err != nil {
				if prev != nil {
					prev.Body.Close()
				}
				return nil, err
			}
		}

		out := req
		if try > 0 {
			var err error
			if out, err = rewind(req); err != nil {
				if prev != nil {
					return prev, nil
				}
				return nil, prevErr
			}
		}

		resp, err := t.next.RoundTrip(out)
		if err != nil {
			if !transientErr(err) {
				return nil, err
			}
			prevErr = err
			continue
		}
		if !transientStatus(resp.StatusCode) {
			if prev != nil {
				prev.Body.Close()
			}
			return resp, nil
		}
		if prev != nil {
			prev.Body.Close()
		}
		prev, prevErr = resp, nil
	}
	if prev != nil {
		return prev, nil
	}
	return nil, prevErr
}

// delay grows as BaseDelay*2^(try-1), capped at MaxDelay, with ±25% jitter.
func (t *retryingTransport) delay(try int) time.Duration {
	d := float64(t.policy.BaseDelay) * math.Pow(2, float64(try-1))
	if d > float64(t.policy.MaxDelay) {
		d = float64(t.policy.MaxDelay)
	}
	return time.Duration(d + d*0.25*(rand.Float64()*2-1)) //nolint:gosec
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func transientErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
