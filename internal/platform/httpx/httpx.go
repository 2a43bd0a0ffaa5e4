// Package httpx holds the retry policy shared by outbound API clients.
package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is implemented by client errors that carry an HTTP status.
type StatusError interface {
	HTTPStatusCode() int
}

// Transient reports whether a failed call may succeed if repeated: timeouts,
// throttling and 5xx responses. A cancelled context never is.
func Transient(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var se StatusError
	if errors.As(err, &se) {
		code := se.HTTPStatusCode()
		return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
	}
	return false
}

// Policy is capped exponential backoff with +/-20% jitter. A Retry-After header on
// the failed response replaces the computed wait, still capped by Max.
type Policy struct {
	Retries int
	Base    time.Duration
	Max     time.Duration
	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Do runs call until it succeeds, fails permanently or the retries are spent.
func (p Policy) Do(ctx context.Context, call func(ctx context.Context) (*http.Response, error)) error {
	wait := p.Base
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := call(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.Retries || !Transient(err) {
			return err
		}
		d := jitter(p.capped(retryAfter(resp, wait)))
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, d, err)
		}
		if err := sleep(ctx, d); err != nil {
			return err
		}
		wait *= 2
	}
}

func (p Policy) capped(d time.Duration) time.Duration {
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	if resp == nil {
		return fallback
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
