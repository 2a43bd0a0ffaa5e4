// Package ratelimit bounds generation starts per subject with fixed-window counters.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const keyPrefix = "ratelimit:gen"

type Config struct {
	// Limit <= 0 disables limiting.
	Limit  int
	Window time.Duration
}

type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, subject string) (Decision, error)
}

func windowStart(now time.Time, window time.Duration) time.Time {
	return now.UTC().Truncate(window)
}

// WindowKey is the counter key of subject in the window containing now.
func WindowKey(subject string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("%s:%s:%d", keyPrefix, normalizeSubject(subject), windowStart(now, window).Unix())
}

func normalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "anonymous"
	}
	return subject
}

func decide(cfg Config, count int64, now time.Time) Decision {
	reset := windowStart(now, cfg.Window).Add(cfg.Window)
	d := Decision{Allowed: count <= int64(cfg.Limit), Count: count, Limit: cfg.Limit, ResetAt: reset}
	if !d.Allowed {
		d.RetryAfter = reset.Sub(now)
	}
	return d
}

func normalize(cfg Config) Config {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return cfg
}
