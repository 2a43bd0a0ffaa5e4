package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is a single-process limiter used when Redis is not configured.
type Memory struct {
	mu     sync.Mutex
	cfg    Config
	counts map[string]int64
	window time.Time
	now    func() time.Time
}

func NewMemory(cfg Config) *Memory {
	return &Memory{cfg: normalize(cfg), counts: map[string]int64{}, now: time.Now}
}

func (l *Memory) Allow(ctx context.Context, subject string) (Decision, error) {
	now := l.now().UTC()
	if l.cfg.Limit <= 0 {
		return Decision{Allowed: true}, nil
	}
	start := windowStart(now, l.cfg.Window)
	l.mu.Lock()
	defer l.mu.Unlock()
	if !start.Equal(l.window) {
		l.window = start
		l.counts = map[string]int64{}
	}
	key := WindowKey(subject, now, l.cfg.Window)
	l.counts[key]++
	return decide(l.cfg, l.counts[key], now), nil
}
