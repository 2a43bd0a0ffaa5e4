package ratelimit

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis counts in shared keys so every service instance sees the same window.
type Redis struct {
	rdb goredis.Cmdable
	cfg Config
	now func() time.Time
}

func NewRedis(rdb goredis.Cmdable, cfg Config) *Redis {
	return &Redis{rdb: rdb, cfg: normalize(cfg), now: time.Now}
}

func (l *Redis) Allow(ctx context.Context, subject string) (Decision, error) {
	now := l.now().UTC()
	if l.cfg.Limit <= 0 {
		return Decision{Allowed: true}, nil
	}
	key := WindowKey(subject, now, l.cfg.Window)
	var incr *goredis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		// Keep the key a little past the window so late readers still see it.
		p.Expire(ctx, key, l.cfg.Window+time.Minute)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return decide(l.cfg, incr.Val(), now), nil
}
