package bus

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

type redisBus struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewRedisBus publishes over Redis pub/sub. The client is owned by the caller.
func NewRedisBus(log *logger.Logger, rdb *goredis.Client) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &redisBus{log: log.With("service", "RedisEventBus"), rdb: rdb}, nil
}

func (b *redisBus) Publish(ctx context.Context, channel string, msg any) error {
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, raw).Err()
}

func (b *redisBus) Subscribe(ctx context.Context, channel string, onMsg func(payload []byte)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	sub := b.rdb.Subscribe(ctx, channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					b.log.Warn("redis subscription closed", "channel", channel)
					return
				}
				onMsg([]byte(m.Payload))
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error { return nil }
