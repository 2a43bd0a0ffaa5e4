package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/mediacache"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
	"github.com/yungbote/memoir-studio-backend/internal/platform/openai"
	"github.com/yungbote/memoir-studio-backend/internal/platform/redisclient"
	"github.com/yungbote/memoir-studio-backend/internal/platform/unsplash"
	"github.com/yungbote/memoir-studio-backend/internal/realtime/bus"
)

type Clients struct {
	Redis      *goredis.Client
	Bus        bus.Bus
	OpenAI     openai.Client
	Unsplash   unsplash.Client
	MediaStore mediacache.ObjectStore
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.New(ctx, log, cfg.RedisAddr)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		b, err := bus.NewRedisBus(log, rdb)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		out.Redis = rdb
		out.Bus = b
	} else {
		log.Warn("REDIS_ADDR not set; using in-process event bus and rate limiter")
		out.Bus = bus.NewMemoryBus()
	}

	// Openai
	if oa, err := openai.NewClient(log, openai.ConfigFromEnv()); err != nil {
		log.Warn("OpenAI client disabled; draft generation and ask_ai unavailable", "error", err)
	} else {
		out.OpenAI = oa
	}

	// Unsplash
	if us, err := unsplash.NewClient(log, unsplash.ConfigFromEnv()); err != nil {
		log.Warn("Unsplash client disabled; illustration search unavailable", "error", err)
	} else {
		out.Unsplash = us
	}

	// Media
	store, err := resolveMediaStore(ctx, log, cfg)
	if err != nil {
		out.Close()
		return Clients{}, err
	}
	out.MediaStore = store

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
