package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/memoir-studio-backend/internal/http"
	httpH "github.com/yungbote/memoir-studio-backend/internal/http/handlers"
	"github.com/yungbote/memoir-studio-backend/internal/observability"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Studio   *httpH.StudioHandler
	Realtime *httpH.RealtimeHandler
}

type dbPinger struct{ db *gorm.DB }

func (p dbPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func wireHandlers(log *logger.Logger, cfg Config, services Services, clients Clients, db *gorm.DB) Handlers {
	log.Info("Wiring handlers...")
	realtime := httpH.NewRealtimeHandler(log, clients.Bus)
	realtime.StatusChannel = cfg.StatusChannel
	realtime.GenerationChannel = cfg.GenerationChannel

	checks := map[string]httpH.Pinger{"db": dbPinger{db: db}}
	if clients.Redis != nil {
		rdb := clients.Redis
		checks["redis"] = pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	return Handlers{
		Health:   httpH.NewHealthHandler(checks),
		Studio:   httpH.NewStudioHandler(services.StudioService),
		Realtime: realtime,
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		CORSOrigins:     cfg.CORSOrigins,
		HealthHandler:   handlers.Health,
		StudioHandler:   handlers.Studio,
		RealtimeHandler: handlers.Realtime,
	})
}
