package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/memoir-studio-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/canvasevents"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/generation"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/mediacache"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/population"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/ratelimit"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/templates"
	"github.com/yungbote/memoir-studio-backend/internal/observability"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
	"github.com/yungbote/memoir-studio-backend/internal/services"
)

type Services struct {
	Versions  domainagg.GenerationVersionAggregate
	Studio    aggregates.ChapterStudioAggregate
	Templates *templates.Resolver
	Media     *mediacache.Cache

	Population *population.Engine
	Generation *generation.Runner
	Reaper     *generation.Reaper
	EditEvents *canvasevents.Observer

	Notifier      services.StudioNotifier
	StudioService services.StudioService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	base := aggregates.BaseDeps{
		DB:    db,
		Log:   log,
		Hooks: aggregates.NewObservabilityHooks(metrics),
	}
	versions := aggregates.NewGenerationVersionAggregate(aggregates.GenerationVersionAggregateDeps{
		Base:          base,
		Drafts:        repos.Drafts,
		Illustrations: repos.Illustrations,
	})
	studioAgg := aggregates.NewChapterStudioAggregate(aggregates.ChapterStudioAggregateDeps{
		Base:   base,
		States: repos.StudioStates,
	})

	registry, err := templates.Load(cfg.TemplatesPath)
	if err != nil {
		return Services{}, fmt.Errorf("load studio templates: %w", err)
	}
	resolver := templates.NewResolver(registry, repos.ChapterTemplate)

	media := mediacache.New(mediacache.Deps{
		Log:      log,
		Assets:   repos.MediaAssets,
		Store:    clients.MediaStore,
		Metrics:  metrics,
		MaxBytes: cfg.MediaMaxBytes,
	})

	engine := population.New(population.Deps{
		Log:           log,
		Metrics:       metrics,
		Studio:        studioAgg,
		Drafts:        repos.Drafts,
		Illustrations: repos.Illustrations,
		Media:         repos.MediaAssets,
		Canvas:        repos.Canvas,
		Slots:         resolver,
	})

	notifier := services.NewStudioNotifier(log, clients.Bus, cfg.StatusChannel, cfg.GenerationChannel)

	rateCfg := ratelimit.Config{Limit: cfg.RateLimit, Window: cfg.RateWindow}
	var limiter ratelimit.Limiter
	if clients.Redis != nil {
		limiter = ratelimit.NewRedis(clients.Redis, rateCfg)
	} else {
		limiter = ratelimit.NewMemory(rateCfg)
	}

	genDeps := generation.Deps{
		Log:               log,
		Metrics:           metrics,
		Versions:          versions,
		Limiter:           limiter,
		Slots:             resolver,
		Media:             media,
		LeaseTTL:          cfg.LeaseTTL,
		Timeout:           cfg.GenerationTimeout,
		CandidatesPerSlot: cfg.CandidatesPerSlot,
		OnFinished:        notifier.GenerationFinished,
	}
	fetchers := map[string]services.SourceFetcher{}
	if clients.OpenAI != nil {
		genDeps.Writer = generation.OpenAIDraftWriter{Client: clients.OpenAI}
	}
	if clients.Unsplash != nil {
		searcher := generation.UnsplashSearcher{Client: clients.Unsplash}
		genDeps.Images = searcher
		fetchers["unsplash"] = searcher
	}
	runner := generation.NewRunner(genDeps)

	reaper := &generation.Reaper{
		Log:      log,
		Metrics:  metrics,
		Versions: versions,
		Interval: cfg.ReaperInterval,
		Batch:    cfg.ReaperBatch,
	}

	svc := services.NewStudioService(services.StudioServiceDeps{
		Log:                 log,
		Metrics:             metrics,
		Versions:            versions,
		Drafts:              repos.Drafts,
		Illustrations:       repos.Illustrations,
		States:              repos.StudioStates,
		Studio:              studioAgg,
		Media:               media,
		Fetchers:            fetchers,
		Population:          engine,
		Generation:          runner,
		Canvas:              repos.Canvas,
		Templates:           resolver,
		Notifier:            notifier,
		AI:                  clients.OpenAI,
		LeaseTTL:            cfg.LeaseTTL,
		PopulateConcurrency: cfg.PopulateConcurrency,
	})

	observer := &canvasevents.Observer{
		Log:     log,
		Bus:     clients.Bus,
		Channel: cfg.EditChannel,
		Nodes:   repos.Canvas,
		Studio:  studioAgg,
		OnTransition: func(ctx context.Context, res domainagg.StudioTransitionResult) {
			svc.NotifyTransition(ctx, res)
		},
	}

	return Services{
		Versions:      versions,
		Studio:        studioAgg,
		Templates:     resolver,
		Media:         media,
		Population:    engine,
		Generation:    runner,
		Reaper:        reaper,
		EditEvents:    observer,
		Notifier:      notifier,
		StudioService: svc,
	}, nil
}
