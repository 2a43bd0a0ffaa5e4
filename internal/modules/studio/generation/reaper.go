package generation

import (
	"context"
	"time"

	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/observability"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

const defaultReapBatch = 100

// Reaper expires generating rows whose lease ran out so a crashed worker never blocks
// a chapter forever.
type Reaper struct {
	Log      *logger.Logger
	Metrics  *observability.Metrics
	Versions domainagg.GenerationVersionAggregate
	Interval time.Duration
	Batch    int
	Now      func() time.Time
}

// Run sweeps until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		r.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Sweep reaps both version kinds once and returns how many rows were expired.
func (r *Reaper) Sweep(ctx context.Context) int {
	log := r.Log
	if log == nil {
		log = logger.Nop()
	}
	batch := r.Batch
	if batch <= 0 {
		batch = defaultReapBatch
	}
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now()
	}
	total := 0
	for _, kind := range []studio.VersionKind{studio.VersionKindDraft, studio.VersionKindIllustration} {
		res, err := r.Versions.ReapExpired(ctx, domainagg.ReapExpiredInput{Kind: kind, Now: now, Limit: batch})
		if err != nil {
			log.Warn("reap expired generations failed", "kind", kind, "error", err)
			continue
		}
		if n := len(res.ReapedIDs); n > 0 {
			total += n
			r.Metrics.AddGenerationReaped(string(kind), n)
			log.Info("reaped expired generations", "kind", kind, "count", n)
		}
	}
	return total
}
