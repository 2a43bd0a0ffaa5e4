package generation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/memoir-studio-backend/internal/data/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/data/repos"
	repotest "github.com/yungbote/memoir-studio-backend/internal/data/repos/testutil"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/generation"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
)

func TestReaperSweepExpiresAbandonedRows(t *testing.T) {
	db := repotest.DB(t)
	log := repotest.Logger(t)
	ctx := context.Background()
	drafts := repos.NewDraftVersionRepo(db, log)
	illus := repos.NewIllustrationVersionRepo(db, log)
	versions := aggregates.NewGenerationVersionAggregate(aggregates.GenerationVersionAggregateDeps{
		Base:          aggregates.BaseDeps{DB: db, Log: log},
		Drafts:        drafts,
		Illustrations: illus,
	})

	chapterID := uuid.New()
	stuck := repotest.SeedVersion(t, ctx, db, studio.VersionKindDraft, chapterID, 1, studio.VersionStatusGenerating, studio.DraftPayload{})

	reaper := &generation.Reaper{Log: log, Versions: versions}
	reaper.Now = func() time.Time { return time.Now().UTC() }
	reaper.Sweep(ctx)
	if row, _ := drafts.GetByID(dbctx.Context{Ctx: ctx}, stuck.ID); row == nil || row.Status != studio.VersionStatusGenerating {
		t.Fatalf("live lease reaped: %+v", row)
	}

	reaper.Now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	if n := reaper.Sweep(ctx); n < 1 {
		t.Fatalf("expected the expired row to be reaped, got %d", n)
	}
	row, err := drafts.GetByID(dbctx.Context{Ctx: ctx}, stuck.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Status != studio.VersionStatusError {
		t.Fatalf("status %s", row.Status)
	}
	if ws := studio.DecodeWarnings(row.Warnings); len(ws) != 1 || ws[0].Code != aggregates.WarningLeaseExpired {
		t.Fatalf("warnings: %+v", ws)
	}
}
