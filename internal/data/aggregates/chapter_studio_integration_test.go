package aggregates_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/memoir-studio-backend/internal/data/aggregates"
	aggtest "github.com/yungbote/memoir-studio-backend/internal/data/aggregates/testutil"
	"github.com/yungbote/memoir-studio-backend/internal/data/repos"
	repotest "github.com/yungbote/memoir-studio-backend/internal/data/repos/testutil"
	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
)

func newStudioAggregate(t *testing.T, runner aggregates.TxRunner) (aggregates.ChapterStudioAggregate, repos.ChapterStudioStateRepo) {
	t.Helper()
	db := repotest.DB(t)
	log := repotest.Logger(t)
	states := repos.NewChapterStudioStateRepo(db, log)
	if runner == nil {
		runner = aggregates.NewGormTxRunner(db)
	}
	agg := aggregates.NewChapterStudioAggregate(aggregates.ChapterStudioAggregateDeps{
		Base:   aggregates.BaseDeps{DB: db, Log: log, Runner: runner},
		States: states,
	})
	return agg, states
}

func TestChapterStudioMutate_CreatesNotStartedRow(t *testing.T) {
	agg, _ := newStudioAggregate(t, nil)
	chapterID := uuid.New()

	st, changed, err := agg.Mutate(context.Background(), "", chapterID, func(_ dbctx.Context, st *types.ChapterStudioState) (bool, error) {
		return false, nil
	})
	if err != nil || changed {
		t.Fatalf("Mutate: changed=%v err=%v", changed, err)
	}
	if st == nil || st.Status != types.StudioStatusNotStarted || st.ChapterInstanceID != chapterID {
		t.Fatalf("state: %+v", st)
	}
}

func TestChapterStudioMarkEditedAndFinalize(t *testing.T) {
	agg, states := newStudioAggregate(t, nil)
	ctx := context.Background()
	chapterID := uuid.New()
	n1, n2 := uuid.New(), uuid.New()

	if _, err := agg.MarkFinalized(ctx, domainagg.MarkStudioFinalizedInput{ChapterInstanceID: chapterID}); !studio.IsCode(err, studio.CodeInvalidAction) {
		t.Fatalf("finalize not_started: want INVALID_TRANSITION got %v", err)
	}

	_, _, err := agg.Mutate(ctx, "", chapterID, func(_ dbctx.Context, st *types.ChapterStudioState) (bool, error) {
		st.SetNodes([]types.StableNode{
			{NodeID: n1, StableNodeKey: "k1", PageTemplateID: "body", SlotID: "p1", NodeType: types.NodeTypeText},
			{NodeID: n2, StableNodeKey: "k2", PageTemplateID: "body", SlotID: "p2", NodeType: types.NodeTypeText},
		})
		studio.PromoteOnPopulate(st, st.UpdatedAt)
		return true, nil
	})
	if err != nil {
		t.Fatalf("seed populated: %v", err)
	}

	res, err := agg.MarkEdited(ctx, domainagg.MarkStudioEditedInput{ChapterInstanceID: chapterID, NodeID: uuid.New()})
	if err != nil || res.Changed || res.Status != types.StudioStatusPopulated {
		t.Fatalf("MarkEdited foreign node: %+v err=%v", res, err)
	}

	res, err = agg.MarkEdited(ctx, domainagg.MarkStudioEditedInput{ChapterInstanceID: chapterID, NodeID: n1})
	if err != nil || !res.Changed || res.FromStatus != types.StudioStatusPopulated || res.Status != types.StudioStatusEdited {
		t.Fatalf("MarkEdited: %+v err=%v", res, err)
	}

	st, err := states.GetByChapterID(dbctx.Context{Ctx: ctx}, chapterID)
	if err != nil || st == nil {
		t.Fatalf("GetByChapterID: %v", err)
	}
	nodes := st.Nodes()
	if !nodes[0].UserEdited || nodes[1].UserEdited {
		t.Fatalf("edit flags: %+v", nodes)
	}

	res, err = agg.MarkFinalized(ctx, domainagg.MarkStudioFinalizedInput{ChapterInstanceID: chapterID})
	if err != nil || !res.Changed || res.Status != types.StudioStatusFinalized {
		t.Fatalf("MarkFinalized: %+v err=%v", res, err)
	}
	res, err = agg.MarkFinalized(ctx, domainagg.MarkStudioFinalizedInput{ChapterInstanceID: chapterID})
	if err != nil || res.Changed || res.Status != types.StudioStatusFinalized {
		t.Fatalf("MarkFinalized twice: %+v err=%v", res, err)
	}

	res, err = agg.MarkEdited(ctx, domainagg.MarkStudioEditedInput{ChapterInstanceID: chapterID, NodeID: n2})
	if err != nil || res.Status != types.StudioStatusFinalized {
		t.Fatalf("MarkEdited after finalize: %+v err=%v", res, err)
	}
}

func TestChapterStudioMutate_RollsBackOnCommitFailure(t *testing.T) {
	db := repotest.DB(t)
	runner := &aggtest.FailingTxRunner{Inner: aggregates.NewGormTxRunner(db), FailCommits: 1}
	log := repotest.Logger(t)
	states := repos.NewChapterStudioStateRepo(db, log)
	agg := aggregates.NewChapterStudioAggregate(aggregates.ChapterStudioAggregateDeps{
		Base:   aggregates.BaseDeps{DB: db, Log: log, Runner: runner},
		States: states,
	})
	ctx := context.Background()
	chapterID := uuid.New()

	_, _, err := agg.Mutate(ctx, "", chapterID, func(_ dbctx.Context, st *types.ChapterStudioState) (bool, error) {
		st.DraftFingerprint = "lost"
		return true, nil
	})
	if err == nil {
		t.Fatalf("expected injected failure")
	}
	st, err := states.GetByChapterID(dbctx.Context{Ctx: ctx}, chapterID)
	if err != nil {
		t.Fatalf("GetByChapterID: %v", err)
	}
	if st != nil {
		t.Fatalf("rolled back mutation left a row: %+v", st)
	}

	bodyErr := errors.New("body failed")
	_, _, err = agg.Mutate(ctx, "", chapterID, func(_ dbctx.Context, _ *types.ChapterStudioState) (bool, error) {
		return false, bodyErr
	})
	if !errors.Is(err, bodyErr) {
		t.Fatalf("expected body error in chain, got %v", err)
	}
}
