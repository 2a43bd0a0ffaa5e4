package population_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/memoir-studio-backend/internal/data/aggregates"
	aggtest "github.com/yungbote/memoir-studio-backend/internal/data/aggregates/testutil"
	"github.com/yungbote/memoir-studio-backend/internal/data/repos"
	repotest "github.com/yungbote/memoir-studio-backend/internal/data/repos/testutil"
	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/population"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/templates"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
)

type fixture struct {
	ctx      context.Context
	db       *gorm.DB
	engine   *population.Engine
	studio   aggregates.ChapterStudioAggregate
	states   repos.ChapterStudioStateRepo
	nodes    repos.CanvasNodeRepo
	resolver *templates.Resolver
}

func newFixture(t *testing.T, wrap func(aggregates.TxRunner) aggregates.TxRunner) *fixture {
	t.Helper()
	db := repotest.DB(t)
	log := repotest.Logger(t)

	var runner aggregates.TxRunner = aggregates.NewGormTxRunner(db)
	if wrap != nil {
		runner = wrap(runner)
	}
	states := repos.NewChapterStudioStateRepo(db, log)
	agg := aggregates.NewChapterStudioAggregate(aggregates.ChapterStudioAggregateDeps{
		Base:   aggregates.BaseDeps{DB: db, Log: log, Runner: runner},
		States: states,
	})
	reg, err := templates.Load("")
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	resolver := templates.NewResolver(reg, repos.NewChapterTemplateRepo(db, log))
	nodes := repos.NewCanvasNodeRepo(db, log)

	engine := population.New(population.Deps{
		Log:           log,
		Studio:        agg,
		Drafts:        repos.NewDraftVersionRepo(db, log),
		Illustrations: repos.NewIllustrationVersionRepo(db, log),
		Media:         repos.NewMediaAssetRepo(db, log),
		Canvas:        repos.NewCanvasStore(db, log),
		Slots:         resolver,
	})
	return &fixture{
		ctx:      context.Background(),
		db:       db,
		engine:   engine,
		studio:   agg,
		states:   states,
		nodes:    nodes,
		resolver: resolver,
	}
}

func (f *fixture) dbc() dbctx.Context { return dbctx.Context{Ctx: f.ctx} }

func (f *fixture) node(t *testing.T, chapterID uuid.UUID, page, slot string) *types.CanvasNode {
	t.Helper()
	n, err := f.nodes.GetByStableKey(f.dbc(), types.StableNodeKey(types.ChapterKey(chapterID), page, slot))
	if err != nil {
		t.Fatalf("GetByStableKey: %v", err)
	}
	return n
}

func (f *fixture) state(t *testing.T, chapterID uuid.UUID) *types.ChapterStudioState {
	t.Helper()
	st, err := f.states.GetByChapterID(f.dbc(), chapterID)
	if err != nil || st == nil {
		t.Fatalf("GetByChapterID: %v %+v", err, st)
	}
	return st
}

func (f *fixture) seedScenario(t *testing.T, chapterID uuid.UUID) *types.MediaAsset {
	t.Helper()
	repotest.SeedDraft(t, f.ctx, f.db, chapterID, 1, studio.DraftSection{SectionID: "p1", Text: "Grew up in Ohio."})
	m := repotest.SeedMediaAsset(t, f.ctx, f.db, "unsplash", uuid.NewString())
	repotest.SeedIllustrations(t, f.ctx, f.db, chapterID, 1, studio.IllustrationSlot{SlotID: "body_img", MediaAssetID: m.ID})
	return m
}

func textOf(t *testing.T, n *types.CanvasNode) string {
	t.Helper()
	var c types.TextContent
	if err := json.Unmarshal(n.Content, &c); err != nil {
		t.Fatalf("decode content: %v", err)
	}
	return c.Text
}

func hasWarning(ws []studio.Warning, code, contains string) bool {
	for _, w := range ws {
		if w.Code == code && strings.Contains(w.Message, contains) {
			return true
		}
	}
	return false
}

func TestPopulateChapterCreatesThenReuses(t *testing.T) {
	f := newFixture(t, nil)
	chapterID := uuid.New()
	m := f.seedScenario(t, chapterID)

	res := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if !res.OK {
		t.Fatalf("populate: %+v", res.Error)
	}
	if res.Reused || res.Status != types.StudioStatusPopulated {
		t.Fatalf("unexpected result: %+v", res)
	}
	p1 := f.node(t, chapterID, "body", "p1")
	img := f.node(t, chapterID, "body", "body_img")
	if p1 == nil || img == nil {
		t.Fatalf("expected p1 and body_img nodes, got %v %v", p1, img)
	}
	if len(res.CreatedNodeIDs) != 2 || res.CreatedNodeIDs[0] != p1.ID || res.CreatedNodeIDs[1] != img.ID {
		t.Fatalf("created ids: %v want [%s %s]", res.CreatedNodeIDs, p1.ID, img.ID)
	}
	if textOf(t, p1) != "Grew up in Ohio." {
		t.Fatalf("p1 text: %q", textOf(t, p1))
	}
	var ic types.ImageContent
	if err := json.Unmarshal(img.Content, &ic); err != nil {
		t.Fatalf("decode image: %v", err)
	}
	if ic.MediaAssetID == nil || *ic.MediaAssetID != m.ID || ic.URL != m.URL || !ic.Attribution.Complete() {
		t.Fatalf("image content: %+v", ic)
	}
	if f.node(t, chapterID, "cover", "title") != nil {
		t.Fatalf("unmatched slot must stay blank")
	}
	if !hasWarning(res.Warnings, population.WarningSlotUnmatched, "slot title had no matching section; left blank") {
		t.Fatalf("missing unmatched warning: %+v", res.Warnings)
	}

	st := f.state(t, chapterID)
	if st.Status != types.StudioStatusPopulated || st.LastAppliedDraftVersion == nil || *st.LastAppliedDraftVersion != 1 {
		t.Fatalf("state: %+v", st)
	}
	if len(st.Nodes()) != 2 || len(st.Pages()) != 1 {
		t.Fatalf("inventory nodes=%d pages=%d", len(st.Nodes()), len(st.Pages()))
	}

	again := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if !again.OK || !again.Reused {
		t.Fatalf("second populate: %+v", again)
	}
	if len(again.CreatedNodeIDs) != 0 || len(again.UpdatedNodeIDs) != 0 {
		t.Fatalf("second populate wrote nodes: %+v", again)
	}
}

func TestPopulateChapterNotReady(t *testing.T) {
	f := newFixture(t, nil)
	chapterID := uuid.New()

	res := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if res.OK || res.Error.Code != studio.CodeDraftNotReady || !res.Error.Retryable {
		t.Fatalf("want retryable DRAFT_NOT_READY, got %+v", res.Error)
	}
	if !studio.IsCode(res.Err(), studio.CodeDraftNotReady) {
		t.Fatalf("Err(): %v", res.Err())
	}

	repotest.SeedDraft(t, f.ctx, f.db, chapterID, 1, studio.DraftSection{SectionID: "p1", Text: "x"})
	res = f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if res.OK || res.Error.Code != studio.CodeIllustrationsNotReady {
		t.Fatalf("want ILLUSTRATIONS_NOT_READY, got %+v", res.Error)
	}

	if err := f.resolver.SetChapterTemplate(f.dbc(), chapterID, "memoir_text_only_v1"); err != nil {
		t.Fatalf("SetChapterTemplate: %v", err)
	}
	res = f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if !res.OK || len(res.CreatedNodeIDs) != 1 || res.TemplateID != "memoir_text_only_v1" {
		t.Fatalf("text-only populate: %+v", res)
	}
}

func TestPopulateChapterSkipsUserEditedNodes(t *testing.T) {
	f := newFixture(t, nil)
	chapterID := uuid.New()
	if err := f.resolver.SetChapterTemplate(f.dbc(), chapterID, "memoir_text_only_v1"); err != nil {
		t.Fatalf("SetChapterTemplate: %v", err)
	}
	repotest.SeedDraft(t, f.ctx, f.db, chapterID, 1,
		studio.DraftSection{SectionID: "p1", Text: "one"},
		studio.DraftSection{SectionID: "p2", Text: "two"},
	)
	if res := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{}); !res.OK {
		t.Fatalf("populate v1: %+v", res.Error)
	}
	n1 := f.node(t, chapterID, "body", "p1")
	n2 := f.node(t, chapterID, "body", "p2")

	tr, err := f.studio.MarkEdited(f.ctx, domainagg.MarkStudioEditedInput{ChapterInstanceID: chapterID, NodeID: n1.ID})
	if err != nil || tr.Status != types.StudioStatusEdited {
		t.Fatalf("MarkEdited: %+v err=%v", tr, err)
	}

	repotest.SeedDraft(t, f.ctx, f.db, chapterID, 2,
		studio.DraftSection{SectionID: "p1", Text: "one v2"},
		studio.DraftSection{SectionID: "p2", Text: "two v2"},
	)
	res := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if !res.OK {
		t.Fatalf("populate v2: %+v", res.Error)
	}
	if len(res.SkippedNodeIDs) != 1 || res.SkippedNodeIDs[0] != n1.ID {
		t.Fatalf("skipped: %v want [%s]", res.SkippedNodeIDs, n1.ID)
	}
	if len(res.UpdatedNodeIDs) != 1 || res.UpdatedNodeIDs[0] != n2.ID {
		t.Fatalf("updated: %v want [%s]", res.UpdatedNodeIDs, n2.ID)
	}
	if !res.SkippedBecauseEdited {
		t.Fatalf("SkippedBecauseEdited not set: %+v", res)
	}
	if !hasWarning(res.Warnings, population.WarningNodeSkipped, *n1.StableNodeKey) {
		t.Fatalf("missing skipped warning for %s: %+v", *n1.StableNodeKey, res.Warnings)
	}
	if hasWarning(res.Warnings, population.WarningNodeSkipped, *n2.StableNodeKey) {
		t.Fatalf("unedited node reported as skipped: %+v", res.Warnings)
	}
	if res.Status != types.StudioStatusEdited {
		t.Fatalf("status moved backward: %s", res.Status)
	}
	if got := textOf(t, f.node(t, chapterID, "body", "p1")); got != "one" {
		t.Fatalf("edited node overwritten: %q", got)
	}
	if got := textOf(t, f.node(t, chapterID, "body", "p2")); got != "two v2" {
		t.Fatalf("p2 not updated: %q", got)
	}

	repotest.SeedDraft(t, f.ctx, f.db, chapterID, 3, studio.DraftSection{SectionID: "p1", Text: "one v3"})
	res = f.engine.PopulateChapter(f.ctx, chapterID, population.Options{Override: true})
	if !res.OK || len(res.UpdatedNodeIDs) != 1 || res.UpdatedNodeIDs[0] != n1.ID {
		t.Fatalf("override: %+v", res)
	}
	if res.SkippedBecauseEdited || hasWarning(res.Warnings, population.WarningNodeSkipped, "") {
		t.Fatalf("override reported skipped nodes: %+v", res)
	}
	for _, n := range f.state(t, chapterID).Nodes() {
		if n.NodeID == n1.ID && n.UserEdited {
			t.Fatalf("override must clear the edited flag")
		}
	}
}

func TestPopulateChapterRetriesAfterFailedCommit(t *testing.T) {
	var failing *aggtest.FailingTxRunner
	f := newFixture(t, func(inner aggregates.TxRunner) aggregates.TxRunner {
		failing = &aggtest.FailingTxRunner{Inner: inner, FailCommits: 1}
		return failing
	})
	chapterID := uuid.New()
	f.seedScenario(t, chapterID)

	res := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if res.OK || res.Error.Code != studio.CodePopulateFailed || !res.Error.Retryable {
		t.Fatalf("want retryable POPULATE_FAILED, got %+v", res.Error)
	}
	if n := f.node(t, chapterID, "body", "p1"); n != nil {
		t.Fatalf("rolled back population left node %s", n.ID)
	}

	res = f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if !res.OK || len(res.CreatedNodeIDs) != 2 {
		t.Fatalf("retry: %+v", res)
	}
	key := types.StableNodeKey(types.ChapterKey(chapterID), "body", "p1")
	count, err := f.nodes.CountByStableKey(f.dbc(), key)
	if err != nil || count != 1 {
		t.Fatalf("CountByStableKey=%d err=%v", count, err)
	}
	if failing.RolledBack != 1 {
		t.Fatalf("RolledBack=%d", failing.RolledBack)
	}
}

func TestPopulateChapterMissingAttributionIsAtomic(t *testing.T) {
	f := newFixture(t, nil)
	chapterID := uuid.New()
	m := f.seedScenario(t, chapterID)
	if err := f.db.Model(&types.MediaAsset{}).Where("id = ?", m.ID).Update("author_name", "").Error; err != nil {
		t.Fatalf("strip attribution: %v", err)
	}

	res := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if res.OK || res.Error.Code != studio.CodeMissingAttribution || res.Error.Retryable {
		t.Fatalf("want MISSING_ATTRIBUTION, got %+v", res.Error)
	}
	if n := f.node(t, chapterID, "body", "p1"); n != nil {
		t.Fatalf("p1 committed despite failure")
	}
}

func TestPopulateChapterVersionIntegrity(t *testing.T) {
	f := newFixture(t, nil)
	chapterID := uuid.New()
	f.seedScenario(t, chapterID)
	if res := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{}); !res.OK {
		t.Fatalf("populate: %+v", res.Error)
	}

	d2 := repotest.SeedDraft(t, f.ctx, f.db, chapterID, 2, studio.DraftSection{SectionID: "p1", Text: "Moved to Akron."})
	res := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if !res.OK || res.DraftVersion != 2 || len(res.UpdatedNodeIDs) != 1 {
		t.Fatalf("populate v2: %+v", res)
	}
	if st := f.state(t, chapterID); *st.LastAppliedDraftVersion != 2 {
		t.Fatalf("last applied draft: %d", *st.LastAppliedDraftVersion)
	}

	if err := f.db.Table(types.VersionKindDraft.Table()).Where("id = ?", d2.ID).
		Update("payload", datatypes.JSON(`{"sections":[{"section_id":"p1","title":"","text":"tampered"}]}`)).Error; err != nil {
		t.Fatalf("tamper: %v", err)
	}
	res = f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if res.OK || res.Error.Code != studio.CodeFingerprintMismatch {
		t.Fatalf("want FINGERPRINT_MISMATCH, got %+v", res.Error)
	}

	_, _, err := f.studio.Mutate(f.ctx, "", chapterID, func(_ dbctx.Context, st *types.ChapterStudioState) (bool, error) {
		v := 9
		st.LastAppliedDraftVersion = &v
		return true, nil
	})
	if err != nil {
		t.Fatalf("force applied version: %v", err)
	}
	res = f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if res.OK || res.Error.Code != studio.CodeVersionRegression {
		t.Fatalf("want VERSION_REGRESSION, got %+v", res.Error)
	}
}

func TestPopulateChapterLeavesFinalizedCanvas(t *testing.T) {
	f := newFixture(t, nil)
	chapterID := uuid.New()
	f.seedScenario(t, chapterID)
	if res := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{}); !res.OK {
		t.Fatalf("populate: %+v", res.Error)
	}
	if _, err := f.studio.MarkFinalized(f.ctx, domainagg.MarkStudioFinalizedInput{ChapterInstanceID: chapterID}); err != nil {
		t.Fatalf("MarkFinalized: %v", err)
	}
	repotest.SeedDraft(t, f.ctx, f.db, chapterID, 2, studio.DraftSection{SectionID: "p1", Text: "late edit"})

	res := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{Override: true})
	if !res.OK || res.Status != types.StudioStatusFinalized {
		t.Fatalf("finalized populate: %+v", res)
	}
	if len(res.UpdatedNodeIDs) != 0 || len(res.SkippedNodeIDs) != 2 {
		t.Fatalf("finalized canvas touched: %+v", res)
	}
	if !hasWarning(res.Warnings, population.WarningChapterFinalized, "") {
		t.Fatalf("missing finalized warning: %+v", res.Warnings)
	}
	if got := textOf(t, f.node(t, chapterID, "body", "p1")); got != "Grew up in Ohio." {
		t.Fatalf("finalized node changed: %q", got)
	}
}

func TestPopulateManyKeepsOrderAndIsolatesFailures(t *testing.T) {
	f := newFixture(t, nil)
	ready, missing := uuid.New(), uuid.New()
	f.seedScenario(t, ready)

	out := f.engine.PopulateMany(f.ctx, []uuid.UUID{missing, ready}, population.Options{}, 2)
	if len(out) != 2 {
		t.Fatalf("results: %d", len(out))
	}
	if out[0].ChapterInstanceID != missing || out[0].OK || out[0].Error.Code != studio.CodeDraftNotReady {
		t.Fatalf("missing chapter: %+v", out[0])
	}
	if out[1].ChapterInstanceID != ready || !out[1].OK {
		t.Fatalf("ready chapter: %+v", out[1])
	}
}

func TestPopulateChapterFollowsTemplateChange(t *testing.T) {
	f := newFixture(t, nil)
	chapterID := uuid.New()
	repotest.SeedDraft(t, f.ctx, f.db, chapterID, 1,
		studio.DraftSection{SectionID: "p1", Text: "Grew up in Ohio."},
		studio.DraftSection{SectionID: "p3", Text: "Still visit every summer."},
	)
	m := repotest.SeedMediaAsset(t, f.ctx, f.db, "unsplash", uuid.NewString())
	repotest.SeedIllustrations(t, f.ctx, f.db, chapterID, 1, studio.IllustrationSlot{SlotID: "body_img", MediaAssetID: m.ID})

	first := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if !first.OK || first.TemplateID != "memoir_chapter_v1" || len(first.CreatedNodeIDs) != 3 {
		t.Fatalf("populate default template: %+v", first)
	}
	if f.node(t, chapterID, "closing", "p3") == nil {
		t.Fatalf("closing/p3 missing after first populate")
	}

	if err := f.resolver.SetChapterTemplate(f.dbc(), chapterID, "memoir_text_only_v1"); err != nil {
		t.Fatalf("SetChapterTemplate: %v", err)
	}
	res := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if !res.OK || res.Reused {
		t.Fatalf("template change treated as unchanged: %+v", res)
	}
	if res.TemplateID != "memoir_text_only_v1" {
		t.Fatalf("template id: %q", res.TemplateID)
	}
	bodyP3 := f.node(t, chapterID, "body", "p3")
	if bodyP3 == nil {
		t.Fatalf("body/p3 not created after template change")
	}
	if len(res.CreatedNodeIDs) != 1 || res.CreatedNodeIDs[0] != bodyP3.ID {
		t.Fatalf("created: %v want [%s]", res.CreatedNodeIDs, bodyP3.ID)
	}
	if textOf(t, bodyP3) != "Still visit every summer." {
		t.Fatalf("body/p3 text: %q", textOf(t, bodyP3))
	}
	if !hasWarning(res.Warnings, population.WarningNodeOrphaned, "closing:p3") {
		t.Fatalf("old closing/p3 not reported as orphan: %+v", res.Warnings)
	}
	if st := f.state(t, chapterID); st.AppliedTemplateID != "memoir_text_only_v1" || st.LayoutFingerprint == "" {
		t.Fatalf("state layout: template=%q fp=%q", st.AppliedTemplateID, st.LayoutFingerprint)
	}

	again := f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
	if !again.OK || !again.Reused {
		t.Fatalf("repeat populate on new template: %+v", again)
	}
}

func TestPopulateChapterConcurrentCallsCreateEachNodeOnce(t *testing.T) {
	f := newFixture(t, nil)
	chapterID := uuid.New()
	f.seedScenario(t, chapterID)

	const callers = 6
	results := make([]population.Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.engine.PopulateChapter(f.ctx, chapterID, population.Options{})
		}(i)
	}
	wg.Wait()

	creators := 0
	for i, res := range results {
		if !res.OK {
			t.Fatalf("caller %d failed: %+v", i, res.Error)
		}
		if len(res.CreatedNodeIDs) > 0 {
			creators++
			if len(res.CreatedNodeIDs) != 2 {
				t.Fatalf("caller %d created %v", i, res.CreatedNodeIDs)
			}
		}
	}
	if creators != 1 {
		t.Fatalf("%d callers reported created nodes, want 1", creators)
	}

	nodes := f.state(t, chapterID).Nodes()
	if len(nodes) != 2 {
		t.Fatalf("inventory has %d nodes", len(nodes))
	}
	for _, n := range nodes {
		count, err := f.nodes.CountByStableKey(f.dbc(), n.StableNodeKey)
		if err != nil || count != 1 {
			t.Fatalf("CountByStableKey(%s)=%d err=%v", n.StableNodeKey, count, err)
		}
	}
}
