// Package population applies the latest ready draft and illustration versions of a
// chapter onto its canvas.
package population

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/memoir-studio-backend/internal/data/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/data/repos"
	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/fingerprint"
	"github.com/yungbote/memoir-studio-backend/internal/observability"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

const (
	WarningSlotUnmatched    = "SLOT_UNMATCHED"
	WarningMediaMissing     = "MEDIA_MISSING"
	WarningNodeOrphaned     = "NODE_ORPHANED"
	WarningChapterFinalized = "CHAPTER_FINALIZED"
	WarningNodeSkipped      = "NODE_SKIPPED_EDITED"
)

const defaultManyConcurrency = 4

// CanvasStore is the canvas write boundary. Every call must honour dbc.Tx.
type CanvasStore interface {
	EnsurePage(dbc dbctx.Context, chapterKey, pageTemplateID string, position int) (*types.CanvasPage, error)
	CreateNode(dbc dbctx.Context, pageID uuid.UUID, nodeType string, content, style datatypes.JSON, meta types.PopulateMeta) (*types.CanvasNode, bool, error)
	PatchNode(dbc dbctx.Context, id uuid.UUID, patch types.NodePatch) error
	ListNodesByChapterKey(dbc dbctx.Context, chapterKey string) ([]*types.CanvasNode, error)
}

// SlotSource resolves the template slots of a chapter.
type SlotSource interface {
	SlotsForChapter(dbc dbctx.Context, chapterID uuid.UUID) (string, []types.TemplateSlot, error)
}

type Deps struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	Studio        aggregates.ChapterStudioAggregate
	Drafts        repos.GenerationVersionRepo
	Illustrations repos.GenerationVersionRepo
	Media         repos.MediaAssetRepo
	Canvas        CanvasStore
	Slots         SlotSource

	Now func() time.Time
}

type Options struct {
	// Override rewrites user-edited nodes and repopulates even when nothing changed.
	Override bool `json:"override"`
}

type ResultError struct {
	Code      studio.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable"`
}

// Result is the structured outcome of one population. Failures set OK=false and Error.
type Result struct {
	OK                bool      `json:"ok"`
	ChapterInstanceID uuid.UUID `json:"chapter_instance_id"`
	Status            string    `json:"status,omitempty"`
	Reused            bool      `json:"reused"`
	TemplateID        string    `json:"template_id,omitempty"`

	DraftVersion        int `json:"draft_version,omitempty"`
	IllustrationVersion int `json:"illustration_version,omitempty"`

	CreatedNodeIDs   []uuid.UUID `json:"created_node_ids"`
	UpdatedNodeIDs   []uuid.UUID `json:"updated_node_ids"`
	SkippedNodeIDs   []uuid.UUID `json:"skipped_node_ids"`
	UnchangedNodeIDs []uuid.UUID `json:"unchanged_node_ids"`

	// SkippedBecauseEdited is set when at least one node kept its user edit over new content.
	SkippedBecauseEdited bool `json:"skipped_because_edited"`

	Warnings []studio.Warning `json:"warnings"`
	Error    *ResultError     `json:"error,omitempty"`

	err error
}

// Err returns the failure as a *studio.Error, or nil when OK.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	if r.Error != nil {
		return studio.NewError(r.Error.Code, r.Error.Message, nil)
	}
	return studio.Errorf(studio.CodeInternal, "population failed")
}

type Engine struct {
	deps Deps
	log  *logger.Logger
}

func New(deps Deps) *Engine {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{deps: deps, log: deps.Log.With("module", "population")}
}

// PopulateChapter reconciles the chapter canvas with its latest ready versions.
// All canvas writes and the studio state update commit in one transaction.
func (e *Engine) PopulateChapter(ctx context.Context, chapterID uuid.UUID, opts Options) Result {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "studio.populate_chapter",
		attribute.String("chapter_instance_id", chapterID.String()),
		attribute.Bool("override", opts.Override),
	)

	res := e.populate(ctx, chapterID, opts)

	outcome := "populated"
	switch {
	case !res.OK && res.Error != nil:
		outcome = strings.ToLower(string(res.Error.Code))
	case res.Reused:
		outcome = "reused"
	case res.Status == types.StudioStatusFinalized && len(res.CreatedNodeIDs)+len(res.UpdatedNodeIDs) == 0:
		outcome = "frozen"
	}
	e.deps.Metrics.ObservePopulate(outcome, len(res.CreatedNodeIDs), len(res.UpdatedNodeIDs), len(res.SkippedNodeIDs), time.Since(start))
	observability.EndSpan(span, res.Err())

	if res.OK {
		e.log.Info("chapter populated",
			"chapter_instance_id", chapterID,
			"outcome", outcome,
			"created", len(res.CreatedNodeIDs),
			"updated", len(res.UpdatedNodeIDs),
			"skipped", len(res.SkippedNodeIDs),
			"warnings", len(res.Warnings),
		)
	} else {
		e.log.Warn("chapter population failed", "chapter_instance_id", chapterID, "code", res.Error.Code, "error", res.err)
	}
	return res
}

// PopulateMany populates chapters with bounded concurrency. One chapter failing does not
// stop the others; results are returned in input order.
func (e *Engine) PopulateMany(ctx context.Context, chapterIDs []uuid.UUID, opts Options, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = defaultManyConcurrency
	}
	out := make([]Result, len(chapterIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range chapterIDs {
		i, id := i, id
		g.Go(func() error {
			out[i] = e.PopulateChapter(gctx, id, opts)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) populate(ctx context.Context, chapterID uuid.UUID, opts Options) Result {
	if chapterID == uuid.Nil {
		return failed(chapterID, studio.Errorf(studio.CodeInvalidInput, "missing chapter_instance_id"))
	}
	if e.deps.Studio == nil || e.deps.Drafts == nil || e.deps.Illustrations == nil || e.deps.Canvas == nil || e.deps.Slots == nil {
		return failed(chapterID, studio.Errorf(studio.CodeInternal, "population engine not configured"))
	}

	var res Result
	st, _, err := e.deps.Studio.Mutate(ctx, "Studio.Population.PopulateChapter", chapterID, func(dbc dbctx.Context, st *types.ChapterStudioState) (bool, error) {
		res = Result{ChapterInstanceID: chapterID}
		return e.apply(dbc, st, opts, &res)
	})
	if err != nil {
		if se, ok := studio.AsError(err); ok {
			return failed(chapterID, se)
		}
		return failed(chapterID, studio.NewError(studio.CodePopulateFailed, "population did not commit; retry", err))
	}
	res.OK = true
	res.Status = st.Status
	res.normalize()
	return res
}

// apply runs inside the studio transaction with the state row locked.
func (e *Engine) apply(dbc dbctx.Context, st *types.ChapterStudioState, opts Options, res *Result) (bool, error) {
	chapterID := st.ChapterInstanceID
	templateID, slots, err := e.deps.Slots.SlotsForChapter(dbc, chapterID)
	if err != nil {
		return false, err
	}
	res.TemplateID = templateID

	draft, err := e.deps.Drafts.GetLatestReady(dbc, chapterID)
	if err != nil {
		return false, err
	}
	if draft == nil {
		return false, studio.Errorf(studio.CodeDraftNotReady, "no ready draft for chapter %s", chapterID)
	}
	illus, err := e.deps.Illustrations.GetLatestReady(dbc, chapterID)
	if err != nil {
		return false, err
	}
	if illus == nil && hasImageSlots(slots) {
		return false, studio.Errorf(studio.CodeIllustrationsNotReady, "no ready illustrations for chapter %s", chapterID)
	}

	draftPayload, err := studio.DecodeDraftPayload(draft.Payload)
	if err != nil {
		return false, studio.NewError(studio.CodeInternal, fmt.Sprintf("draft version %d payload is corrupt", draft.Version), err)
	}
	var illusPayload studio.IllustrationPayload
	if illus != nil {
		if illusPayload, err = studio.DecodeIllustrationPayload(illus.Payload); err != nil {
			return false, studio.NewError(studio.CodeInternal, fmt.Sprintf("illustration version %d payload is corrupt", illus.Version), err)
		}
	}

	draftFP := fingerprint.DraftContent(draftPayload)
	illusFP := ""
	if illus != nil {
		illusFP = fingerprint.IllustrationContent(illusPayload)
	}
	if err := checkApplied(types.VersionKindDraft, st.LastAppliedDraftVersion, st.DraftFingerprint, draft, draftFP); err != nil {
		return false, err
	}
	if err := checkApplied(types.VersionKindIllustration, st.LastAppliedIllustrationVersion, st.IllustrationFingerprint, illus, illusFP); err != nil {
		return false, err
	}

	res.DraftVersion = draft.Version
	if illus != nil {
		res.IllustrationVersion = illus.Version
	}

	layoutFP := fingerprint.Layout(templateID, slots)
	same := st.LayoutFingerprint == layoutFP &&
		sameApplied(st.LastAppliedDraftVersion, draft) &&
		st.DraftFingerprint == draftFP &&
		(illus == nil || (sameApplied(st.LastAppliedIllustrationVersion, illus) && st.IllustrationFingerprint == illusFP))
	if same && !opts.Override {
		res.Reused = true
		res.Warnings = st.WarningList()
		for _, w := range res.Warnings {
			if w.Code == WarningNodeSkipped {
				res.SkippedBecauseEdited = true
			}
		}
		return false, nil
	}

	if st.Status == types.StudioStatusFinalized {
		for _, n := range st.Nodes() {
			res.SkippedNodeIDs = append(res.SkippedNodeIDs, n.NodeID)
		}
		res.Warnings = append(res.Warnings, studio.Warning{
			Code:    WarningChapterFinalized,
			Message: "chapter is finalized; canvas left untouched",
		})
		return false, nil
	}

	p, err := e.newPlan(dbc, st, slots, draft, illus, draftPayload, illusPayload)
	if err != nil {
		return false, err
	}
	if err := p.run(opts, res); err != nil {
		return false, err
	}

	st.LastAppliedDraftVersion = intPtr(draft.Version)
	st.DraftFingerprint = draftFP
	if illus != nil {
		st.LastAppliedIllustrationVersion = intPtr(illus.Version)
		st.IllustrationFingerprint = illusFP
	}
	st.AppliedTemplateID = templateID
	st.LayoutFingerprint = layoutFP
	st.SetPages(p.pageIDs)
	st.SetNodes(p.inventory)
	st.SetWarnings(res.Warnings)
	studio.PromoteOnPopulate(st, e.deps.Now())
	return true, nil
}

// checkApplied rejects a latest-ready version older than the one already applied, and a
// re-read of the applied version whose content no longer hashes the same.
func checkApplied(kind types.VersionKind, last *int, lastFP string, v *types.GenerationVersion, fp string) error {
	if v == nil || last == nil {
		return nil
	}
	if v.Version < *last {
		return studio.Errorf(studio.CodeVersionRegression, "latest ready %s version %d is older than applied version %d", kind, v.Version, *last)
	}
	if v.Version == *last && lastFP != "" && lastFP != fp {
		return studio.Errorf(studio.CodeFingerprintMismatch, "%s version %d content changed since it was applied", kind, v.Version)
	}
	return nil
}

func sameApplied(last *int, v *types.GenerationVersion) bool {
	if v == nil {
		return last == nil
	}
	return last != nil && *last == v.Version
}

func hasImageSlots(slots []types.TemplateSlot) bool {
	for _, s := range slots {
		if s.NodeType == types.NodeTypeImage {
			return true
		}
	}
	return false
}

func failed(chapterID uuid.UUID, se *studio.Error) Result {
	r := Result{
		OK:                false,
		ChapterInstanceID: chapterID,
		Error: &ResultError{
			Code:      se.Code,
			Message:   se.Error(),
			Retryable: se.Retryable(),
		},
		err: se,
	}
	r.normalize()
	return r
}

func (r *Result) normalize() {
	if r.CreatedNodeIDs == nil {
		r.CreatedNodeIDs = []uuid.UUID{}
	}
	if r.UpdatedNodeIDs == nil {
		r.UpdatedNodeIDs = []uuid.UUID{}
	}
	if r.SkippedNodeIDs == nil {
		r.SkippedNodeIDs = []uuid.UUID{}
	}
	if r.UnchangedNodeIDs == nil {
		r.UnchangedNodeIDs = []uuid.UUID{}
	}
	if r.Warnings == nil {
		r.Warnings = []studio.Warning{}
	}
}

func intPtr(v int) *int { return &v }
