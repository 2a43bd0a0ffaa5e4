package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/memoir-studio-backend/internal/data/repos"
	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
)

// StudioMutation runs inside the studio transaction with the state row locked.
// Returning changed=true persists the row; any canvas writes made through dbc commit with it.
type StudioMutation func(dbc dbctx.Context, st *types.ChapterStudioState) (changed bool, err error)

// ChapterStudioAggregate extends the domain contract with the transactional mutation
// used by population.
type ChapterStudioAggregate interface {
	domainagg.ChapterStudioAggregate

	Mutate(ctx context.Context, op string, chapterID uuid.UUID, fn StudioMutation) (*types.ChapterStudioState, bool, error)
}

type ChapterStudioAggregateDeps struct {
	Base BaseDeps

	States repos.ChapterStudioStateRepo
}

type chapterStudioAggregate struct {
	deps ChapterStudioAggregateDeps
}

func NewChapterStudioAggregate(deps ChapterStudioAggregateDeps) ChapterStudioAggregate {
	deps.Base = deps.Base.withDefaults()
	return &chapterStudioAggregate{deps: deps}
}

func (a *chapterStudioAggregate) Contract() domainagg.Contract {
	return domainagg.ChapterStudioAggregateContract
}

func (a *chapterStudioAggregate) Mutate(ctx context.Context, op string, chapterID uuid.UUID, fn StudioMutation) (*types.ChapterStudioState, bool, error) {
	if op == "" {
		op = "Studio.ChapterStudio.Mutate"
	}
	if chapterID == uuid.Nil {
		return nil, false, domainagg.NewError(domainagg.CodeValidation, op, "missing chapter_instance_id", nil)
	}
	if a.deps.States == nil {
		return nil, false, domainagg.NewError(domainagg.CodeInternal, op, "studio state repo not configured", nil)
	}
	if fn == nil {
		return nil, false, domainagg.NewError(domainagg.CodeValidation, op, "missing mutation", nil)
	}

	var (
		out     *types.ChapterStudioState
		changed bool
	)
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out, changed = nil, false
		now := time.Now().UTC()
		if err := a.deps.States.EnsureExists(dbc, chapterID, now); err != nil {
			return err
		}
		st, err := a.deps.States.LockByChapterID(dbc, chapterID)
		if err != nil {
			return err
		}
		if st == nil {
			return domainagg.NewError(domainagg.CodeInternal, op, "studio state row vanished after ensure", nil)
		}
		ok, err := fn(dbc, st)
		if err != nil {
			return err
		}
		if ok {
			if !studio.IsKnownStudioStatus(st.Status) {
				return InvariantError("unknown studio status " + st.Status)
			}
			st.UpdatedAt = now
			if err := a.deps.States.Save(dbc, st); err != nil {
				return err
			}
		}
		out, changed = st, ok
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

func (a *chapterStudioAggregate) MarkEdited(ctx context.Context, in domainagg.MarkStudioEditedInput) (domainagg.StudioTransitionResult, error) {
	const op = "Studio.ChapterStudio.MarkEdited"
	at := in.At.UTC()
	if in.At.IsZero() {
		at = time.Now().UTC()
	}
	if in.NodeID == uuid.Nil {
		return domainagg.StudioTransitionResult{}, domainagg.NewError(domainagg.CodeValidation, op, "missing node_id", nil)
	}
	var from string
	st, changed, err := a.Mutate(ctx, op, in.ChapterInstanceID, func(_ dbctx.Context, st *types.ChapterStudioState) (bool, error) {
		from = st.Status
		return studio.MarkNodeEdited(st, in.NodeID, at), nil
	})
	if err != nil {
		return domainagg.StudioTransitionResult{}, err
	}
	return domainagg.StudioTransitionResult{
		ChapterInstanceID: in.ChapterInstanceID,
		FromStatus:        from,
		Status:            st.Status,
		Changed:           changed,
		At:                at,
	}, nil
}

func (a *chapterStudioAggregate) MarkFinalized(ctx context.Context, in domainagg.MarkStudioFinalizedInput) (domainagg.StudioTransitionResult, error) {
	const op = "Studio.ChapterStudio.MarkFinalized"
	at := in.At.UTC()
	if in.At.IsZero() {
		at = time.Now().UTC()
	}
	var from string
	st, changed, err := a.Mutate(ctx, op, in.ChapterInstanceID, func(_ dbctx.Context, st *types.ChapterStudioState) (bool, error) {
		from = st.Status
		return studio.Finalize(st, at)
	})
	if err != nil {
		return domainagg.StudioTransitionResult{}, err
	}
	return domainagg.StudioTransitionResult{
		ChapterInstanceID: in.ChapterInstanceID,
		FromStatus:        from,
		Status:            st.Status,
		Changed:           changed,
		At:                at,
	}, nil
}
