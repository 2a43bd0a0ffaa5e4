package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/memoir-studio-backend/internal/data/repos"
	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"gorm.io/datatypes"
)

// DefaultGenerationLease bounds how long a generating row blocks new generations.
const DefaultGenerationLease = 10 * time.Minute

const WarningLeaseExpired = "LEASE_EXPIRED"

type GenerationVersionAggregateDeps struct {
	Base BaseDeps

	Drafts        repos.GenerationVersionRepo
	Illustrations repos.GenerationVersionRepo
}

type generationVersionAggregate struct {
	deps GenerationVersionAggregateDeps
}

func NewGenerationVersionAggregate(deps GenerationVersionAggregateDeps) domainagg.GenerationVersionAggregate {
	deps.Base = deps.Base.withDefaults()
	return &generationVersionAggregate{deps: deps}
}

func (a *generationVersionAggregate) Contract() domainagg.Contract {
	return domainagg.GenerationVersionAggregateContract
}

func (a *generationVersionAggregate) repo(op string, kind types.VersionKind) (repos.GenerationVersionRepo, error) {
	switch kind {
	case types.VersionKindDraft:
		if a.deps.Drafts != nil {
			return a.deps.Drafts, nil
		}
	case types.VersionKindIllustration:
		if a.deps.Illustrations != nil {
			return a.deps.Illustrations, nil
		}
	default:
		return nil, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("unknown version kind %q", kind), nil)
	}
	return nil, domainagg.NewError(domainagg.CodeInternal, op, "version repos not configured", nil)
}

func (a *generationVersionAggregate) Begin(ctx context.Context, in domainagg.BeginVersionInput) (domainagg.BeginVersionResult, error) {
	const op = "Studio.GenerationVersion.Begin"
	var out domainagg.BeginVersionResult

	if in.ChapterInstanceID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing chapter_instance_id", nil)
	}
	repo, err := a.repo(op, in.Kind)
	if err != nil {
		return out, err
	}
	ttl := in.LeaseTTL
	if ttl <= 0 {
		ttl = DefaultGenerationLease
	}
	now := in.Now.UTC()
	if in.Now.IsZero() {
		now = time.Now().UTC()
	}

	err = executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.BeginVersionResult{}

		latest, err := repo.LockLatest(dbc, in.ChapterInstanceID)
		if err != nil {
			return err
		}
		next := 1
		if latest != nil {
			next = latest.Version + 1
			if latest.Status == types.VersionStatusGenerating {
				if !leaseExpired(latest, now) {
					return studio.Errorf(studio.CodeAlreadyGenerating, "%s version %d is still generating", in.Kind, latest.Version)
				}
				ok, err := a.deps.Base.CASGuard.Transition(dbc, a.Contract(), in.Kind.Table(), latest.ID, []string{types.VersionStatusGenerating}, terminalUpdates(
					types.VersionStatusError,
					[]studio.Warning{{Code: WarningLeaseExpired, Message: "generation lease expired before completion"}},
					now,
				))
				if err := mustTransition(ok, err, "expired generating row changed concurrently"); err != nil {
					return err
				}
				reclaimed := latest.ID
				out.ReclaimedVersionID = &reclaimed
			}
		}

		lease := now.Add(ttl)
		row := &types.GenerationVersion{
			ID:                uuid.New(),
			ChapterInstanceID: in.ChapterInstanceID,
			Version:           next,
			Status:            types.VersionStatusGenerating,
			Payload:           datatypes.JSON([]byte("{}")),
			Fingerprint:       in.Fingerprint,
			Warnings:          datatypes.JSON([]byte("[]")),
			LeaseExpiresAt:    &lease,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if _, err := repo.Create(dbc, []*types.GenerationVersion{row}); err != nil {
			return err
		}
		out.VersionID = row.ID
		out.Version = row.Version
		out.LeaseExpiresAt = lease
		return nil
	})
	if domainagg.IsCode(err, domainagg.CodeConflict) {
		// The unique (chapter, version) key or the one-generating index rejected a racing insert.
		return domainagg.BeginVersionResult{}, studio.NewError(studio.CodeAlreadyGenerating, fmt.Sprintf("another %s generation was admitted concurrently", in.Kind), err)
	}
	if err != nil {
		return domainagg.BeginVersionResult{}, err
	}
	return out, nil
}

func (a *generationVersionAggregate) SetReady(ctx context.Context, in domainagg.SetVersionReadyInput) (domainagg.FinalizeVersionResult, error) {
	const op = "Studio.GenerationVersion.SetReady"
	payload := in.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if !json.Valid(payload) {
		return domainagg.FinalizeVersionResult{}, domainagg.NewError(domainagg.CodeValidation, op, "payload must be valid JSON", nil)
	}
	return a.finalize(ctx, op, in.Kind, in.VersionID, in.At, func(now time.Time) map[string]any {
		updates := terminalUpdates(types.VersionStatusReady, in.Warnings, now)
		updates["payload"] = datatypes.JSON(payload)
		if in.Fingerprint != "" {
			updates["fingerprint"] = in.Fingerprint
		}
		return updates
	})
}

func (a *generationVersionAggregate) SetError(ctx context.Context, in domainagg.SetVersionErrorInput) (domainagg.FinalizeVersionResult, error) {
	const op = "Studio.GenerationVersion.SetError"
	return a.finalize(ctx, op, in.Kind, in.VersionID, in.At, func(now time.Time) map[string]any {
		return terminalUpdates(types.VersionStatusError, in.Warnings, now)
	})
}

func (a *generationVersionAggregate) finalize(ctx context.Context, op string, kind types.VersionKind, id uuid.UUID, at time.Time, updates func(time.Time) map[string]any) (domainagg.FinalizeVersionResult, error) {
	var out domainagg.FinalizeVersionResult
	if id == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing version id", nil)
	}
	repo, err := a.repo(op, kind)
	if err != nil {
		return out, err
	}
	now := at.UTC()
	if at.IsZero() {
		now = time.Now().UTC()
	}

	err = executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		row, err := repo.LockByID(dbc, id)
		if err != nil {
			return err
		}
		if row == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("%s version not found: %s", kind, id), nil)
		}
		if studio.IsTerminalVersionStatus(row.Status) {
			out = domainagg.FinalizeVersionResult{Row: row, AlreadyTerminal: true}
			return nil
		}
		ok, err := a.deps.Base.CASGuard.Transition(dbc, a.Contract(), kind.Table(), id, []string{types.VersionStatusGenerating}, updates(now))
		if err := mustTransition(ok, err, "version left generating concurrently"); err != nil {
			return err
		}
		fresh, err := repo.GetByID(dbc, id)
		if err != nil {
			return err
		}
		out = domainagg.FinalizeVersionResult{Row: fresh}
		return nil
	})
	return out, err
}

func (a *generationVersionAggregate) ReapExpired(ctx context.Context, in domainagg.ReapExpiredInput) (domainagg.ReapExpiredResult, error) {
	const op = "Studio.GenerationVersion.ReapExpired"
	var out domainagg.ReapExpiredResult
	repo, err := a.repo(op, in.Kind)
	if err != nil {
		return out, err
	}
	now := in.Now.UTC()
	if in.Now.IsZero() {
		now = time.Now().UTC()
	}

	err = executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.ReapExpiredResult{}
		rows, err := repo.ListExpiredGenerating(dbc, now, in.Limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			ok, err := a.deps.Base.CASGuard.Transition(dbc, a.Contract(), in.Kind.Table(), row.ID, []string{types.VersionStatusGenerating}, terminalUpdates(
				types.VersionStatusError,
				[]studio.Warning{{Code: WarningLeaseExpired, Message: "generation lease expired before completion"}},
				now,
			))
			if err != nil {
				return err
			}
			if ok {
				out.ReapedIDs = append(out.ReapedIDs, row.ID)
			}
		}
		return nil
	})
	return out, err
}

func leaseExpired(row *types.GenerationVersion, now time.Time) bool {
	if row == nil || row.LeaseExpiresAt == nil {
		return false
	}
	return !row.LeaseExpiresAt.After(now)
}

func terminalUpdates(status string, warnings []studio.Warning, now time.Time) map[string]any {
	return map[string]any{
		"status":           status,
		"warnings":         studio.EncodeJSON(warnings),
		"lease_expires_at": nil,
		"finalized_at":     now,
		"updated_at":       now,
	}
}
