package aggregates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
)

var GenerationVersionAggregateContract = Contract{
	Name:      "Studio.GenerationVersionAggregate",
	Tables:    []string{"draft_version", "illustration_version"},
	LockOrder: "latest version row of (chapter_instance_id, kind)",
	Notes:     "Admits one generating row per (chapter, kind), allocates gap-free versions and owns terminal transitions.",
}

// GenerationVersionAggregate owns draft/illustration version invariants.
//
// Write method failures should return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodeRetryable, CodeInternal.
// A conflict from Begin means another generation is in flight.
type GenerationVersionAggregate interface {
	Aggregate

	// Begin admits a new generation and inserts its version row as generating.
	Begin(ctx context.Context, in BeginVersionInput) (BeginVersionResult, error)

	// SetReady finalizes a generating row as ready. No-op on terminal rows.
	SetReady(ctx context.Context, in SetVersionReadyInput) (FinalizeVersionResult, error)

	// SetError finalizes a generating row as error. No-op on terminal rows.
	SetError(ctx context.Context, in SetVersionErrorInput) (FinalizeVersionResult, error)

	// ReapExpired flips generating rows whose lease expired to error.
	ReapExpired(ctx context.Context, in ReapExpiredInput) (ReapExpiredResult, error)
}

type BeginVersionInput struct {
	ChapterInstanceID uuid.UUID
	Kind              studio.VersionKind
	Fingerprint       string
	LeaseTTL          time.Duration
	Now               time.Time
}

type BeginVersionResult struct {
	VersionID      uuid.UUID
	Version        int
	LeaseExpiresAt time.Time
	// Set when an abandoned generating row was expired to admit this one.
	ReclaimedVersionID *uuid.UUID
}

type SetVersionReadyInput struct {
	Kind        studio.VersionKind
	VersionID   uuid.UUID
	Payload     json.RawMessage
	Fingerprint string
	Warnings    []studio.Warning
	At          time.Time
}

type SetVersionErrorInput struct {
	Kind      studio.VersionKind
	VersionID uuid.UUID
	Warnings  []studio.Warning
	At        time.Time
}

type FinalizeVersionResult struct {
	Row             *studio.GenerationVersion
	AlreadyTerminal bool
}

type ReapExpiredInput struct {
	Kind  studio.VersionKind
	Now   time.Time
	Limit int
}

type ReapExpiredResult struct {
	ReapedIDs []uuid.UUID
}
