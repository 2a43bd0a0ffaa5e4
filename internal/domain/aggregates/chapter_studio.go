package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var ChapterStudioAggregateContract = Contract{
	Name:      "Studio.ChapterStudioAggregate",
	Tables:    []string{"chapter_studio_state"},
	LockOrder: "chapter_studio_state by chapter_instance_id",
	Notes:     "Population commits canvas writes inside the same transaction.",
}

// ChapterStudioAggregate owns the chapter studio lifecycle.
//
// Write method failures should return *aggregates.Error with codes:
// CodeValidation, CodeInvariantViolation, CodeConflict, CodeRetryable, CodeInternal.
type ChapterStudioAggregate interface {
	Aggregate

	// MarkEdited records a user edit of a populated node.
	MarkEdited(ctx context.Context, in MarkStudioEditedInput) (StudioTransitionResult, error)

	// MarkFinalized applies the explicit finalize action.
	MarkFinalized(ctx context.Context, in MarkStudioFinalizedInput) (StudioTransitionResult, error)
}

type MarkStudioEditedInput struct {
	ChapterInstanceID uuid.UUID
	NodeID            uuid.UUID
	At                time.Time
}

type MarkStudioFinalizedInput struct {
	ChapterInstanceID uuid.UUID
	At                time.Time
}

type StudioTransitionResult struct {
	ChapterInstanceID uuid.UUID
	FromStatus        string
	Status            string
	Changed           bool
	At                time.Time
}
