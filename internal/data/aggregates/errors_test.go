package aggregates

import (
	"errors"
	"testing"

	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"gorm.io/gorm"
)

func TestMapError_Validation(t *testing.T) {
	err := MapError("op", ValidationError("bad input"))
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_Conflict(t *testing.T) {
	err := MapError("op", ConflictError("stale"))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_NotFound(t *testing.T) {
	err := MapError("op", gorm.ErrRecordNotFound)
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_PassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	out := MapError("other", in)
	if out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}

func TestMapError_DuplicateKeyIsConflict(t *testing.T) {
	cases := []error{
		gorm.ErrDuplicatedKey,
		errors.New("UNIQUE constraint failed: draft_version.chapter_instance_id, draft_version.version"),
		errors.New(`ERROR: duplicate key value violates unique constraint "idx_media_asset_source"`),
	}
	for _, in := range cases {
		if got := MapError("op", in); !domainagg.IsCode(got, domainagg.CodeConflict) {
			t.Fatalf("expected conflict for %v, got %q", in, domainagg.CodeOf(got))
		}
	}
}

func TestMapError_SQLiteBusyIsRetryable(t *testing.T) {
	err := MapError("op", errors.New("database is locked"))
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("expected retryable code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_PassthroughStudioError(t *testing.T) {
	in := studio.Errorf(studio.CodeVersionRegression, "draft v2 < applied v3")
	out := MapError("op", in)
	if !studio.IsCode(out, studio.CodeVersionRegression) {
		t.Fatalf("expected studio error to pass through, got %v", out)
	}
	if domainagg.CodeOf(out) != "" {
		t.Fatalf("studio error should not be re-coded, got %q", domainagg.CodeOf(out))
	}
}
