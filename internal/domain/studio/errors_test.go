package studio

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeRetryability(t *testing.T) {
	retryable := []ErrorCode{CodeDraftNotReady, CodeIllustrationsNotReady, CodePopulateFailed}
	for _, c := range retryable {
		if !c.Retryable() {
			t.Fatalf("%s should be retryable", c)
		}
	}
	fatal := []ErrorCode{CodeAlreadyGenerating, CodeNoAnswers, CodeNoCandidates, CodeMissingAttribution, CodeFingerprintMismatch, CodeVersionRegression}
	for _, c := range fatal {
		if c.Retryable() {
			t.Fatalf("%s should not be retryable", c)
		}
	}
	if CodeMissingAttribution.Category() != CategoryIntegrity {
		t.Fatalf("missing attribution category: %s", CodeMissingAttribution.Category())
	}
	if CodeAlreadyGenerating.Category() != CategoryAdmission {
		t.Fatalf("already generating category: %s", CodeAlreadyGenerating.Category())
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("populate: %w", NewError(CodePopulateFailed, "canvas write failed", cause))
	if !IsCode(err, CodePopulateFailed) {
		t.Fatalf("expected POPULATE_FAILED in chain")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(Errorf(CodeNoAnswers, "no answers")); got != "Answer more questions first, then generate the draft." {
		t.Fatalf("NO_ANSWERS message: %q", got)
	}
	if got := UserMessage(Errorf(CodeDraftNotReady, "draft")); got != "Not ready yet. Please try again shortly." {
		t.Fatalf("DRAFT_NOT_READY message: %q", got)
	}
}
