package promptstyle

import (
	"strings"
	"testing"
)

func TestComposeIsIdempotent(t *testing.T) {
	once := Compose(OutputJSON, "Draft a chapter.", "Cite question ids.")
	if !strings.HasPrefix(once, marker) || !strings.HasSuffix(once, "Draft a chapter.\nCite question ids.") {
		t.Fatalf("unexpected prompt:\n%s", once)
	}
	if !strings.Contains(once, closing[OutputJSON]) {
		t.Fatalf("json closing missing")
	}
	if twice := Compose(OutputJSON, once); twice != once {
		t.Fatalf("second pass changed the prompt")
	}
}

func TestComposeEmptyTask(t *testing.T) {
	if got := Compose(OutputText, "  "); got != "" {
		t.Fatalf("got %q", got)
	}
}
