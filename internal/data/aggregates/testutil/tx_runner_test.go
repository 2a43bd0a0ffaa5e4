package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
)

func TestFailingTxRunnerFailsConfiguredCommits(t *testing.T) {
	r := &FailingTxRunner{Inner: DirectTxRunner, FailCommits: 1}
	runs := 0
	body := func(_ dbctx.Context) error { runs++; return nil }

	if err := r.InTx(context.Background(), body); !errors.Is(err, ErrInjectedCommit) {
		t.Fatalf("first commit: %v", err)
	}
	if err := r.InTx(context.Background(), body); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if runs != 2 || r.Calls != 2 || r.RolledBack != 1 {
		t.Fatalf("runs=%d calls=%d rolledBack=%d", runs, r.Calls, r.RolledBack)
	}
}

func TestFailingTxRunnerPassesBodyErrorThrough(t *testing.T) {
	bodyErr := errors.New("boom")
	r := &FailingTxRunner{Inner: DirectTxRunner, FailCommits: 1}
	if err := r.InTx(context.Background(), func(dbctx.Context) error { return bodyErr }); !errors.Is(err, bodyErr) {
		t.Fatalf("err = %v", err)
	}
	if r.RolledBack != 0 {
		t.Fatalf("a failing body must not count as an injected rollback")
	}
	if err := r.InTx(context.Background(), func(dbctx.Context) error { return nil }); err != nil {
		t.Fatalf("second commit: %v", err)
	}
}
