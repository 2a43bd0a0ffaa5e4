package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/memoir-studio-backend/internal/data/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
)

// ErrInjectedCommit is returned by FailingTxRunner when Err is unset.
var ErrInjectedCommit = errors.New("injected commit failure")

// FailingTxRunner runs the body in a real transaction through Inner and then fails the
// first FailCommits calls, rolling back everything the body wrote.
type FailingTxRunner struct {
	mu sync.Mutex

	Inner       aggregates.TxRunner
	FailCommits int
	Err         error

	Calls      int
	RolledBack int
}

var _ aggregates.TxRunner = (*FailingTxRunner)(nil)

func (r *FailingTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.Calls++
	fail := r.FailCommits > 0
	if fail {
		r.FailCommits--
	}
	failErr := r.Err
	r.mu.Unlock()

	if failErr == nil {
		failErr = ErrInjectedCommit
	}
	return r.Inner.InTx(ctx, func(dbc dbctx.Context) error {
		if err := fn(dbc); err != nil {
			return err
		}
		if fail {
			r.mu.Lock()
			r.RolledBack++
			r.mu.Unlock()
			return failErr
		}
		return nil
	})
}

// DirectTxRunner runs the body without a database, for aggregate logic that only
// needs the transaction boundary.
var DirectTxRunner = aggregates.TxRunnerFunc(func(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return fn(dbctx.Context{Ctx: ctx})
})
