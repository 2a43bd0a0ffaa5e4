package aggregates

import (
	"context"
	"strings"
	"time"

	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
	"gorm.io/gorm"
)

const (
	defaultWriteAttempts = 3
	defaultWriteBackoff  = 25 * time.Millisecond
)

type BaseDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Runner   TxRunner
	Hooks    Hooks
	CASGuard CASGuard

	// MaxAttempts bounds how often a transient failure (deadlock, serialization,
	// busy SQLite file) reruns the whole transaction.
	MaxAttempts int
	Backoff     time.Duration
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks
	}
	if d.CASGuard.db == nil {
		d.CASGuard = NewCASGuard(d.DB)
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = defaultWriteAttempts
	}
	if d.Backoff <= 0 {
		d.Backoff = defaultWriteBackoff
	}
	return d
}

// executeWrite runs fn in a transaction. fn must reset any state it captures since
// it may run more than once.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	deps = deps.withDefaults()
	if op = strings.TrimSpace(op); op == "" {
		op = "aggregate.write"
	}
	start := time.Now()

	var err error
	attempts := 0
	for {
		attempts++
		err = MapError(op, deps.Runner.InTx(ctx, fn))
		if err == nil || attempts >= deps.MaxAttempts || !domainagg.CodeOf(err).Transient() || ctx.Err() != nil {
			break
		}
		if deps.Log != nil {
			deps.Log.Debug("aggregate write retry", "op", op, "attempt", attempts, "error", err)
		}
		if !sleepCtx(ctx, deps.Backoff*time.Duration(attempts)) {
			break
		}
	}

	deps.Hooks.WriteFinished(WriteOutcome{
		Op:       op,
		Status:   writeStatus(err),
		Code:     domainagg.CodeOf(err),
		Attempts: attempts,
		Duration: time.Since(start),
	})
	return err
}

// writeStatus labels an outcome: studio codes win over aggregate codes.
func writeStatus(err error) string {
	if err == nil {
		return "success"
	}
	if sc := studio.CodeOf(err); sc != "" {
		return strings.ToLower(string(sc))
	}
	if code := domainagg.CodeOf(MapError("aggregate.status", err)); code != "" {
		return string(code)
	}
	return "failure"
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
