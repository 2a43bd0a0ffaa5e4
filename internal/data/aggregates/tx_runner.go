package aggregates

import (
	"context"

	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"gorm.io/gorm"
)

// TxRunner runs fn inside one transaction; fn's error rolls it back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

// TxRunnerFunc adapts a function to TxRunner.
type TxRunnerFunc func(ctx context.Context, fn func(dbc dbctx.Context) error) error

func (f TxRunnerFunc) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return f(ctx, fn)
}

// NewGormTxRunner opens a GORM transaction per call.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return TxRunnerFunc(func(ctx context.Context, fn func(dbc dbctx.Context) error) error {
		if db == nil {
			return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "no database configured", nil)
		}
		if fn == nil {
			return nil
		}
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(dbctx.Context{Ctx: ctx, Tx: tx})
		})
	})
}
