package aggregates

import (
	"fmt"

	"github.com/google/uuid"
	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"gorm.io/gorm"
)

// CASGuard applies status-guarded updates: a row changes only while its status
// is still one of the expected values.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

// Transition updates row id of table when its status is one of from. It reports
// false when the row had already moved on. Tables outside c are refused.
func (g CASGuard) Transition(dbc dbctx.Context, c domainagg.Contract, table string, id uuid.UUID, from []string, set map[string]any) (bool, error) {
	if !c.Owns(table) {
		return false, InvariantError(fmt.Sprintf("%s does not write %s", c.Name, table))
	}
	if id == uuid.Nil || len(from) == 0 {
		return false, ValidationError("transition needs a row id and at least one source status")
	}
	db := g.db
	if dbc.Tx != nil {
		db = dbc.Tx
	}
	if db == nil {
		return false, ValidationError("missing db transaction context")
	}
	res := db.WithContext(dbc.Ctx).Table(table).Where("id = ? AND status IN ?", id, from).Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// mustTransition turns a lost compare-and-set into a conflict.
func mustTransition(ok bool, err error, what string) error {
	if err != nil {
		return err
	}
	if !ok {
		return ConflictError(what)
	}
	return nil
}
