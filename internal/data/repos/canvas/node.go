package canvas

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

type CanvasNodeRepo interface {
	Create(dbc dbctx.Context, rows []*types.CanvasNode) ([]*types.CanvasNode, error)

	// CreateOrGetByStableKey inserts row unless a node with its stable key exists,
	// and returns the live node for the key plus whether this call created it.
	CreateOrGetByStableKey(dbc dbctx.Context, row *types.CanvasNode) (*types.CanvasNode, bool, error)

	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.CanvasNode, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CanvasNode, error)
	GetByStableKey(dbc dbctx.Context, key string) (*types.CanvasNode, error)
	ListByChapterKey(dbc dbctx.Context, chapterKey string) ([]*types.CanvasNode, error)
	CountByStableKey(dbc dbctx.Context, key string) (int64, error)

	Patch(dbc dbctx.Context, id uuid.UUID, patch types.NodePatch) error
}

type canvasNodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCanvasNodeRepo(db *gorm.DB, baseLog *logger.Logger) CanvasNodeRepo {
	return &canvasNodeRepo{db: db, log: baseLog.With("repo", "CanvasNodeRepo")}
}

func (r *canvasNodeRepo) Create(dbc dbctx.Context, rows []*types.CanvasNode) ([]*types.CanvasNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.CanvasNode{}, nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *canvasNodeRepo) CreateOrGetByStableKey(dbc dbctx.Context, row *types.CanvasNode) (*types.CanvasNode, bool, error) {
	if row == nil || row.StableNodeKey == nil || strings.TrimSpace(*row.StableNodeKey) == "" {
		return nil, false, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	res := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stable_node_key"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return row, true, nil
	}
	existing, err := r.GetByStableKey(dbc, *row.StableNodeKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *canvasNodeRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.CanvasNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.CanvasNode
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canvasNodeRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CanvasNode, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *canvasNodeRepo) GetByStableKey(dbc dbctx.Context, key string) (*types.CanvasNode, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.CanvasNode
	if err := t.WithContext(dbc.Ctx).Where("stable_node_key = ?", key).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *canvasNodeRepo) ListByChapterKey(dbc dbctx.Context, chapterKey string) ([]*types.CanvasNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.CanvasNode
	if strings.TrimSpace(chapterKey) == "" {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("chapter_key = ?", chapterKey).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canvasNodeRepo) CountByStableKey(dbc dbctx.Context, key string) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).Model(&types.CanvasNode{}).Where("stable_node_key = ?", key).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *canvasNodeRepo) Patch(dbc dbctx.Context, id uuid.UUID, patch types.NodePatch) error {
	if id == uuid.Nil {
		return nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if patch.Content != nil {
		updates["content"] = patch.Content
	}
	if patch.Style != nil {
		updates["style"] = patch.Style
	}
	if patch.PopulateMeta != nil {
		updates["populate_meta"] = patch.PopulateMeta
	}
	if origin := strings.TrimSpace(patch.ChangeOrigin); origin != "" {
		updates["last_change_origin"] = origin
	}
	res := t.WithContext(dbc.Ctx).Model(&types.CanvasNode{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
