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

type CanvasPageRepo interface {
	// Ensure returns the chapter's page for pageTemplateID, creating it if needed.
	Ensure(dbc dbctx.Context, chapterKey, pageTemplateID string, position int) (*types.CanvasPage, error)

	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.CanvasPage, error)
	ListByChapterKey(dbc dbctx.Context, chapterKey string) ([]*types.CanvasPage, error)
}

type canvasPageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCanvasPageRepo(db *gorm.DB, baseLog *logger.Logger) CanvasPageRepo {
	return &canvasPageRepo{db: db, log: baseLog.With("repo", "CanvasPageRepo")}
}

func (r *canvasPageRepo) Ensure(dbc dbctx.Context, chapterKey, pageTemplateID string, position int) (*types.CanvasPage, error) {
	chapterKey = strings.TrimSpace(chapterKey)
	pageTemplateID = strings.TrimSpace(pageTemplateID)
	if chapterKey == "" || pageTemplateID == "" {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	row := &types.CanvasPage{
		ID:             uuid.New(),
		ChapterKey:     chapterKey,
		PageTemplateID: pageTemplateID,
		Position:       position,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chapter_key"}, {Name: "page_template_id"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	var out types.CanvasPage
	if err := t.WithContext(dbc.Ctx).
		Where("chapter_key = ? AND page_template_id = ?", chapterKey, pageTemplateID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *canvasPageRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.CanvasPage, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.CanvasPage
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canvasPageRepo) ListByChapterKey(dbc dbctx.Context, chapterKey string) ([]*types.CanvasPage, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.CanvasPage
	if strings.TrimSpace(chapterKey) == "" {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("chapter_key = ?", chapterKey).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
