package studio

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

type ChapterTemplateRepo interface {
	GetByChapterID(dbc dbctx.Context, chapterID uuid.UUID) (*types.ChapterTemplate, error)
	Upsert(dbc dbctx.Context, chapterID uuid.UUID, templateID string) error
}

type chapterTemplateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterTemplateRepo(db *gorm.DB, baseLog *logger.Logger) ChapterTemplateRepo {
	return &chapterTemplateRepo{db: db, log: baseLog.With("repo", "ChapterTemplateRepo")}
}

func (r *chapterTemplateRepo) GetByChapterID(dbc dbctx.Context, chapterID uuid.UUID) (*types.ChapterTemplate, error) {
	if chapterID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.ChapterTemplate
	if err := t.WithContext(dbc.Ctx).Where("chapter_instance_id = ?", chapterID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ChapterInstanceID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *chapterTemplateRepo) Upsert(dbc dbctx.Context, chapterID uuid.UUID, templateID string) error {
	templateID = strings.TrimSpace(templateID)
	if chapterID == uuid.Nil || templateID == "" {
		return nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	row := &types.ChapterTemplate{
		ChapterInstanceID: chapterID,
		TemplateID:        templateID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chapter_instance_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"template_id", "updated_at"}),
		}).
		Create(row).Error
}
