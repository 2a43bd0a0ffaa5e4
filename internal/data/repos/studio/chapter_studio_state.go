package studio

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

type ChapterStudioStateRepo interface {
	// EnsureExists inserts a not_started row when the chapter has none.
	EnsureExists(dbc dbctx.Context, chapterID uuid.UUID, now time.Time) error

	GetByChapterID(dbc dbctx.Context, chapterID uuid.UUID) (*types.ChapterStudioState, error)
	LockByChapterID(dbc dbctx.Context, chapterID uuid.UUID) (*types.ChapterStudioState, error)
	ListByStatus(dbc dbctx.Context, statuses []string, limit int) ([]*types.ChapterStudioState, error)

	Save(dbc dbctx.Context, row *types.ChapterStudioState) error
}

type chapterStudioStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterStudioStateRepo(db *gorm.DB, baseLog *logger.Logger) ChapterStudioStateRepo {
	return &chapterStudioStateRepo{db: db, log: baseLog.With("repo", "ChapterStudioStateRepo")}
}

func (r *chapterStudioStateRepo) EnsureExists(dbc dbctx.Context, chapterID uuid.UUID, now time.Time) error {
	if chapterID == uuid.Nil {
		return nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	row := types.NewChapterStudioState(chapterID, now)
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chapter_instance_id"}},
			DoNothing: true,
		}).
		Create(row).Error
}

func (r *chapterStudioStateRepo) GetByChapterID(dbc dbctx.Context, chapterID uuid.UUID) (*types.ChapterStudioState, error) {
	return r.get(dbc, chapterID, false)
}

func (r *chapterStudioStateRepo) LockByChapterID(dbc dbctx.Context, chapterID uuid.UUID) (*types.ChapterStudioState, error) {
	return r.get(dbc, chapterID, true)
}

func (r *chapterStudioStateRepo) get(dbc dbctx.Context, chapterID uuid.UUID, lock bool) (*types.ChapterStudioState, error) {
	if chapterID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row types.ChapterStudioState
	if err := q.Where("chapter_instance_id = ?", chapterID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ChapterInstanceID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *chapterStudioStateRepo) ListByStatus(dbc dbctx.Context, statuses []string, limit int) ([]*types.ChapterStudioState, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ChapterStudioState
	if len(statuses) == 0 {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("status IN ?", statuses).Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chapterStudioStateRepo) Save(dbc dbctx.Context, row *types.ChapterStudioState) error {
	if row == nil || row.ChapterInstanceID == uuid.Nil {
		return nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.ChapterStudioState{}).
		Where("chapter_instance_id = ?", row.ChapterInstanceID).
		Select("*").
		Omit("chapter_instance_id", "created_at").
		Updates(row).Error
}
