package studio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

// GenerationVersionRepo reads and writes one version table (draft_version or illustration_version).
type GenerationVersionRepo interface {
	Kind() types.VersionKind

	Create(dbc dbctx.Context, rows []*types.GenerationVersion) ([]*types.GenerationVersion, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationVersion, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationVersion, error)

	// LockLatest returns the highest version row for the chapter, row-locked.
	LockLatest(dbc dbctx.Context, chapterID uuid.UUID) (*types.GenerationVersion, error)
	GetLatest(dbc dbctx.Context, chapterID uuid.UUID) (*types.GenerationVersion, error)
	GetLatestReady(dbc dbctx.Context, chapterID uuid.UUID) (*types.GenerationVersion, error)
	GetMaxVersion(dbc dbctx.Context, chapterID uuid.UUID) (int, error)

	ListByChapterID(dbc dbctx.Context, chapterID uuid.UUID) ([]*types.GenerationVersion, error)
	ListExpiredGenerating(dbc dbctx.Context, now time.Time, limit int) ([]*types.GenerationVersion, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type generationVersionRepo struct {
	db    *gorm.DB
	log   *logger.Logger
	kind  types.VersionKind
	table string
}

func NewGenerationVersionRepo(db *gorm.DB, baseLog *logger.Logger, kind types.VersionKind) GenerationVersionRepo {
	if !kind.Valid() {
		panic(fmt.Sprintf("unknown version kind %q", kind))
	}
	return &generationVersionRepo{
		db:    db,
		log:   baseLog.With("repo", "GenerationVersionRepo", "kind", string(kind)),
		kind:  kind,
		table: kind.Table(),
	}
}

func (r *generationVersionRepo) Kind() types.VersionKind { return r.kind }

func (r *generationVersionRepo) Create(dbc dbctx.Context, rows []*types.GenerationVersion) ([]*types.GenerationVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.GenerationVersion{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Table(r.table).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *generationVersionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationVersion, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.GenerationVersion
	if err := t.WithContext(dbc.Ctx).Table(r.table).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *generationVersionRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationVersion, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.GenerationVersion
	err := t.WithContext(dbc.Ctx).
		Table(r.table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *generationVersionRepo) LockLatest(dbc dbctx.Context, chapterID uuid.UUID) (*types.GenerationVersion, error) {
	return r.latest(dbc, chapterID, "", true)
}

func (r *generationVersionRepo) GetLatest(dbc dbctx.Context, chapterID uuid.UUID) (*types.GenerationVersion, error) {
	return r.latest(dbc, chapterID, "", false)
}

func (r *generationVersionRepo) GetLatestReady(dbc dbctx.Context, chapterID uuid.UUID) (*types.GenerationVersion, error) {
	return r.latest(dbc, chapterID, types.VersionStatusReady, false)
}

func (r *generationVersionRepo) latest(dbc dbctx.Context, chapterID uuid.UUID, status string, lock bool) (*types.GenerationVersion, error) {
	if chapterID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx).Table(r.table).Where("chapter_instance_id = ?", chapterID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row types.GenerationVersion
	if err := q.Order("version DESC").Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *generationVersionRepo) GetMaxVersion(dbc dbctx.Context, chapterID uuid.UUID) (int, error) {
	if chapterID == uuid.Nil {
		return 0, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var maxVersion int
	err := t.WithContext(dbc.Ctx).
		Table(r.table).
		Where("chapter_instance_id = ?", chapterID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, err
	}
	return maxVersion, nil
}

func (r *generationVersionRepo) ListByChapterID(dbc dbctx.Context, chapterID uuid.UUID) ([]*types.GenerationVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.GenerationVersion
	if chapterID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Table(r.table).
		Where("chapter_instance_id = ?", chapterID).
		Order("version ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generationVersionRepo) ListExpiredGenerating(dbc dbctx.Context, now time.Time, limit int) ([]*types.GenerationVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.GenerationVersion
	if err := t.WithContext(dbc.Ctx).
		Table(r.table).
		Where("status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?", types.VersionStatusGenerating, now).
		Order("lease_expires_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generationVersionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Table(r.table).Where("id = ?", id).Updates(updates).Error
}
