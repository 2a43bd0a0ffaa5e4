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

type MediaAssetRepo interface {
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.MediaAsset, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MediaAsset, error)
	GetBySource(dbc dbctx.Context, provider, sourceID string) (*types.MediaAsset, error)

	// InsertIfAbsent inserts row unless (provider, source_id) already exists.
	// It reports whether this call inserted the row.
	InsertIfAbsent(dbc dbctx.Context, row *types.MediaAsset) (bool, error)

	IncrementRefCount(dbc dbctx.Context, id uuid.UUID, delta int) error
}

type mediaAssetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMediaAssetRepo(db *gorm.DB, baseLog *logger.Logger) MediaAssetRepo {
	return &mediaAssetRepo{db: db, log: baseLog.With("repo", "MediaAssetRepo")}
}

func (r *mediaAssetRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.MediaAsset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.MediaAsset
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mediaAssetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MediaAsset, error) {
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

func (r *mediaAssetRepo) GetBySource(dbc dbctx.Context, provider, sourceID string) (*types.MediaAsset, error) {
	provider = strings.TrimSpace(provider)
	sourceID = strings.TrimSpace(sourceID)
	if provider == "" || sourceID == "" {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.MediaAsset
	if err := t.WithContext(dbc.Ctx).
		Where("provider = ? AND source_id = ?", provider, sourceID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *mediaAssetRepo) InsertIfAbsent(dbc dbctx.Context, row *types.MediaAsset) (bool, error) {
	if row == nil {
		return false, nil
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
			Columns:   []clause.Column{{Name: "provider"}, {Name: "source_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *mediaAssetRepo) IncrementRefCount(dbc dbctx.Context, id uuid.UUID, delta int) error {
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.MediaAsset{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"ref_count":  gorm.Expr("ref_count + ?", delta),
			"updated_at": time.Now().UTC(),
		}).Error
}
