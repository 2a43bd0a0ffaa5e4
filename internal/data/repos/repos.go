package repos

import (
	"github.com/yungbote/memoir-studio-backend/internal/data/repos/canvas"
	"github.com/yungbote/memoir-studio-backend/internal/data/repos/studio"
	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type GenerationVersionRepo = studio.GenerationVersionRepo
type MediaAssetRepo = studio.MediaAssetRepo
type ChapterStudioStateRepo = studio.ChapterStudioStateRepo
type ChapterTemplateRepo = studio.ChapterTemplateRepo

type CanvasPageRepo = canvas.CanvasPageRepo
type CanvasNodeRepo = canvas.CanvasNodeRepo
type CanvasStore = canvas.Store

func NewGenerationVersionRepo(db *gorm.DB, baseLog *logger.Logger, kind types.VersionKind) GenerationVersionRepo {
	return studio.NewGenerationVersionRepo(db, baseLog, kind)
}
func NewDraftVersionRepo(db *gorm.DB, baseLog *logger.Logger) GenerationVersionRepo {
	return studio.NewGenerationVersionRepo(db, baseLog, types.VersionKindDraft)
}
func NewIllustrationVersionRepo(db *gorm.DB, baseLog *logger.Logger) GenerationVersionRepo {
	return studio.NewGenerationVersionRepo(db, baseLog, types.VersionKindIllustration)
}
func NewMediaAssetRepo(db *gorm.DB, baseLog *logger.Logger) MediaAssetRepo {
	return studio.NewMediaAssetRepo(db, baseLog)
}
func NewChapterStudioStateRepo(db *gorm.DB, baseLog *logger.Logger) ChapterStudioStateRepo {
	return studio.NewChapterStudioStateRepo(db, baseLog)
}
func NewChapterTemplateRepo(db *gorm.DB, baseLog *logger.Logger) ChapterTemplateRepo {
	return studio.NewChapterTemplateRepo(db, baseLog)
}

func NewCanvasPageRepo(db *gorm.DB, baseLog *logger.Logger) CanvasPageRepo {
	return canvas.NewCanvasPageRepo(db, baseLog)
}
func NewCanvasNodeRepo(db *gorm.DB, baseLog *logger.Logger) CanvasNodeRepo {
	return canvas.NewCanvasNodeRepo(db, baseLog)
}
func NewCanvasStore(db *gorm.DB, baseLog *logger.Logger) *CanvasStore {
	return canvas.NewStore(canvas.NewCanvasPageRepo(db, baseLog), canvas.NewCanvasNodeRepo(db, baseLog))
}
