package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/memoir-studio-backend/internal/data/repos"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

type Repos struct {
	Drafts          repos.GenerationVersionRepo
	Illustrations   repos.GenerationVersionRepo
	MediaAssets     repos.MediaAssetRepo
	StudioStates    repos.ChapterStudioStateRepo
	ChapterTemplate repos.ChapterTemplateRepo
	Canvas          *repos.CanvasStore
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Drafts:          repos.NewDraftVersionRepo(db, log),
		Illustrations:   repos.NewIllustrationVersionRepo(db, log),
		MediaAssets:     repos.NewMediaAssetRepo(db, log),
		StudioStates:    repos.NewChapterStudioStateRepo(db, log),
		ChapterTemplate: repos.NewChapterTemplateRepo(db, log),
		Canvas:          repos.NewCanvasStore(db, log),
	}
}
