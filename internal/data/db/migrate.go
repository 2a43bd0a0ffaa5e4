package db

import (
	"fmt"

	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// =========================
		// Generation versions
		// =========================
		&types.DraftVersion{},
		&types.IllustrationVersion{},

		// =========================
		// Media
		// =========================
		&types.MediaAsset{},

		// =========================
		// Studio
		// =========================
		&types.ChapterStudioState{},
		&types.ChapterTemplate{},

		// =========================
		// Canvas
		// =========================
		&types.CanvasPage{},
		&types.CanvasNode{},
	); err != nil {
		return err
	}
	return EnsureStudioIndexes(db)
}

// EnsureStudioIndexes creates the partial indexes AutoMigrate cannot express.
// The statements are valid on both Postgres and SQLite.
func EnsureStudioIndexes(db *gorm.DB) error {
	// At most one generating row per chapter and kind.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_draft_version_one_generating
		ON draft_version (chapter_instance_id)
		WHERE status = 'generating';
	`).Error; err != nil {
		return fmt.Errorf("create idx_draft_version_one_generating: %w", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_illustration_version_one_generating
		ON illustration_version (chapter_instance_id)
		WHERE status = 'generating';
	`).Error; err != nil {
		return fmt.Errorf("create idx_illustration_version_one_generating: %w", err)
	}

	// Reaper scan.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_draft_version_generating_lease
		ON draft_version (lease_expires_at)
		WHERE status = 'generating';
	`).Error; err != nil {
		return fmt.Errorf("create idx_draft_version_generating_lease: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_illustration_version_generating_lease
		ON illustration_version (lease_expires_at)
		WHERE status = 'generating';
	`).Error; err != nil {
		return fmt.Errorf("create idx_illustration_version_generating_lease: %w", err)
	}

	// Population listing by chapter key.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_canvas_node_chapter_key_stable
		ON canvas_node (chapter_key, stable_node_key);
	`).Error; err != nil {
		return fmt.Errorf("create idx_canvas_node_chapter_key_stable: %w", err)
	}
	return nil
}
