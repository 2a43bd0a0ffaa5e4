package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, kind types.VersionKind, chapterID uuid.UUID, version int, status string, payload any) *types.GenerationVersion {
	tb.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		tb.Fatalf("marshal payload: %v", err)
	}
	now := time.Now().UTC()
	row := &types.GenerationVersion{
		ID:                uuid.New(),
		ChapterInstanceID: chapterID,
		Version:           version,
		Status:            status,
		Payload:           datatypes.JSON(raw),
		Warnings:          datatypes.JSON([]byte("[]")),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if status == types.VersionStatusGenerating {
		lease := now.Add(time.Minute)
		row.LeaseExpiresAt = &lease
	} else {
		row.FinalizedAt = &now
	}
	if err := tx.WithContext(ctx).Table(kind.Table()).Create(row).Error; err != nil {
		tb.Fatalf("seed %s version: %v", kind, err)
	}
	return row
}

func SeedDraft(tb testing.TB, ctx context.Context, tx *gorm.DB, chapterID uuid.UUID, version int, sections ...studio.DraftSection) *types.GenerationVersion {
	tb.Helper()
	return SeedVersion(tb, ctx, tx, types.VersionKindDraft, chapterID, version, types.VersionStatusReady, studio.DraftPayload{Sections: sections})
}

func SeedIllustrations(tb testing.TB, ctx context.Context, tx *gorm.DB, chapterID uuid.UUID, version int, slots ...studio.IllustrationSlot) *types.GenerationVersion {
	tb.Helper()
	return SeedVersion(tb, ctx, tx, types.VersionKindIllustration, chapterID, version, types.VersionStatusReady, studio.IllustrationPayload{Slots: slots})
}

func SeedMediaAsset(tb testing.TB, ctx context.Context, tx *gorm.DB, provider, sourceID string) *types.MediaAsset {
	tb.Helper()
	now := time.Now().UTC()
	row := &types.MediaAsset{
		ID:         uuid.New(),
		Provider:   provider,
		SourceID:   sourceID,
		StorageRef: "media/" + provider + "/" + sourceID + ".jpg",
		URL:        "https://cdn.test/media/" + provider + "/" + sourceID + ".jpg",
		MimeType:   "image/jpeg",
		Width:      640,
		Height:     480,
		AuthorName: "Ada",
		LicenseURL: "https://unsplash.com/license",
		RefCount:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed media asset: %v", err)
	}
	return row
}
