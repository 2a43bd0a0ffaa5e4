package studio

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// VersionKind selects one of the two independently numbered generation artifacts of a chapter.
type VersionKind string

const (
	VersionKindDraft        VersionKind = "draft"
	VersionKindIllustration VersionKind = "illustration"
)

func (k VersionKind) Valid() bool {
	return k == VersionKindDraft || k == VersionKindIllustration
}

// Table is the physical table holding rows of this kind.
func (k VersionKind) Table() string {
	switch k {
	case VersionKindDraft:
		return DraftVersion{}.TableName()
	case VersionKindIllustration:
		return IllustrationVersion{}.TableName()
	default:
		return ""
	}
}

const (
	VersionStatusGenerating = "generating"
	VersionStatusReady      = "ready"
	VersionStatusError      = "error"
)

func IsTerminalVersionStatus(status string) bool {
	return status == VersionStatusReady || status == VersionStatusError
}

// GenerationVersion is the read/write shape shared by draft_version and illustration_version.
// It is always addressed through an explicit table (see VersionKind.Table).
//
// Rows are immutable once Status is ready or error. An error row still consumes its Version.
type GenerationVersion struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChapterInstanceID uuid.UUID `gorm:"type:uuid;column:chapter_instance_id;not null" json:"chapter_instance_id"`
	Version           int       `gorm:"column:version;not null" json:"version"`

	// generating|ready|error
	Status string `gorm:"column:status;not null" json:"status"`

	// DraftPayload or IllustrationPayload depending on the table.
	Payload datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`

	// Drafts: answers fingerprint. Illustrations: slot target fingerprint.
	Fingerprint string         `gorm:"column:fingerprint" json:"fingerprint"`
	Warnings    datatypes.JSON `gorm:"column:warnings;type:jsonb" json:"warnings"`

	LeaseExpiresAt *time.Time `gorm:"column:lease_expires_at" json:"lease_expires_at,omitempty"`
	FinalizedAt    *time.Time `gorm:"column:finalized_at" json:"finalized_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// DraftVersion declares the draft_version schema. Reads and writes go through GenerationVersion.
type DraftVersion struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ChapterInstanceID uuid.UUID      `gorm:"type:uuid;column:chapter_instance_id;not null;uniqueIndex:idx_draft_version_chapter_version,priority:1"`
	Version           int            `gorm:"column:version;not null;uniqueIndex:idx_draft_version_chapter_version,priority:2"`
	Status            string         `gorm:"column:status;not null;index"`
	Payload           datatypes.JSON `gorm:"column:payload;type:jsonb"`
	Fingerprint       string         `gorm:"column:fingerprint;index"`
	Warnings          datatypes.JSON `gorm:"column:warnings;type:jsonb"`
	LeaseExpiresAt    *time.Time     `gorm:"column:lease_expires_at;index"`
	FinalizedAt       *time.Time     `gorm:"column:finalized_at"`
	CreatedAt         time.Time      `gorm:"not null;index"`
	UpdatedAt         time.Time      `gorm:"not null"`
}

func (DraftVersion) TableName() string { return "draft_version" }

// IllustrationVersion declares the illustration_version schema.
type IllustrationVersion struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ChapterInstanceID uuid.UUID      `gorm:"type:uuid;column:chapter_instance_id;not null;uniqueIndex:idx_illustration_version_chapter_version,priority:1"`
	Version           int            `gorm:"column:version;not null;uniqueIndex:idx_illustration_version_chapter_version,priority:2"`
	Status            string         `gorm:"column:status;not null;index"`
	Payload           datatypes.JSON `gorm:"column:payload;type:jsonb"`
	Fingerprint       string         `gorm:"column:fingerprint;index"`
	Warnings          datatypes.JSON `gorm:"column:warnings;type:jsonb"`
	LeaseExpiresAt    *time.Time     `gorm:"column:lease_expires_at;index"`
	FinalizedAt       *time.Time     `gorm:"column:finalized_at"`
	CreatedAt         time.Time      `gorm:"not null;index"`
	UpdatedAt         time.Time      `gorm:"not null"`
}

func (IllustrationVersion) TableName() string { return "illustration_version" }
