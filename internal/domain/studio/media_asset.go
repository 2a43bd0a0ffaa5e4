package studio

import (
	"time"

	"github.com/google/uuid"
)

// MediaProviderUpload marks user-uploaded media; it is the only provider exempt from attribution.
const MediaProviderUpload = "upload"

// MediaAsset is an externally sourced image stored once per (provider, source_id).
type MediaAsset struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	Provider string `gorm:"column:provider;not null;uniqueIndex:idx_media_asset_source,priority:1" json:"provider"`
	SourceID string `gorm:"column:source_id;not null;uniqueIndex:idx_media_asset_source,priority:2" json:"source_id"`

	StorageRef    string `gorm:"column:storage_ref;not null" json:"storage_ref"`
	URL           string `gorm:"column:url" json:"url"`
	MimeType      string `gorm:"column:mime_type" json:"mime_type"`
	ContentSHA256 string `gorm:"column:content_sha256;index" json:"content_sha256"`
	Width         int    `gorm:"column:width" json:"width"`
	Height        int    `gorm:"column:height" json:"height"`

	AuthorName string `gorm:"column:author_name" json:"author_name"`
	LicenseURL string `gorm:"column:license_url" json:"license_url"`

	RefCount int `gorm:"column:ref_count;not null" json:"ref_count"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (MediaAsset) TableName() string { return "media_asset" }

func (m *MediaAsset) Attribution() Attribution {
	if m == nil {
		return Attribution{}
	}
	return Attribution{AuthorName: m.AuthorName, LicenseURL: m.LicenseURL}
}
