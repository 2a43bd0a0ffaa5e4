package studio

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	NodeTypeText  = "TEXT"
	NodeTypeImage = "IMAGE"
)

const (
	ChangeOriginUser     = "user"
	ChangeOriginPopulate = "populate"
)

// PopulateSource tags canvas nodes written by the population engine.
const PopulateSource = "studio_populate_v1"

// StableNodeKey is the deterministic identity of a populated node.
func StableNodeKey(chapterKey, pageTemplateID, slotID string) string {
	return fmt.Sprintf("%s:%s:%s", chapterKey, pageTemplateID, slotID)
}

// ChapterKey is the canvas-side key of a chapter instance.
func ChapterKey(chapterID uuid.UUID) string {
	return chapterID.String()
}

type PopulateMeta struct {
	Source         string `json:"source"`
	ChapterKey     string `json:"chapter_key"`
	PageTemplateID string `json:"page_template_id"`
	SlotID         string `json:"slot_id"`
	StableNodeKey  string `json:"stable_node_key"`
	DraftVersion   int    `json:"draft_version,omitempty"`
	IllusVersion   int    `json:"illustration_version,omitempty"`
}

type CanvasPage struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChapterKey     string    `gorm:"column:chapter_key;not null;uniqueIndex:idx_canvas_page_chapter_template,priority:1" json:"chapter_key"`
	PageTemplateID string    `gorm:"column:page_template_id;not null;uniqueIndex:idx_canvas_page_chapter_template,priority:2" json:"page_template_id"`
	Position       int       `gorm:"column:position;not null" json:"position"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (CanvasPage) TableName() string { return "canvas_page" }

type CanvasNode struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PageID     uuid.UUID `gorm:"type:uuid;column:page_id;not null;index" json:"page_id"`
	ChapterKey string    `gorm:"column:chapter_key;index" json:"chapter_key"`
	NodeType   string    `gorm:"column:node_type;not null" json:"node_type"`

	Content      datatypes.JSON `gorm:"column:content;type:jsonb" json:"content"`
	Style        datatypes.JSON `gorm:"column:style;type:jsonb" json:"style"`
	PopulateMeta datatypes.JSON `gorm:"column:populate_meta;type:jsonb" json:"populate_meta"`

	// Nil for nodes created outside population.
	StableNodeKey *string `gorm:"column:stable_node_key;uniqueIndex:idx_canvas_node_stable_key" json:"stable_node_key,omitempty"`

	LastChangeOrigin string    `gorm:"column:last_change_origin" json:"last_change_origin"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (CanvasNode) TableName() string { return "canvas_node" }

func (n *CanvasNode) Meta() (PopulateMeta, bool) {
	var out PopulateMeta
	if n == nil || len(n.PopulateMeta) == 0 {
		return out, false
	}
	if err := json.Unmarshal(n.PopulateMeta, &out); err != nil {
		return out, false
	}
	return out, out.Source == PopulateSource && out.ChapterKey != ""
}

// TextContent is the content shape of TEXT nodes.
type TextContent struct {
	Text      string   `json:"text"`
	Title     string   `json:"title,omitempty"`
	SectionID string   `json:"section_id,omitempty"`
	Citations []string `json:"citations,omitempty"`
}

// ImageContent is the content shape of IMAGE nodes.
type ImageContent struct {
	MediaAssetID *uuid.UUID  `json:"media_asset_id,omitempty"`
	URL          string      `json:"url,omitempty"`
	Width        int         `json:"width,omitempty"`
	Height       int         `json:"height,omitempty"`
	Attribution  Attribution `json:"attribution"`
}

// NodePatch is a partial update of a canvas node. Nil fields are left untouched.
type NodePatch struct {
	Content      datatypes.JSON
	Style        datatypes.JSON
	PopulateMeta datatypes.JSON
	ChangeOrigin string
}

// CanvasEditEvent is emitted by the editing surface on every node mutation.
type CanvasEditEvent struct {
	NodeID       uuid.UUID       `json:"node_id"`
	Content      json.RawMessage `json:"content,omitempty"`
	ChangeOrigin string          `json:"change_origin"`
}

// StudioStatusEvent is published whenever a chapter's studio state changes.
type StudioStatusEvent struct {
	ChapterInstanceID uuid.UUID `json:"chapter_instance_id"`
	Status            string    `json:"status"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ChapterTemplate struct {
	ChapterInstanceID uuid.UUID `gorm:"type:uuid;column:chapter_instance_id;primaryKey" json:"chapter_instance_id"`
	TemplateID        string    `gorm:"column:template_id;not null" json:"template_id"`
	CreatedAt         time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time `gorm:"not null" json:"updated_at"`
}

func (ChapterTemplate) TableName() string { return "chapter_template" }

// TemplateSlot is one (pageTemplateId, slotId) target of a chapter template.
type TemplateSlot struct {
	PageTemplateID     string         `json:"page_template_id"`
	PagePosition       int            `json:"page_position"`
	SlotID             string         `json:"slot_id"`
	NodeType           string         `json:"node_type"`
	SectionID          string         `json:"section_id,omitempty"`
	IllustrationSlotID string         `json:"illustration_slot_id,omitempty"`
	Query              string         `json:"query,omitempty"`
	Style              map[string]any `json:"style,omitempty"`
}
