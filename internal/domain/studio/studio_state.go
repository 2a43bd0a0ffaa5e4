package studio

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StudioStatusNotStarted = "not_started"
	StudioStatusPopulated  = "populated"
	StudioStatusEdited     = "edited"
	StudioStatusFinalized  = "finalized"
)

// StableNode is one entry of a chapter's stable-node inventory.
type StableNode struct {
	NodeID         uuid.UUID `json:"node_id"`
	StableNodeKey  string    `json:"stable_node_key"`
	PageTemplateID string    `json:"page_template_id"`
	SlotID         string    `json:"slot_id"`
	NodeType       string    `json:"node_type"`
	UserEdited     bool      `json:"user_edited,omitempty"`
}

// ChapterStudioState is the single mutable lifecycle row per chapter.
type ChapterStudioState struct {
	ChapterInstanceID uuid.UUID `gorm:"type:uuid;column:chapter_instance_id;primaryKey" json:"chapter_instance_id"`

	// not_started|populated|edited|finalized
	Status string `gorm:"column:status;not null;index" json:"status"`

	LastAppliedDraftVersion        *int `gorm:"column:last_applied_draft_version" json:"last_applied_draft_version"`
	LastAppliedIllustrationVersion *int `gorm:"column:last_applied_illustration_version" json:"last_applied_illustration_version"`

	DraftFingerprint        string `gorm:"column:draft_fingerprint" json:"draft_fingerprint"`
	IllustrationFingerprint string `gorm:"column:illustration_fingerprint" json:"illustration_fingerprint"`

	// Template and slot list the canvas was last populated from.
	AppliedTemplateID string `gorm:"column:applied_template_id" json:"applied_template_id,omitempty"`
	LayoutFingerprint string `gorm:"column:layout_fingerprint" json:"layout_fingerprint,omitempty"`

	PageIDs     datatypes.JSON `gorm:"column:page_ids;type:jsonb" json:"page_ids"`
	StableNodes datatypes.JSON `gorm:"column:stable_nodes;type:jsonb" json:"stable_nodes"`
	Warnings    datatypes.JSON `gorm:"column:warnings;type:jsonb" json:"warnings"`

	PopulatedAt *time.Time `gorm:"column:populated_at" json:"populated_at,omitempty"`
	FinalizedAt *time.Time `gorm:"column:finalized_at" json:"finalized_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ChapterStudioState) TableName() string { return "chapter_studio_state" }

func NewChapterStudioState(chapterID uuid.UUID, now time.Time) *ChapterStudioState {
	return &ChapterStudioState{
		ChapterInstanceID: chapterID,
		Status:            StudioStatusNotStarted,
		PageIDs:           datatypes.JSON([]byte("[]")),
		StableNodes:       datatypes.JSON([]byte("[]")),
		Warnings:          datatypes.JSON([]byte("[]")),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *ChapterStudioState) Nodes() []StableNode {
	var out []StableNode
	if s == nil || len(s.StableNodes) == 0 {
		return out
	}
	_ = json.Unmarshal(s.StableNodes, &out)
	return out
}

func (s *ChapterStudioState) SetNodes(nodes []StableNode) {
	if nodes == nil {
		nodes = []StableNode{}
	}
	s.StableNodes = EncodeJSON(nodes)
}

func (s *ChapterStudioState) Pages() []uuid.UUID {
	var out []uuid.UUID
	if s == nil || len(s.PageIDs) == 0 {
		return out
	}
	_ = json.Unmarshal(s.PageIDs, &out)
	return out
}

func (s *ChapterStudioState) SetPages(ids []uuid.UUID) {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	s.PageIDs = EncodeJSON(ids)
}

func (s *ChapterStudioState) WarningList() []Warning {
	if s == nil {
		return nil
	}
	return DecodeWarnings(s.Warnings)
}

func (s *ChapterStudioState) SetWarnings(ws []Warning) {
	if ws == nil {
		ws = []Warning{}
	}
	s.Warnings = EncodeJSON(ws)
}
