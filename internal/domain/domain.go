package domain

import (
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
)

const (
	VersionKindDraft        = studio.VersionKindDraft
	VersionKindIllustration = studio.VersionKindIllustration

	VersionStatusGenerating = studio.VersionStatusGenerating
	VersionStatusReady      = studio.VersionStatusReady
	VersionStatusError      = studio.VersionStatusError

	StudioStatusNotStarted = studio.StudioStatusNotStarted
	StudioStatusPopulated  = studio.StudioStatusPopulated
	StudioStatusEdited     = studio.StudioStatusEdited
	StudioStatusFinalized  = studio.StudioStatusFinalized

	NodeTypeText  = studio.NodeTypeText
	NodeTypeImage = studio.NodeTypeImage

	ChangeOriginUser     = studio.ChangeOriginUser
	ChangeOriginPopulate = studio.ChangeOriginPopulate

	MediaProviderUpload = studio.MediaProviderUpload
)

type (
	VersionKind         = studio.VersionKind
	GenerationVersion   = studio.GenerationVersion
	DraftVersion        = studio.DraftVersion
	IllustrationVersion = studio.IllustrationVersion

	MediaAsset         = studio.MediaAsset
	ChapterStudioState = studio.ChapterStudioState
	StableNode         = studio.StableNode
	ChapterTemplate    = studio.ChapterTemplate

	CanvasPage   = studio.CanvasPage
	CanvasNode   = studio.CanvasNode
	PopulateMeta = studio.PopulateMeta
	NodePatch    = studio.NodePatch
	TemplateSlot = studio.TemplateSlot
	TextContent  = studio.TextContent
	ImageContent = studio.ImageContent
)

var (
	NewChapterStudioState = studio.NewChapterStudioState
	StableNodeKey         = studio.StableNodeKey
	ChapterKey            = studio.ChapterKey

	IsTerminalVersionStatus = studio.IsTerminalVersionStatus
)
