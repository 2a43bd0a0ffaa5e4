package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/yungbote/memoir-studio-backend/internal/data/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/data/repos"
	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/generation"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/mediacache"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/population"
	"github.com/yungbote/memoir-studio-backend/internal/observability"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
	"github.com/yungbote/memoir-studio-backend/internal/platform/openai"
	"github.com/yungbote/memoir-studio-backend/internal/platform/promptstyle"
)

// SourceFetcher downloads a known item from an external media provider.
type SourceFetcher interface {
	FetchSource(ctx context.Context, sourceID string) (*mediacache.Fetched, error)
}

// CanvasNodes is the slice of the canvas store the studio service edits through.
type CanvasNodes interface {
	GetNode(dbc dbctx.Context, id uuid.UUID) (*types.CanvasNode, error)
	PatchNode(dbc dbctx.Context, id uuid.UUID, patch types.NodePatch) error
}

// TemplateAssigner pins a chapter to a template.
type TemplateAssigner interface {
	TemplateIDForChapter(dbc dbctx.Context, chapterID uuid.UUID) (string, error)
	SetChapterTemplate(dbc dbctx.Context, chapterID uuid.UUID, templateID string) error
}

type BeginVersionRequest struct {
	ChapterInstanceID uuid.UUID          `json:"chapter_instance_id"`
	Kind              studio.VersionKind `json:"kind"`
	Fingerprint       string             `json:"fingerprint"`
}

type MediaSourceRequest struct {
	Provider string `json:"provider"`
	SourceID string `json:"source_id"`

	// Upload only.
	Data        []byte             `json:"data,omitempty"`
	MimeType    string             `json:"mime_type,omitempty"`
	Attribution studio.Attribution `json:"attribution"`
}

// StudioView is the studio badge plus the latest attempt of each version kind.
type StudioView struct {
	State              *types.ChapterStudioState `json:"state"`
	TemplateID         string                    `json:"template_id"`
	LatestDraft        *types.GenerationVersion  `json:"latest_draft,omitempty"`
	LatestIllustration *types.GenerationVersion  `json:"latest_illustration,omitempty"`
}

// ActionResult carries the outcome of one dispatched studio action. Exactly one field
// besides Kind is set.
type ActionResult struct {
	Kind       studio.ActionKind                 `json:"kind"`
	Started    *generation.Started               `json:"started,omitempty"`
	Population *population.Result                `json:"population,omitempty"`
	Transition *domainagg.StudioTransitionResult `json:"transition,omitempty"`
	Node       *types.CanvasNode                 `json:"node,omitempty"`
}

type StudioService interface {
	BeginVersion(ctx context.Context, in BeginVersionRequest) (domainagg.BeginVersionResult, error)
	SetVersionReady(ctx context.Context, in domainagg.SetVersionReadyInput) (domainagg.FinalizeVersionResult, error)
	SetVersionError(ctx context.Context, in domainagg.SetVersionErrorInput) (domainagg.FinalizeVersionResult, error)
	GetLatestReady(ctx context.Context, chapterID uuid.UUID, kind studio.VersionKind) (*types.GenerationVersion, error)

	CreateOrGetBySource(ctx context.Context, in MediaSourceRequest) (mediacache.Result, error)

	PopulateChapter(ctx context.Context, chapterID uuid.UUID, opts population.Options) population.Result
	PopulateMany(ctx context.Context, chapterIDs []uuid.UUID, opts population.Options) []population.Result

	GetStudio(ctx context.Context, chapterID uuid.UUID) (*StudioView, error)
	SetChapterTemplate(ctx context.Context, chapterID uuid.UUID, templateID string) error
	MarkEdited(ctx context.Context, chapterID, nodeID uuid.UUID) (domainagg.StudioTransitionResult, error)
	MarkFinalized(ctx context.Context, chapterID uuid.UUID) (domainagg.StudioTransitionResult, error)
	NotifyTransition(ctx context.Context, res domainagg.StudioTransitionResult)

	StartDraft(ctx context.Context, in generation.StartDraftInput) (generation.Started, error)
	StartIllustrations(ctx context.Context, in generation.StartIllustrationsInput) (generation.Started, error)

	// Dispatch runs one client action against a chapter.
	Dispatch(ctx context.Context, chapterID uuid.UUID, action studio.Action, subject string) (ActionResult, error)
}

type StudioServiceDeps struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	Versions      domainagg.GenerationVersionAggregate
	Drafts        repos.GenerationVersionRepo
	Illustrations repos.GenerationVersionRepo
	States        repos.ChapterStudioStateRepo
	Studio        aggregates.ChapterStudioAggregate

	Media      *mediacache.Cache
	Fetchers   map[string]SourceFetcher
	Population *population.Engine
	Generation *generation.Runner
	Canvas     CanvasNodes
	Templates  TemplateAssigner
	Notifier   StudioNotifier
	AI         openai.Client

	LeaseTTL            time.Duration
	PopulateConcurrency int
}

type studioService struct {
	log  *logger.Logger
	deps StudioServiceDeps
}

func NewStudioService(deps StudioServiceDeps) StudioService {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &studioService{log: deps.Log.With("service", "StudioService"), deps: deps}
}

func (s *studioService) versionRepo(kind studio.VersionKind) (repos.GenerationVersionRepo, error) {
	switch kind {
	case studio.VersionKindDraft:
		return s.deps.Drafts, nil
	case studio.VersionKindIllustration:
		return s.deps.Illustrations, nil
	default:
		return nil, studio.Errorf(studio.CodeInvalidInput, "unknown version kind %q", kind)
	}
}

func (s *studioService) BeginVersion(ctx context.Context, in BeginVersionRequest) (domainagg.BeginVersionResult, error) {
	if in.ChapterInstanceID == uuid.Nil {
		return domainagg.BeginVersionResult{}, studio.Errorf(studio.CodeInvalidInput, "missing chapter_instance_id")
	}
	if !in.Kind.Valid() {
		return domainagg.BeginVersionResult{}, studio.Errorf(studio.CodeInvalidInput, "unknown version kind %q", in.Kind)
	}
	res, err := s.deps.Versions.Begin(ctx, domainagg.BeginVersionInput{
		ChapterInstanceID: in.ChapterInstanceID,
		Kind:              in.Kind,
		Fingerprint:       strings.TrimSpace(in.Fingerprint),
		LeaseTTL:          s.deps.LeaseTTL,
	})
	outcome := "admitted"
	if err != nil {
		outcome = "error"
		if code := studio.CodeOf(err); code != "" {
			outcome = strings.ToLower(string(code))
		}
	}
	s.deps.Metrics.IncGenerationStarted(string(in.Kind), outcome)
	return res, err
}

func (s *studioService) SetVersionReady(ctx context.Context, in domainagg.SetVersionReadyInput) (domainagg.FinalizeVersionResult, error) {
	if err := validatePayload(in.Kind, in.Payload); err != nil {
		return domainagg.FinalizeVersionResult{}, err
	}
	res, err := s.deps.Versions.SetReady(ctx, in)
	if err == nil && !res.AlreadyTerminal {
		s.deps.Metrics.IncGenerationFinished(string(in.Kind), types.VersionStatusReady)
		s.finished(ctx, in.Kind, res.Row)
	}
	return res, err
}

func (s *studioService) SetVersionError(ctx context.Context, in domainagg.SetVersionErrorInput) (domainagg.FinalizeVersionResult, error) {
	if !in.Kind.Valid() {
		return domainagg.FinalizeVersionResult{}, studio.Errorf(studio.CodeInvalidInput, "unknown version kind %q", in.Kind)
	}
	res, err := s.deps.Versions.SetError(ctx, in)
	if err == nil && !res.AlreadyTerminal {
		s.deps.Metrics.IncGenerationFinished(string(in.Kind), types.VersionStatusError)
		s.finished(ctx, in.Kind, res.Row)
	}
	return res, err
}

func (s *studioService) finished(ctx context.Context, kind studio.VersionKind, row *types.GenerationVersion) {
	if row == nil || s.deps.Notifier == nil {
		return
	}
	s.deps.Notifier.GenerationFinished(ctx, generation.Finished{
		Kind:              kind,
		ChapterInstanceID: row.ChapterInstanceID,
		VersionID:         row.ID,
		Version:           row.Version,
		Status:            row.Status,
		Warnings:          studio.DecodeWarnings(row.Warnings),
	})
}

// validatePayload rejects ready payloads that do not decode as the kind's shape.
func validatePayload(kind studio.VersionKind, payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}
	var err error
	switch kind {
	case studio.VersionKindDraft:
		_, err = studio.DecodeDraftPayload(datatypes.JSON(payload))
	case studio.VersionKindIllustration:
		_, err = studio.DecodeIllustrationPayload(datatypes.JSON(payload))
	default:
		return studio.Errorf(studio.CodeInvalidInput, "unknown version kind %q", kind)
	}
	if err != nil {
		return studio.Errorf(studio.CodeInvalidInput, "%s payload does not decode: %v", kind, err)
	}
	return nil
}

func (s *studioService) GetLatestReady(ctx context.Context, chapterID uuid.UUID, kind studio.VersionKind) (*types.GenerationVersion, error) {
	repo, err := s.versionRepo(kind)
	if err != nil {
		return nil, err
	}
	if chapterID == uuid.Nil {
		return nil, studio.Errorf(studio.CodeInvalidInput, "missing chapter_instance_id")
	}
	return repo.GetLatestReady(dbctx.Context{Ctx: ctx}, chapterID)
}

func (s *studioService) CreateOrGetBySource(ctx context.Context, in MediaSourceRequest) (mediacache.Result, error) {
	if s.deps.Media == nil {
		return mediacache.Result{}, studio.Errorf(studio.CodeInternal, "media cache not configured")
	}
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	sourceID := strings.TrimSpace(in.SourceID)
	var fetch mediacache.FetchFunc
	if provider == types.MediaProviderUpload {
		if len(in.Data) == 0 {
			return mediacache.Result{}, studio.Errorf(studio.CodeInvalidInput, "upload has no data")
		}
		fetch = func(context.Context) (*mediacache.Fetched, error) {
			return &mediacache.Fetched{Body: in.Data, MimeType: in.MimeType, Attribution: in.Attribution}, nil
		}
	} else {
		f, ok := s.deps.Fetchers[provider]
		if !ok {
			return mediacache.Result{}, studio.Errorf(studio.CodeInvalidInput, "unsupported media provider %q", in.Provider)
		}
		fetch = func(ctx context.Context) (*mediacache.Fetched, error) {
			return f.FetchSource(ctx, sourceID)
		}
	}
	return s.deps.Media.CreateOrGetBySource(ctx, provider, sourceID, fetch)
}

func (s *studioService) PopulateChapter(ctx context.Context, chapterID uuid.UUID, opts population.Options) population.Result {
	res := s.deps.Population.PopulateChapter(ctx, chapterID, opts)
	s.populated(ctx, res)
	return res
}

func (s *studioService) PopulateMany(ctx context.Context, chapterIDs []uuid.UUID, opts population.Options) []population.Result {
	out := s.deps.Population.PopulateMany(ctx, chapterIDs, opts, s.deps.PopulateConcurrency)
	for _, res := range out {
		s.populated(ctx, res)
	}
	return out
}

func (s *studioService) populated(ctx context.Context, res population.Result) {
	if !res.OK || res.Reused || s.deps.Notifier == nil {
		return
	}
	s.deps.Notifier.StatusChanged(ctx, res.ChapterInstanceID, res.Status, time.Now())
}

func (s *studioService) GetStudio(ctx context.Context, chapterID uuid.UUID) (*StudioView, error) {
	if chapterID == uuid.Nil {
		return nil, studio.Errorf(studio.CodeInvalidInput, "missing chapter_instance_id")
	}
	dbc := dbctx.Context{Ctx: ctx}
	st, err := s.deps.States.GetByChapterID(dbc, chapterID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = types.NewChapterStudioState(chapterID, time.Now().UTC())
	}
	view := &StudioView{State: st}
	if s.deps.Templates != nil {
		if view.TemplateID, err = s.deps.Templates.TemplateIDForChapter(dbc, chapterID); err != nil {
			return nil, err
		}
	}
	if view.LatestDraft, err = s.deps.Drafts.GetLatest(dbc, chapterID); err != nil {
		return nil, err
	}
	if view.LatestIllustration, err = s.deps.Illustrations.GetLatest(dbc, chapterID); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *studioService) SetChapterTemplate(ctx context.Context, chapterID uuid.UUID, templateID string) error {
	if chapterID == uuid.Nil {
		return studio.Errorf(studio.CodeInvalidInput, "missing chapter_instance_id")
	}
	if s.deps.Templates == nil {
		return studio.Errorf(studio.CodeInternal, "templates not configured")
	}
	return s.deps.Templates.SetChapterTemplate(dbctx.Context{Ctx: ctx}, chapterID, strings.TrimSpace(templateID))
}

func (s *studioService) MarkEdited(ctx context.Context, chapterID, nodeID uuid.UUID) (domainagg.StudioTransitionResult, error) {
	res, err := s.deps.Studio.MarkEdited(ctx, domainagg.MarkStudioEditedInput{ChapterInstanceID: chapterID, NodeID: nodeID})
	if err != nil {
		return res, err
	}
	s.transitioned(ctx, res)
	return res, nil
}

func (s *studioService) MarkFinalized(ctx context.Context, chapterID uuid.UUID) (domainagg.StudioTransitionResult, error) {
	res, err := s.deps.Studio.MarkFinalized(ctx, domainagg.MarkStudioFinalizedInput{ChapterInstanceID: chapterID})
	if err != nil {
		return res, err
	}
	s.transitioned(ctx, res)
	return res, nil
}

// NotifyTransition publishes a studio transition made outside the service, such as an
// edit observed on the canvas event stream.
func (s *studioService) NotifyTransition(ctx context.Context, res domainagg.StudioTransitionResult) {
	s.transitioned(ctx, res)
}

func (s *studioService) transitioned(ctx context.Context, res domainagg.StudioTransitionResult) {
	if !res.Changed || res.FromStatus == res.Status || s.deps.Notifier == nil {
		return
	}
	s.deps.Notifier.StatusChanged(ctx, res.ChapterInstanceID, res.Status, res.At)
}

func (s *studioService) StartDraft(ctx context.Context, in generation.StartDraftInput) (generation.Started, error) {
	if s.deps.Generation == nil {
		return generation.Started{}, studio.Errorf(studio.CodeInternal, "generation not configured")
	}
	return s.deps.Generation.StartDraft(ctx, in)
}

func (s *studioService) StartIllustrations(ctx context.Context, in generation.StartIllustrationsInput) (generation.Started, error) {
	if s.deps.Generation == nil {
		return generation.Started{}, studio.Errorf(studio.CodeInternal, "generation not configured")
	}
	return s.deps.Generation.StartIllustrations(ctx, in)
}

func (s *studioService) Dispatch(ctx context.Context, chapterID uuid.UUID, action studio.Action, subject string) (ActionResult, error) {
	out := ActionResult{Kind: action.Kind}
	if err := action.Validate(); err != nil {
		return out, err
	}
	ctx, span := observability.StartSpan(ctx, "studio.dispatch_action",
		attribute.String("chapter_instance_id", chapterID.String()),
		attribute.String("action", string(action.Kind)),
	)
	var err error
	switch action.Kind {
	case studio.ActionRegenerateDraft:
		var started generation.Started
		started, err = s.StartDraft(ctx, generation.StartDraftInput{
			ChapterInstanceID: chapterID,
			Answers:           action.RegenerateDraft.Answers,
			Subject:           subject,
		})
		if err == nil {
			out.Started = &started
		}
	case studio.ActionRegenerateIllustrations:
		var started generation.Started
		started, err = s.StartIllustrations(ctx, generation.StartIllustrationsInput{
			ChapterInstanceID: chapterID,
			Subject:           subject,
		})
		if err == nil {
			out.Started = &started
		}
	case studio.ActionPopulate:
		res := s.PopulateChapter(ctx, chapterID, population.Options{Override: action.Populate.Override})
		out.Population = &res
		err = res.Err()
	case studio.ActionFinalize:
		var res domainagg.StudioTransitionResult
		res, err = s.MarkFinalized(ctx, chapterID)
		if err == nil {
			out.Transition = &res
		}
	case studio.ActionAskAI:
		var node *types.CanvasNode
		node, err = s.askAI(ctx, chapterID, *action.AskAI)
		out.Node = node
	default:
		err = studio.Errorf(studio.CodeInvalidInput, "unhandled action kind %q", action.Kind)
	}
	observability.EndSpan(span, err)
	if err != nil {
		s.log.Warn("studio action failed", "chapter_instance_id", chapterID, "action", action.Kind, "error", err)
	}
	return out, err
}

// askAI rewrites one populated text node through the model. The write counts as a user
// edit, so later populations leave the node alone.
func (s *studioService) askAI(ctx context.Context, chapterID uuid.UUID, in studio.AskAIAction) (*types.CanvasNode, error) {
	if s.deps.AI == nil || s.deps.Canvas == nil {
		return nil, studio.Errorf(studio.CodeInternal, "ask_ai not configured")
	}
	dbc := dbctx.Context{Ctx: ctx}
	node, err := s.deps.Canvas.GetNode(dbc, in.NodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, studio.Errorf(studio.CodeNotFound, "node %s not found", in.NodeID)
	}
	if node.ChapterKey != studio.ChapterKey(chapterID) {
		return nil, studio.Errorf(studio.CodeNotFound, "node %s does not belong to chapter %s", in.NodeID, chapterID)
	}
	if node.NodeType != studio.NodeTypeText {
		return nil, studio.Errorf(studio.CodeInvalidInput, "ask_ai only rewrites %s nodes, node %s is %s", studio.NodeTypeText, node.ID, node.NodeType)
	}
	var content studio.TextContent
	if len(node.Content) > 0 {
		if err := json.Unmarshal(node.Content, &content); err != nil {
			return nil, studio.NewError(studio.CodeInternal, fmt.Sprintf("node %s content does not decode", node.ID), err)
		}
	}

	system := promptstyle.Compose(promptstyle.OutputText,
		"Rewrite one passage of a memoir chapter as the author asks.",
		"Keep every fact in the passage and add none.",
	)
	user := fmt.Sprintf("Request: %s\n\nPassage:\n%s", strings.TrimSpace(in.Prompt), content.Text)
	text, err := s.deps.AI.GenerateText(ctx, system, user)
	if err != nil {
		return nil, studio.NewError(studio.CodeInternal, "ask_ai generation failed", err)
	}
	content.Text = strings.TrimSpace(text)
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}

	var from string
	now := time.Now().UTC()
	st, changed, err := s.deps.Studio.Mutate(ctx, "Studio.AskAI.RewriteNode", chapterID, func(dbc dbctx.Context, st *types.ChapterStudioState) (bool, error) {
		from = st.Status
		if st.Status == studio.StudioStatusFinalized {
			return false, studio.Errorf(studio.CodeInvalidAction, "chapter is finalized")
		}
		if err := s.deps.Canvas.PatchNode(dbc, node.ID, types.NodePatch{
			Content:      datatypes.JSON(raw),
			ChangeOrigin: studio.ChangeOriginUser,
		}); err != nil {
			return false, err
		}
		return studio.MarkNodeEdited(st, node.ID, now), nil
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(ctx, domainagg.StudioTransitionResult{
		ChapterInstanceID: chapterID,
		FromStatus:        from,
		Status:            st.Status,
		Changed:           changed,
		At:                now,
	})
	return s.deps.Canvas.GetNode(dbctx.Context{Ctx: ctx}, node.ID)
}
