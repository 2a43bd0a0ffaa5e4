package handlers

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/http/response"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/fingerprint"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/generation"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/population"
	"github.com/yungbote/memoir-studio-backend/internal/platform/ctxutil"
	"github.com/yungbote/memoir-studio-backend/internal/services"
)

const maxActionBytes = 1 << 20

type StudioHandler struct {
	studio services.StudioService
}

func NewStudioHandler(studio services.StudioService) *StudioHandler {
	return &StudioHandler{studio: studio}
}

func chapterID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondFailure(c, studio.Errorf(studio.CodeInvalidInput, "invalid chapter id %q", c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

func versionKind(c *gin.Context) (studio.VersionKind, bool) {
	kind := studio.VersionKind(strings.ToLower(c.Param("kind")))
	if !kind.Valid() {
		response.RespondFailure(c, studio.Errorf(studio.CodeInvalidInput, "unknown version kind %q", c.Param("kind")))
		return "", false
	}
	return kind, true
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && err != io.EOF {
		response.RespondFailure(c, studio.Errorf(studio.CodeInvalidInput, "invalid request body: %v", err))
		return false
	}
	return true
}

// POST /api/chapters/:id/versions/:kind
func (h *StudioHandler) BeginVersion(c *gin.Context) {
	id, ok := chapterID(c)
	if !ok {
		return
	}
	kind, ok := versionKind(c)
	if !ok {
		return
	}
	var req struct {
		Fingerprint string `json:"fingerprint"`
	}
	if !bindOptional(c, &req) {
		return
	}
	res, err := h.studio.BeginVersion(c.Request.Context(), services.BeginVersionRequest{
		ChapterInstanceID: id,
		Kind:              kind,
		Fingerprint:       req.Fingerprint,
	})
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	response.RespondCreated(c, gin.H{
		"version_id":           res.VersionID,
		"version":              res.Version,
		"lease_expires_at":     res.LeaseExpiresAt,
		"reclaimed_version_id": res.ReclaimedVersionID,
	})
}

func versionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		response.RespondFailure(c, studio.Errorf(studio.CodeInvalidInput, "invalid version id %q", c.Param("versionId")))
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/versions/:kind/:versionId/ready
func (h *StudioHandler) SetVersionReady(c *gin.Context) {
	kind, ok := versionKind(c)
	if !ok {
		return
	}
	id, ok := versionID(c)
	if !ok {
		return
	}
	var req struct {
		Payload     json.RawMessage  `json:"payload"`
		Fingerprint string           `json:"fingerprint"`
		Warnings    []studio.Warning `json:"warnings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondFailure(c, studio.Errorf(studio.CodeInvalidInput, "invalid request body: %v", err))
		return
	}
	res, err := h.studio.SetVersionReady(c.Request.Context(), domainagg.SetVersionReadyInput{
		Kind:        kind,
		VersionID:   id,
		Payload:     req.Payload,
		Fingerprint: req.Fingerprint,
		Warnings:    req.Warnings,
	})
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"version": res.Row, "already_terminal": res.AlreadyTerminal})
}

// POST /api/versions/:kind/:versionId/error
func (h *StudioHandler) SetVersionError(c *gin.Context) {
	kind, ok := versionKind(c)
	if !ok {
		return
	}
	id, ok := versionID(c)
	if !ok {
		return
	}
	var req struct {
		Warnings []studio.Warning `json:"warnings"`
	}
	if !bindOptional(c, &req) {
		return
	}
	res, err := h.studio.SetVersionError(c.Request.Context(), domainagg.SetVersionErrorInput{
		Kind:      kind,
		VersionID: id,
		Warnings:  req.Warnings,
	})
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"version": res.Row, "already_terminal": res.AlreadyTerminal})
}

// GET /api/chapters/:id/versions/:kind/latest-ready
func (h *StudioHandler) GetLatestReady(c *gin.Context) {
	id, ok := chapterID(c)
	if !ok {
		return
	}
	kind, ok := versionKind(c)
	if !ok {
		return
	}
	row, err := h.studio.GetLatestReady(c.Request.Context(), id, kind)
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"version": row})
}

// POST /api/media/by-source
func (h *StudioHandler) CreateOrGetMedia(c *gin.Context) {
	var req services.MediaSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondFailure(c, studio.Errorf(studio.CodeInvalidInput, "invalid request body: %v", err))
		return
	}
	res, err := h.studio.CreateOrGetBySource(c.Request.Context(), req)
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	body := gin.H{"asset": res.Asset, "reused": res.Reused}
	if res.Reused {
		response.RespondOK(c, body)
		return
	}
	response.RespondCreated(c, body)
}

// POST /api/chapters/:id/populate
func (h *StudioHandler) PopulateChapter(c *gin.Context) {
	id, ok := chapterID(c)
	if !ok {
		return
	}
	var opts population.Options
	if !bindOptional(c, &opts) {
		return
	}
	res := h.studio.PopulateChapter(c.Request.Context(), id, opts)
	if err := res.Err(); err != nil {
		response.RespondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"population": res})
}

// POST /api/chapters/populate
func (h *StudioHandler) PopulateMany(c *gin.Context) {
	var req struct {
		ChapterInstanceIDs []uuid.UUID `json:"chapter_instance_ids"`
		Override           bool        `json:"override"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondFailure(c, studio.Errorf(studio.CodeInvalidInput, "invalid request body: %v", err))
		return
	}
	if len(req.ChapterInstanceIDs) == 0 {
		response.RespondFailure(c, studio.Errorf(studio.CodeInvalidInput, "chapter_instance_ids is empty"))
		return
	}
	results := h.studio.PopulateMany(c.Request.Context(), req.ChapterInstanceIDs, population.Options{Override: req.Override})
	response.RespondOK(c, gin.H{"results": results})
}

// GET /api/chapters/:id/studio
func (h *StudioHandler) GetStudio(c *gin.Context) {
	id, ok := chapterID(c)
	if !ok {
		return
	}
	view, err := h.studio.GetStudio(c.Request.Context(), id)
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"studio": view})
}

// PUT /api/chapters/:id/template
func (h *StudioHandler) SetTemplate(c *gin.Context) {
	id, ok := chapterID(c)
	if !ok {
		return
	}
	var req struct {
		TemplateID string `json:"template_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondFailure(c, studio.Errorf(studio.CodeInvalidInput, "invalid request body: %v", err))
		return
	}
	if err := h.studio.SetChapterTemplate(c.Request.Context(), id, req.TemplateID); err != nil {
		response.RespondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chapter_instance_id": id, "template_id": req.TemplateID})
}

// POST /api/chapters/:id/nodes/:nodeId/edited
func (h *StudioHandler) MarkEdited(c *gin.Context) {
	id, ok := chapterID(c)
	if !ok {
		return
	}
	nodeID, err := uuid.Parse(c.Param("nodeId"))
	if err != nil {
		response.RespondFailure(c, studio.Errorf(studio.CodeInvalidInput, "invalid node id %q", c.Param("nodeId")))
		return
	}
	res, err := h.studio.MarkEdited(c.Request.Context(), id, nodeID)
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"transition": res})
}

// POST /api/chapters/:id/finalize
func (h *StudioHandler) Finalize(c *gin.Context) {
	id, ok := chapterID(c)
	if !ok {
		return
	}
	res, err := h.studio.MarkFinalized(c.Request.Context(), id)
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"transition": res})
}

// POST /api/chapters/:id/generate/draft
func (h *StudioHandler) GenerateDraft(c *gin.Context) {
	id, ok := chapterID(c)
	if !ok {
		return
	}
	var req struct {
		Answers []studio.Answer `json:"answers"`
	}
	if !bindOptional(c, &req) {
		return
	}
	started, err := h.studio.StartDraft(c.Request.Context(), generation.StartDraftInput{
		ChapterInstanceID: id,
		Answers:           req.Answers,
		Subject:           ctxutil.RateSubject(c.Request.Context()),
	})
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"started": started})
}

// POST /api/chapters/:id/generate/illustrations
func (h *StudioHandler) GenerateIllustrations(c *gin.Context) {
	id, ok := chapterID(c)
	if !ok {
		return
	}
	var req struct {
		Targets []fingerprint.SlotTarget `json:"targets"`
	}
	if !bindOptional(c, &req) {
		return
	}
	started, err := h.studio.StartIllustrations(c.Request.Context(), generation.StartIllustrationsInput{
		ChapterInstanceID: id,
		Targets:           req.Targets,
		Subject:           ctxutil.RateSubject(c.Request.Context()),
	})
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"started": started})
}

// POST /api/chapters/:id/actions
func (h *StudioHandler) Dispatch(c *gin.Context) {
	id, ok := chapterID(c)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxActionBytes))
	if err != nil {
		response.RespondFailure(c, studio.Errorf(studio.CodeInvalidInput, "read action: %v", err))
		return
	}
	action, err := studio.ParseAction(raw)
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	res, err := h.studio.Dispatch(c.Request.Context(), id, action, ctxutil.RateSubject(c.Request.Context()))
	if err != nil {
		response.RespondFailure(c, err)
		return
	}
	if res.Started != nil {
		response.RespondAccepted(c, gin.H{"result": res})
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}
