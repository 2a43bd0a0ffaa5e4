package templates

import (
	"github.com/google/uuid"

	"github.com/yungbote/memoir-studio-backend/internal/data/repos"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
)

// Resolver picks a chapter's template: its chapter_template override, else the registry default.
type Resolver struct {
	Registry  *Registry
	Overrides repos.ChapterTemplateRepo
}

func NewResolver(reg *Registry, overrides repos.ChapterTemplateRepo) *Resolver {
	return &Resolver{Registry: reg, Overrides: overrides}
}

func (r *Resolver) TemplateIDForChapter(dbc dbctx.Context, chapterID uuid.UUID) (string, error) {
	if r.Overrides != nil {
		row, err := r.Overrides.GetByChapterID(dbc, chapterID)
		if err != nil {
			return "", err
		}
		if row != nil && r.Registry.Has(row.TemplateID) {
			return row.TemplateID, nil
		}
	}
	return r.Registry.DefaultTemplateID(), nil
}

func (r *Resolver) SlotsForChapter(dbc dbctx.Context, chapterID uuid.UUID) (string, []studio.TemplateSlot, error) {
	id, err := r.TemplateIDForChapter(dbc, chapterID)
	if err != nil {
		return "", nil, err
	}
	slots, err := r.Registry.GetSlotsForTemplate(id)
	if err != nil {
		return "", nil, err
	}
	return id, slots, nil
}

func (r *Resolver) SetChapterTemplate(dbc dbctx.Context, chapterID uuid.UUID, templateID string) error {
	if chapterID == uuid.Nil {
		return studio.NewError(studio.CodeInvalidInput, "missing chapter id", nil)
	}
	if !r.Registry.Has(templateID) {
		return studio.Errorf(studio.CodeInvalidInput, "unknown template %q", templateID)
	}
	if r.Overrides == nil {
		return studio.NewError(studio.CodeInternal, "chapter template overrides not configured", nil)
	}
	return r.Overrides.Upsert(dbc, chapterID, templateID)
}
