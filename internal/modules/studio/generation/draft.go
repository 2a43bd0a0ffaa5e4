package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/fingerprint"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/templates"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/openai"
	"github.com/yungbote/memoir-studio-backend/internal/platform/promptstyle"
)

const WarningSectionMissing = "SECTION_MISSING"

type DraftRequest struct {
	ChapterInstanceID uuid.UUID
	Answers           []studio.Answer
	SectionIDs        []string
}

// DraftWriter turns grounding answers into draft sections.
type DraftWriter interface {
	WriteDraft(ctx context.Context, req DraftRequest) (studio.DraftPayload, error)
}

type StartDraftInput struct {
	ChapterInstanceID uuid.UUID
	Answers           []studio.Answer
	// Subject is the rate-limit subject, usually the chapter owner.
	Subject string
}

// StartDraft admits a draft version and writes it in the background.
func (r *Runner) StartDraft(ctx context.Context, in StartDraftInput) (Started, error) {
	if in.ChapterInstanceID == uuid.Nil {
		return Started{}, studio.Errorf(studio.CodeInvalidInput, "missing chapter_instance_id")
	}
	answers := cleanAnswers(in.Answers)
	if len(answers) == 0 {
		return Started{}, studio.Errorf(studio.CodeNoAnswers, "chapter %s has no answers to ground a draft", in.ChapterInstanceID)
	}
	if r.deps.Writer == nil || r.deps.Versions == nil || r.deps.Slots == nil {
		return Started{}, studio.Errorf(studio.CodeInternal, "draft generation not configured")
	}
	_, slots, err := r.deps.Slots.SlotsForChapter(dbctx.Context{Ctx: ctx}, in.ChapterInstanceID)
	if err != nil {
		return Started{}, err
	}
	sections := templates.SectionIDs(slots)
	if len(sections) == 0 {
		return Started{}, studio.Errorf(studio.CodeInvalidInput, "chapter template has no text slots")
	}
	if err := r.admit(ctx, studio.VersionKindDraft, in.Subject); err != nil {
		return Started{}, err
	}

	fp := fingerprint.Draft(fingerprint.DraftInputs{Answers: answers, SectionIDs: sections})
	s, err := r.begin(ctx, studio.VersionKindDraft, in.ChapterInstanceID, fp)
	if err != nil {
		return Started{}, err
	}
	req := DraftRequest{ChapterInstanceID: in.ChapterInstanceID, Answers: answers, SectionIDs: sections}
	r.spawn(ctx, s, func(ctx context.Context) (json.RawMessage, []studio.Warning, error) {
		payload, err := r.deps.Writer.WriteDraft(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		payload, warnings := shapeDraft(payload, sections, answers)
		raw, err := json.Marshal(payload)
		return raw, warnings, err
	})
	return s, nil
}

func cleanAnswers(in []studio.Answer) []studio.Answer {
	out := make([]studio.Answer, 0, len(in))
	for _, a := range in {
		a.QuestionID = strings.TrimSpace(a.QuestionID)
		a.Text = strings.TrimSpace(a.Text)
		if a.Text == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// shapeDraft orders sections as the template expects, drops unknown sections and
// citations, and warns about sections the writer left out.
func shapeDraft(p studio.DraftPayload, sectionIDs []string, answers []studio.Answer) (studio.DraftPayload, []studio.Warning) {
	known := map[string]bool{}
	for _, a := range answers {
		if a.QuestionID != "" {
			known[a.QuestionID] = true
		}
	}
	byID := map[string]studio.DraftSection{}
	for _, s := range p.Sections {
		id := strings.TrimSpace(s.SectionID)
		if _, dup := byID[id]; dup || id == "" {
			continue
		}
		s.SectionID = id
		s.Text = strings.TrimSpace(s.Text)
		var cites []string
		for _, c := range s.Citations {
			if known[c] {
				cites = append(cites, c)
			}
		}
		s.Citations = cites
		byID[id] = s
	}
	var out studio.DraftPayload
	var warnings []studio.Warning
	for _, id := range sectionIDs {
		s, ok := byID[id]
		if !ok || s.Text == "" {
			warnings = append(warnings, studio.Warning{
				Code:    WarningSectionMissing,
				Message: fmt.Sprintf("draft has no text for section %s", id),
			})
			continue
		}
		out.Sections = append(out.Sections, s)
	}
	return out, warnings
}

// OpenAIDraftWriter drafts sections with structured outputs.
type OpenAIDraftWriter struct {
	Client openai.Client
}

var draftSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"sections"},
	"properties": map[string]any{
		"sections": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"section_id", "title", "text", "citations"},
				"properties": map[string]any{
					"section_id": map[string]any{"type": "string"},
					"title":      map[string]any{"type": "string"},
					"text":       map[string]any{"type": "string"},
					"citations":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
			},
		},
	},
}

func (w OpenAIDraftWriter) WriteDraft(ctx context.Context, req DraftRequest) (studio.DraftPayload, error) {
	if w.Client == nil {
		return studio.DraftPayload{}, fmt.Errorf("openai client not configured")
	}
	system := promptstyle.Compose(promptstyle.OutputJSON,
		"Draft one memoir chapter from the author's interview answers.",
		"Produce exactly one section per requested section_id, in the requested order.",
		"Cite the question_id of every answer a section draws on.",
		"Use the section_id \"title\" for a short chapter title when requested.",
	)

	var b strings.Builder
	b.WriteString("Sections: ")
	b.WriteString(strings.Join(req.SectionIDs, ", "))
	b.WriteString("\n\nAnswers:\n")
	for _, a := range req.Answers {
		fmt.Fprintf(&b, "- [%s] %s\n", a.QuestionID, a.Text)
	}

	obj, err := w.Client.GenerateJSON(ctx, system, b.String(), "memoir_draft", draftSchema)
	if err != nil {
		return studio.DraftPayload{}, err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return studio.DraftPayload{}, err
	}
	var out studio.DraftPayload
	if err := json.Unmarshal(raw, &out); err != nil {
		return studio.DraftPayload{}, fmt.Errorf("decode draft: %w", err)
	}
	return out, nil
}
