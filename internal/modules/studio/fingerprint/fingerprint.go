// Package fingerprint hashes generation inputs and applied payloads so callers can tell
// whether regeneration or repopulation would change anything.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
)

const version = 1

// SlotTarget describes what an illustration slot should depict.
type SlotTarget struct {
	SlotID string `json:"slot_id"`
	Query  string `json:"query"`
}

// DraftInputs are the grounding inputs of a draft generation.
// Answers are an unordered set; SectionIDs keep their order.
type DraftInputs struct {
	Answers    []studio.Answer
	SectionIDs []string
}

func Draft(in DraftInputs) string {
	answers := make([]studio.Answer, 0, len(in.Answers))
	seen := map[studio.Answer]bool{}
	for _, a := range in.Answers {
		a = studio.Answer{QuestionID: strings.TrimSpace(a.QuestionID), Text: strings.TrimSpace(a.Text)}
		if seen[a] {
			continue
		}
		seen[a] = true
		answers = append(answers, a)
	}
	sort.Slice(answers, func(i, j int) bool {
		if answers[i].QuestionID != answers[j].QuestionID {
			return answers[i].QuestionID < answers[j].QuestionID
		}
		return answers[i].Text < answers[j].Text
	})
	sections := make([]string, 0, len(in.SectionIDs))
	for _, id := range in.SectionIDs {
		sections = append(sections, strings.TrimSpace(id))
	}
	return hash("draft_inputs", map[string]any{
		"answers":  answers,
		"sections": sections,
	})
}

// Illustrations fingerprints an ordered slot target list.
func Illustrations(targets []SlotTarget) string {
	norm := make([]SlotTarget, 0, len(targets))
	for _, t := range targets {
		norm = append(norm, SlotTarget{SlotID: strings.TrimSpace(t.SlotID), Query: strings.TrimSpace(t.Query)})
	}
	return hash("illustration_inputs", map[string]any{"slots": norm})
}

// DraftContent fingerprints the sections a draft version would apply to the canvas.
func DraftContent(p studio.DraftPayload) string {
	sections := p.Sections
	if sections == nil {
		sections = []studio.DraftSection{}
	}
	return hash("draft_content", map[string]any{"sections": sections})
}

// IllustrationContent fingerprints the slot picks an illustration version would apply.
func IllustrationContent(p studio.IllustrationPayload) string {
	slots := p.Slots
	if slots == nil {
		slots = []studio.IllustrationSlot{}
	}
	return hash("illustration_content", map[string]any{"slots": slots})
}

// Layout fingerprints a resolved template: its id and the ordered slot list, styles included.
func Layout(templateID string, slots []studio.TemplateSlot) string {
	if slots == nil {
		slots = []studio.TemplateSlot{}
	}
	return hash("layout", map[string]any{
		"template_id": strings.TrimSpace(templateID),
		"slots":       slots,
	})
}

func hash(kind string, body map[string]any) string {
	body["kind"] = kind
	body["v"] = version
	// encoding/json sorts map keys, so equal inputs serialize identically.
	b, _ := json.Marshal(body)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
