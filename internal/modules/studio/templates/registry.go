// Package templates maps chapter templates to the (pageTemplateId, slotId) targets population fills.
package templates

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
)

//go:embed default_templates.yaml
var defaultTemplatesYAML []byte

type slotDef struct {
	ID           string         `yaml:"id"`
	Type         string         `yaml:"type"`
	Section      string         `yaml:"section"`
	Illustration string         `yaml:"illustration"`
	Query        string         `yaml:"query"`
	Style        map[string]any `yaml:"style"`
}

type pageDef struct {
	ID    string    `yaml:"id"`
	Slots []slotDef `yaml:"slots"`
}

type templateDef struct {
	ID    string    `yaml:"id"`
	Pages []pageDef `yaml:"pages"`
}

type fileDef struct {
	DefaultTemplate string        `yaml:"default_template"`
	Templates       []templateDef `yaml:"templates"`
}

// Registry is an immutable, validated set of templates.
type Registry struct {
	defaultID string
	slots     map[string][]studio.TemplateSlot
}

// Load reads a registry from path, or the built-in templates when path is empty.
func Load(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Parse(defaultTemplatesYAML)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Registry, error) {
	var f fileDef
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("templates: none defined")
	}
	reg := &Registry{defaultID: strings.TrimSpace(f.DefaultTemplate), slots: map[string][]studio.TemplateSlot{}}
	for _, t := range f.Templates {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return nil, fmt.Errorf("templates: template without id")
		}
		if _, dup := reg.slots[id]; dup {
			return nil, fmt.Errorf("templates: duplicate template %q", id)
		}
		slots, err := flatten(id, t)
		if err != nil {
			return nil, err
		}
		reg.slots[id] = slots
	}
	if reg.defaultID == "" {
		reg.defaultID = strings.TrimSpace(f.Templates[0].ID)
	}
	if _, ok := reg.slots[reg.defaultID]; !ok {
		return nil, fmt.Errorf("templates: default template %q not defined", reg.defaultID)
	}
	return reg, nil
}

func flatten(templateID string, t templateDef) ([]studio.TemplateSlot, error) {
	var out []studio.TemplateSlot
	pages := map[string]bool{}
	for pos, p := range t.Pages {
		pageID := strings.TrimSpace(p.ID)
		if pageID == "" || strings.Contains(pageID, ":") {
			return nil, fmt.Errorf("templates: %s page %d has invalid id %q", templateID, pos, p.ID)
		}
		if pages[pageID] {
			return nil, fmt.Errorf("templates: %s duplicate page %q", templateID, pageID)
		}
		pages[pageID] = true
		slotIDs := map[string]bool{}
		for _, s := range p.Slots {
			slotID := strings.TrimSpace(s.ID)
			if slotID == "" || strings.Contains(slotID, ":") {
				return nil, fmt.Errorf("templates: %s/%s has invalid slot id %q", templateID, pageID, s.ID)
			}
			if slotIDs[slotID] {
				return nil, fmt.Errorf("templates: %s/%s duplicate slot %q", templateID, pageID, slotID)
			}
			slotIDs[slotID] = true

			slot := studio.TemplateSlot{
				PageTemplateID: pageID,
				PagePosition:   pos,
				SlotID:         slotID,
				NodeType:       strings.ToUpper(strings.TrimSpace(s.Type)),
				Query:          strings.TrimSpace(s.Query),
				Style:          s.Style,
			}
			switch slot.NodeType {
			case "", studio.NodeTypeText:
				slot.NodeType = studio.NodeTypeText
				slot.SectionID = firstNonEmpty(s.Section, slotID)
			case studio.NodeTypeImage:
				slot.IllustrationSlotID = firstNonEmpty(s.Illustration, slotID)
			default:
				return nil, fmt.Errorf("templates: %s/%s/%s has unknown type %q", templateID, pageID, slotID, s.Type)
			}
			out = append(out, slot)
		}
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (r *Registry) DefaultTemplateID() string { return r.defaultID }

func (r *Registry) Has(templateID string) bool {
	_, ok := r.slots[strings.TrimSpace(templateID)]
	return ok
}

// GetSlotsForTemplate returns the ordered slots of templateID. The slice is a copy.
func (r *Registry) GetSlotsForTemplate(templateID string) ([]studio.TemplateSlot, error) {
	slots, ok := r.slots[strings.TrimSpace(templateID)]
	if !ok {
		return nil, studio.Errorf(studio.CodeNotFound, "unknown template %q", templateID)
	}
	return append([]studio.TemplateSlot(nil), slots...), nil
}

// IllustrationTargets lists the IMAGE slots of a template in order.
func IllustrationTargets(slots []studio.TemplateSlot) []studio.TemplateSlot {
	var out []studio.TemplateSlot
	for _, s := range slots {
		if s.NodeType == studio.NodeTypeImage {
			out = append(out, s)
		}
	}
	return out
}

// SectionIDs lists the draft sections bound by TEXT slots, in order and without repeats.
func SectionIDs(slots []studio.TemplateSlot) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range slots {
		if s.NodeType != studio.NodeTypeText || seen[s.SectionID] {
			continue
		}
		seen[s.SectionID] = true
		out = append(out, s.SectionID)
	}
	return out
}
