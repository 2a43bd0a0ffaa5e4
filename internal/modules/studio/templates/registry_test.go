package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
)

func TestLoadBuiltinTemplates(t *testing.T) {
	reg, err := Load("")
	if err != nil {
		t.Fatalf("Load builtin: %v", err)
	}
	if reg.DefaultTemplateID() != "memoir_chapter_v1" {
		t.Fatalf("default=%q", reg.DefaultTemplateID())
	}
	slots, err := reg.GetSlotsForTemplate("memoir_chapter_v1")
	if err != nil {
		t.Fatalf("GetSlotsForTemplate: %v", err)
	}
	if len(slots) != 6 {
		t.Fatalf("slots=%d", len(slots))
	}
	title := slots[0]
	if title.PageTemplateID != "cover" || title.SlotID != "title" || title.SectionID != "title" || title.NodeType != studio.NodeTypeText {
		t.Fatalf("title slot=%+v", title)
	}
	img := slots[1]
	if img.NodeType != studio.NodeTypeImage || img.IllustrationSlotID != "cover_img" || img.Query == "" {
		t.Fatalf("cover image slot=%+v", img)
	}
	if slots[5].PagePosition != 2 {
		t.Fatalf("closing page position=%d", slots[5].PagePosition)
	}
	if got := SectionIDs(slots); strings.Join(got, ",") != "title,p1,p2,p3" {
		t.Fatalf("SectionIDs=%v", got)
	}
	if got := IllustrationTargets(slots); len(got) != 2 || got[1].SlotID != "body_img" {
		t.Fatalf("IllustrationTargets=%+v", got)
	}
}

func TestGetSlotsReturnsCopy(t *testing.T) {
	reg, _ := Load("")
	a, _ := reg.GetSlotsForTemplate(reg.DefaultTemplateID())
	a[0].SlotID = "mutated"
	b, _ := reg.GetSlotsForTemplate(reg.DefaultTemplateID())
	if b[0].SlotID != "title" {
		t.Fatalf("registry mutated through returned slice")
	}
}

func TestUnknownTemplateIsNotFound(t *testing.T) {
	reg, _ := Load("")
	_, err := reg.GetSlotsForTemplate("nope")
	if !studio.IsCode(err, studio.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestParseRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"empty":           `templates: []`,
		"dup template":    "templates:\n  - id: a\n  - id: a\n",
		"dup slot":        "templates:\n  - id: a\n    pages:\n      - id: p\n        slots:\n          - id: s\n          - id: s\n",
		"colon in slot":   "templates:\n  - id: a\n    pages:\n      - id: p\n        slots:\n          - id: 'x:y'\n",
		"unknown type":    "templates:\n  - id: a\n    pages:\n      - id: p\n        slots:\n          - id: s\n            type: VIDEO\n",
		"missing default": "default_template: b\ntemplates:\n  - id: a\n",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	raw := "templates:\n  - id: scenario\n    pages:\n      - id: cover\n        slots:\n          - id: title\n      - id: body\n        slots:\n          - id: p1\n          - id: body_img\n            type: image\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reg.DefaultTemplateID() != "scenario" {
		t.Fatalf("default should fall back to first template, got %q", reg.DefaultTemplateID())
	}
	slots, _ := reg.GetSlotsForTemplate("scenario")
	if len(slots) != 3 || slots[2].NodeType != studio.NodeTypeImage {
		t.Fatalf("slots=%+v", slots)
	}
}
