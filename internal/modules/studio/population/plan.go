package population

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
)

// plan holds everything one population pass reads before it writes.
type plan struct {
	e   *Engine
	dbc dbctx.Context

	chapterKey string
	slots      []types.TemplateSlot
	draft      *types.GenerationVersion
	illus      *types.GenerationVersion

	sections map[string]studio.DraftSection
	images   map[string]studio.IllustrationSlot
	media    map[uuid.UUID]*types.MediaAsset

	existing map[string]*types.CanvasNode
	previous map[uuid.UUID]types.StableNode

	pages     map[string]uuid.UUID
	pageIDs   []uuid.UUID
	inventory []types.StableNode
}

func (e *Engine) newPlan(
	dbc dbctx.Context,
	st *types.ChapterStudioState,
	slots []types.TemplateSlot,
	draft, illus *types.GenerationVersion,
	draftPayload studio.DraftPayload,
	illusPayload studio.IllustrationPayload,
) (*plan, error) {
	p := &plan{
		e:          e,
		dbc:        dbc,
		chapterKey: types.ChapterKey(st.ChapterInstanceID),
		slots:      slots,
		draft:      draft,
		illus:      illus,
		sections:   map[string]studio.DraftSection{},
		images:     map[string]studio.IllustrationSlot{},
		media:      map[uuid.UUID]*types.MediaAsset{},
		existing:   map[string]*types.CanvasNode{},
		previous:   map[uuid.UUID]types.StableNode{},
		pages:      map[string]uuid.UUID{},
	}
	for _, s := range draftPayload.Sections {
		id := strings.TrimSpace(s.SectionID)
		if id == "" {
			continue
		}
		if _, dup := p.sections[id]; !dup {
			p.sections[id] = s
		}
	}

	var mediaIDs []uuid.UUID
	for _, s := range illusPayload.Slots {
		id := strings.TrimSpace(s.SlotID)
		if id == "" {
			continue
		}
		if _, dup := p.images[id]; dup {
			continue
		}
		p.images[id] = s
		if s.MediaAssetID != uuid.Nil {
			mediaIDs = append(mediaIDs, s.MediaAssetID)
		}
	}
	if len(mediaIDs) > 0 && e.deps.Media != nil {
		rows, err := e.deps.Media.GetByIDs(dbc, mediaIDs)
		if err != nil {
			return nil, err
		}
		for _, m := range rows {
			if m != nil {
				p.media[m.ID] = m
			}
		}
	}

	nodes, err := e.deps.Canvas.ListNodesByChapterKey(dbc, p.chapterKey)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n == nil || n.StableNodeKey == nil {
			continue
		}
		if _, ok := n.Meta(); !ok {
			continue
		}
		p.existing[*n.StableNodeKey] = n
	}
	for _, sn := range st.Nodes() {
		p.previous[sn.NodeID] = sn
	}
	return p, nil
}

func (p *plan) run(opts Options, res *Result) error {
	seen := map[string]bool{}
	for _, slot := range p.slots {
		key := types.StableNodeKey(p.chapterKey, slot.PageTemplateID, slot.SlotID)
		seen[key] = true

		content, attached, warn, err := p.content(slot)
		if err != nil {
			return err
		}
		if warn != nil {
			res.Warnings = append(res.Warnings, *warn)
		}

		node := p.existing[key]
		if node == nil && !attached {
			// left blank
			continue
		}
		pageID, err := p.page(slot)
		if err != nil {
			return err
		}
		style := encodeStyle(slot.Style)
		meta := p.meta(slot, key)

		if node == nil {
			created, isNew, err := p.e.deps.Canvas.CreateNode(p.dbc, pageID, slot.NodeType, content, style, meta)
			if err != nil {
				return err
			}
			if created == nil {
				return fmt.Errorf("canvas node %s was not created", key)
			}
			if isNew {
				res.CreatedNodeIDs = append(res.CreatedNodeIDs, created.ID)
				p.track(created.ID, key, slot, false)
				continue
			}
			node = created
		}

		edited := p.previous[node.ID].UserEdited || node.LastChangeOrigin == types.ChangeOriginUser
		switch {
		case edited && !opts.Override:
			res.SkippedNodeIDs = append(res.SkippedNodeIDs, node.ID)
			res.SkippedBecauseEdited = true
			res.Warnings = append(res.Warnings, studio.Warning{
				Code:    WarningNodeSkipped,
				Message: fmt.Sprintf("node %s was edited by the user; left as is", key),
			})
			p.track(node.ID, key, slot, true)
		case !attached:
			res.UnchangedNodeIDs = append(res.UnchangedNodeIDs, node.ID)
			p.track(node.ID, key, slot, edited)
		case !edited && jsonEqual(node.Content, content) && jsonEqual(node.Style, style) && sameMeta(node, meta):
			res.UnchangedNodeIDs = append(res.UnchangedNodeIDs, node.ID)
			p.track(node.ID, key, slot, false)
		default:
			rawMeta, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			if err := p.e.deps.Canvas.PatchNode(p.dbc, node.ID, types.NodePatch{
				Content:      content,
				Style:        style,
				PopulateMeta: datatypes.JSON(rawMeta),
				ChangeOrigin: types.ChangeOriginPopulate,
			}); err != nil {
				return err
			}
			res.UpdatedNodeIDs = append(res.UpdatedNodeIDs, node.ID)
			p.track(node.ID, key, slot, false)
		}
	}

	var orphans []string
	for key := range p.existing {
		if !seen[key] {
			orphans = append(orphans, key)
		}
	}
	sort.Strings(orphans)
	for _, key := range orphans {
		node := p.existing[key]
		meta, _ := node.Meta()
		res.Warnings = append(res.Warnings, studio.Warning{
			Code:    WarningNodeOrphaned,
			Message: fmt.Sprintf("node %s no longer matches a template slot; left in place", key),
		})
		p.inventory = append(p.inventory, types.StableNode{
			NodeID:         node.ID,
			StableNodeKey:  key,
			PageTemplateID: meta.PageTemplateID,
			SlotID:         meta.SlotID,
			NodeType:       node.NodeType,
			UserEdited:     p.previous[node.ID].UserEdited || node.LastChangeOrigin == types.ChangeOriginUser,
		})
	}
	return nil
}

// content builds the node content for slot. attached is false when the current
// versions have nothing for the slot.
func (p *plan) content(slot types.TemplateSlot) (datatypes.JSON, bool, *studio.Warning, error) {
	switch slot.NodeType {
	case types.NodeTypeText:
		sec, ok := p.sections[slot.SectionID]
		if !ok {
			return nil, false, &studio.Warning{
				Code:    WarningSlotUnmatched,
				Message: fmt.Sprintf("slot %s had no matching section; left blank", slot.SlotID),
			}, nil
		}
		raw, err := json.Marshal(types.TextContent{
			Text:      sec.Text,
			Title:     sec.Title,
			SectionID: sec.SectionID,
			Citations: sec.Citations,
		})
		return datatypes.JSON(raw), true, nil, err

	case types.NodeTypeImage:
		img, ok := p.images[slot.IllustrationSlotID]
		if !ok {
			return nil, false, &studio.Warning{
				Code:    WarningSlotUnmatched,
				Message: fmt.Sprintf("slot %s had no matching illustration; left blank", slot.SlotID),
			}, nil
		}
		asset := p.media[img.MediaAssetID]
		if asset == nil {
			return nil, false, &studio.Warning{
				Code:    WarningMediaMissing,
				Message: fmt.Sprintf("slot %s references missing media asset %s; left blank", slot.SlotID, img.MediaAssetID),
			}, nil
		}
		attr := img.Attribution
		if !attr.Complete() {
			attr = asset.Attribution()
		}
		if !attr.Complete() && asset.Provider != types.MediaProviderUpload {
			return nil, false, nil, studio.Errorf(studio.CodeMissingAttribution, "media asset %s (%s) has no attribution", asset.ID, asset.Provider)
		}
		id := asset.ID
		raw, err := json.Marshal(types.ImageContent{
			MediaAssetID: &id,
			URL:          asset.URL,
			Width:        asset.Width,
			Height:       asset.Height,
			Attribution:  attr,
		})
		return datatypes.JSON(raw), true, nil, err
	}
	return nil, false, nil, studio.Errorf(studio.CodeInternal, "slot %s has unknown node type %q", slot.SlotID, slot.NodeType)
}

func (p *plan) page(slot types.TemplateSlot) (uuid.UUID, error) {
	if id, ok := p.pages[slot.PageTemplateID]; ok {
		return id, nil
	}
	page, err := p.e.deps.Canvas.EnsurePage(p.dbc, p.chapterKey, slot.PageTemplateID, slot.PagePosition)
	if err != nil {
		return uuid.Nil, err
	}
	p.pages[slot.PageTemplateID] = page.ID
	p.pageIDs = append(p.pageIDs, page.ID)
	return page.ID, nil
}

func (p *plan) meta(slot types.TemplateSlot, key string) types.PopulateMeta {
	m := types.PopulateMeta{
		Source:         studio.PopulateSource,
		ChapterKey:     p.chapterKey,
		PageTemplateID: slot.PageTemplateID,
		SlotID:         slot.SlotID,
		StableNodeKey:  key,
	}
	if slot.NodeType == types.NodeTypeText && p.draft != nil {
		m.DraftVersion = p.draft.Version
	}
	if slot.NodeType == types.NodeTypeImage && p.illus != nil {
		m.IllusVersion = p.illus.Version
	}
	return m
}

func (p *plan) track(id uuid.UUID, key string, slot types.TemplateSlot, edited bool) {
	p.inventory = append(p.inventory, types.StableNode{
		NodeID:         id,
		StableNodeKey:  key,
		PageTemplateID: slot.PageTemplateID,
		SlotID:         slot.SlotID,
		NodeType:       slot.NodeType,
		UserEdited:     edited,
	})
}

func sameMeta(node *types.CanvasNode, want types.PopulateMeta) bool {
	got, ok := node.Meta()
	return ok && got == want
}

func encodeStyle(style map[string]any) datatypes.JSON {
	if len(style) == 0 {
		return datatypes.JSON([]byte("{}"))
	}
	raw, err := json.Marshal(style)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}

// jsonEqual compares documents structurally; jsonb does not preserve key order.
func jsonEqual(a, b datatypes.JSON) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var av, bv any
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
