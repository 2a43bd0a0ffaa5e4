package canvas

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
)

// Store is the canvas write boundary used by population. Every call honours dbc.Tx
// so canvas writes commit together with the studio state.
type Store struct {
	Pages CanvasPageRepo
	Nodes CanvasNodeRepo
}

func NewStore(pages CanvasPageRepo, nodes CanvasNodeRepo) *Store {
	return &Store{Pages: pages, Nodes: nodes}
}

func (s *Store) EnsurePage(dbc dbctx.Context, chapterKey, pageTemplateID string, position int) (*types.CanvasPage, error) {
	page, err := s.Pages.Ensure(dbc, chapterKey, pageTemplateID, position)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("canvas page %s/%s could not be ensured", chapterKey, pageTemplateID)
	}
	return page, nil
}

// CreateNode creates a populated node keyed by meta.StableNodeKey. When a node with the
// key already exists it is returned with created=false.
func (s *Store) CreateNode(dbc dbctx.Context, pageID uuid.UUID, nodeType string, content, style datatypes.JSON, meta types.PopulateMeta) (*types.CanvasNode, bool, error) {
	if meta.StableNodeKey == "" {
		return nil, false, fmt.Errorf("populate meta missing stable node key")
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return nil, false, err
	}
	key := meta.StableNodeKey
	row := &types.CanvasNode{
		PageID:           pageID,
		ChapterKey:       meta.ChapterKey,
		NodeType:         nodeType,
		Content:          content,
		Style:            style,
		PopulateMeta:     datatypes.JSON(rawMeta),
		StableNodeKey:    &key,
		LastChangeOrigin: types.ChangeOriginPopulate,
	}
	return s.Nodes.CreateOrGetByStableKey(dbc, row)
}

func (s *Store) PatchNode(dbc dbctx.Context, id uuid.UUID, patch types.NodePatch) error {
	return s.Nodes.Patch(dbc, id, patch)
}

func (s *Store) ListNodesByChapterKey(dbc dbctx.Context, chapterKey string) ([]*types.CanvasNode, error) {
	return s.Nodes.ListByChapterKey(dbc, chapterKey)
}

func (s *Store) GetNode(dbc dbctx.Context, id uuid.UUID) (*types.CanvasNode, error) {
	return s.Nodes.GetByID(dbc, id)
}
