package canvas

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/memoir-studio-backend/internal/data/repos/testutil"
	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"gorm.io/datatypes"
)

func TestCanvasStore_CreateNodeIsGetOrCreate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	log := testutil.Logger(t)
	store := NewStore(NewCanvasPageRepo(db, log), NewCanvasNodeRepo(db, log))

	chapterKey := uuid.NewString()
	page, err := store.EnsurePage(dbc, chapterKey, "cover", 0)
	if err != nil || page == nil {
		t.Fatalf("EnsurePage: got=%v err=%v", page, err)
	}
	again, err := store.EnsurePage(dbc, chapterKey, "cover", 0)
	if err != nil || again == nil || again.ID != page.ID {
		t.Fatalf("EnsurePage again: got=%v err=%v", again, err)
	}

	key := types.StableNodeKey(chapterKey, "cover", "title")
	meta := types.PopulateMeta{
		Source:         "studio_populate_v1",
		ChapterKey:     chapterKey,
		PageTemplateID: "cover",
		SlotID:         "title",
		StableNodeKey:  key,
	}
	n1, created, err := store.CreateNode(dbc, page.ID, types.NodeTypeText, datatypes.JSON(`{"text":"a"}`), nil, meta)
	if err != nil || !created || n1 == nil {
		t.Fatalf("CreateNode: node=%v created=%v err=%v", n1, created, err)
	}
	n2, created, err := store.CreateNode(dbc, page.ID, types.NodeTypeText, datatypes.JSON(`{"text":"b"}`), nil, meta)
	if err != nil || created || n2 == nil || n2.ID != n1.ID {
		t.Fatalf("CreateNode duplicate: node=%v created=%v err=%v", n2, created, err)
	}

	nodes := NewCanvasNodeRepo(db, log)
	if n, err := nodes.CountByStableKey(dbc, key); err != nil || n != 1 {
		t.Fatalf("CountByStableKey: n=%d err=%v", n, err)
	}

	if err := store.PatchNode(dbc, n1.ID, types.NodePatch{Content: datatypes.JSON(`{"text":"c"}`), ChangeOrigin: types.ChangeOriginUser}); err != nil {
		t.Fatalf("PatchNode: %v", err)
	}
	got, err := store.GetNode(dbc, n1.ID)
	if err != nil || got == nil || got.LastChangeOrigin != types.ChangeOriginUser {
		t.Fatalf("PatchNode verify: got=%v err=%v", got, err)
	}
	var content map[string]string
	if err := json.Unmarshal(got.Content, &content); err != nil || content["text"] != "c" {
		t.Fatalf("PatchNode content: %s err=%v", got.Content, err)
	}
	if m, ok := got.Meta(); !ok || m.StableNodeKey != key {
		t.Fatalf("Meta: %+v ok=%v", m, ok)
	}

	list, err := store.ListNodesByChapterKey(dbc, chapterKey)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListNodesByChapterKey: len=%d err=%v", len(list), err)
	}

	if err := store.PatchNode(dbc, uuid.New(), types.NodePatch{ChangeOrigin: types.ChangeOriginUser}); err == nil {
		t.Fatalf("expected not found patching unknown node")
	}
}
