package canvasevents

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
	"github.com/yungbote/memoir-studio-backend/internal/realtime/bus"
)

const DefaultChannel = "studio:canvas_edits"

// NodeReader is satisfied by *canvas.Store.
type NodeReader interface {
	GetNode(dbc dbctx.Context, id uuid.UUID) (*studio.CanvasNode, error)
}

// EditMarker is satisfied by the chapter studio aggregate.
type EditMarker interface {
	MarkEdited(ctx context.Context, in domainagg.MarkStudioEditedInput) (domainagg.StudioTransitionResult, error)
}

// Observer turns user edits on populated canvas nodes into studio edit transitions.
type Observer struct {
	Log     *logger.Logger
	Bus     bus.Bus
	Channel string
	Nodes   NodeReader
	Studio  EditMarker

	// OnTransition is called after a MarkEdited that changed state.
	OnTransition func(ctx context.Context, res domainagg.StudioTransitionResult)
}

// Start subscribes to the edit channel until ctx is done.
func (o *Observer) Start(ctx context.Context) error {
	ch := strings.TrimSpace(o.Channel)
	if ch == "" {
		ch = DefaultChannel
	}
	return o.Bus.Subscribe(ctx, ch, func(payload []byte) {
		if _, err := o.Handle(ctx, payload); err != nil {
			o.log().Warn("canvas edit event failed", "channel", ch, "error", err)
		}
	})
}

// Handle applies one edit event. It reports whether the studio state changed.
// Populate-origin events and nodes that were not populated are ignored.
func (o *Observer) Handle(ctx context.Context, payload []byte) (bool, error) {
	var ev studio.CanvasEditEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return false, studio.Errorf(studio.CodeInvalidInput, "decode canvas edit event: %v", err)
	}
	if ev.ChangeOrigin != studio.ChangeOriginUser {
		return false, nil
	}
	if ev.NodeID == uuid.Nil {
		return false, studio.Errorf(studio.CodeInvalidInput, "canvas edit event without node_id")
	}
	node, err := o.Nodes.GetNode(dbctx.Context{Ctx: ctx}, ev.NodeID)
	if err != nil {
		return false, err
	}
	if node == nil {
		o.log().Debug("edit for unknown node", "node_id", ev.NodeID)
		return false, nil
	}
	meta, ok := node.Meta()
	if !ok {
		return false, nil
	}
	chapterID, err := uuid.Parse(meta.ChapterKey)
	if err != nil {
		o.log().Warn("populated node has unparsable chapter key", "node_id", node.ID, "chapter_key", meta.ChapterKey)
		return false, nil
	}
	res, err := o.Studio.MarkEdited(ctx, domainagg.MarkStudioEditedInput{
		ChapterInstanceID: chapterID,
		NodeID:            node.ID,
	})
	if err != nil {
		return false, err
	}
	if res.Changed && o.OnTransition != nil {
		o.OnTransition(ctx, res)
	}
	return res.Changed, nil
}

func (o *Observer) log() *logger.Logger {
	if o.Log == nil {
		return logger.Nop()
	}
	return o.Log
}
