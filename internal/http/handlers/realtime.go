package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
	"github.com/yungbote/memoir-studio-backend/internal/realtime/bus"
	"github.com/yungbote/memoir-studio-backend/internal/services"
)

const (
	eventStudioStatus = "studio_status"
	eventGeneration   = "generation_finished"
)

type chapterEvent struct {
	name    string
	payload json.RawMessage
}

// RealtimeHandler streams studio badges and generation completions for one chapter over SSE.
type RealtimeHandler struct {
	Log               *logger.Logger
	Bus               bus.Bus
	StatusChannel     string
	GenerationChannel string
	Heartbeat         time.Duration
}

func NewRealtimeHandler(log *logger.Logger, b bus.Bus) *RealtimeHandler {
	return &RealtimeHandler{
		Log:               log.With("handler", "RealtimeHandler"),
		Bus:               b,
		StatusChannel:     services.DefaultStatusChannel,
		GenerationChannel: services.DefaultGenerationChannel,
		Heartbeat:         25 * time.Second,
	}
}

// GET /api/chapters/:id/events
func (h *RealtimeHandler) ChapterEvents(c *gin.Context) {
	id, ok := chapterID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	events := make(chan chapterEvent, 32)

	forward := func(name string) func([]byte) {
		return func(payload []byte) {
			var head struct {
				ChapterInstanceID string `json:"chapter_instance_id"`
			}
			if err := json.Unmarshal(payload, &head); err != nil || head.ChapterInstanceID != id.String() {
				return
			}
			select {
			case events <- chapterEvent{name: name, payload: append(json.RawMessage(nil), payload...)}:
			default:
				h.Log.Warn("dropping chapter event for slow client", "chapter_instance_id", id, "event", name)
			}
		}
	}
	if err := h.Bus.Subscribe(ctx, h.StatusChannel, forward(eventStudioStatus)); err != nil {
		h.Log.Error("subscribe studio status failed", "error", err)
		c.Error(err)
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	if err := h.Bus.Subscribe(ctx, h.GenerationChannel, forward(eventGeneration)); err != nil {
		h.Log.Error("subscribe generation failed", "error", err)
		c.Error(err)
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	h.Log.Debug("chapter event stream open", "chapter_instance_id", id)
	c.SSEvent("ready", gin.H{"chapter_instance_id": id})
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			c.SSEvent(ev.name, ev.payload)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		}
	})
	h.Log.Debug("chapter event stream closed", "chapter_instance_id", id)
}
