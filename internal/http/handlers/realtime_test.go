package handlers_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	httpH "github.com/yungbote/memoir-studio-backend/internal/http/handlers"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/generation"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
	"github.com/yungbote/memoir-studio-backend/internal/realtime/bus"
	"github.com/yungbote/memoir-studio-backend/internal/services"
)

// readEvent returns the next SSE event name and data line.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestChapterEventsStreamsOnlyThatChapter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b := bus.NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })

	h := httpH.NewRealtimeHandler(logger.Nop(), b)
	h.Heartbeat = time.Hour
	r := gin.New()
	r.GET("/api/chapters/:id/events", h.ChapterEvents)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	chapter := uuid.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/chapters/"+chapter.String()+"/events", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type %q", ct)
	}
	reader := bufio.NewReader(resp.Body)
	if name, _ := readEvent(t, reader); name != "ready" {
		t.Fatalf("first event %q", name)
	}

	pub := context.Background()
	_ = b.Publish(pub, services.DefaultStatusChannel, studio.StudioStatusEvent{ChapterInstanceID: uuid.New(), Status: studio.StudioStatusEdited})
	_ = b.Publish(pub, services.DefaultStatusChannel, studio.StudioStatusEvent{ChapterInstanceID: chapter, Status: studio.StudioStatusPopulated})
	_ = b.Publish(pub, services.DefaultGenerationChannel, generation.Finished{Kind: studio.VersionKindDraft, ChapterInstanceID: chapter, Version: 2, Status: studio.VersionStatusReady})

	name, data := readEvent(t, reader)
	if name != "studio_status" || !strings.Contains(data, chapter.String()) || !strings.Contains(data, `"populated"`) {
		t.Fatalf("status event %q %s", name, data)
	}
	name, data = readEvent(t, reader)
	if name != "generation_finished" || !strings.Contains(data, `"version":2`) {
		t.Fatalf("generation event %q %s", name, data)
	}
}

func TestChapterEventsRejectsBadChapterID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := httpH.NewRealtimeHandler(logger.Nop(), bus.NewMemoryBus())
	r := gin.New()
	r.GET("/api/chapters/:id/events", h.ChapterEvents)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chapters/nope/events", nil))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", w.Code)
	}
}
