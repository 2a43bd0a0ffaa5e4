package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server, temp *float64) Client {
	t.Helper()
	c, err := NewClient(logger.Nop(), Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test", Timeout: 5 * time.Second, MaxRetries: 2, Temperature: temp})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeOutput(w http.ResponseWriter, text string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"output": []any{map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []any{map[string]any{
				"type": "output_text",
				"text": text,
			}},
		}},
		"usage": map[string]any{"input_tokens": 10, "output_tokens": 5},
	})
}

func TestGenerateJSONParsesStructuredOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != responsesPath {
			t.Errorf("path=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth=%q", got)
		}
		var req responsesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Text.Format["name"] != "memoir_draft" {
			t.Errorf("schema name=%v", req.Text.Format["name"])
		}
		writeOutput(w, `{"sections":[{"section_id":"p1","text":"Grew up in Ohio."}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	obj, err := c.GenerateJSON(context.Background(), "sys", "user", "memoir_draft", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	sections, _ := obj["sections"].([]any)
	if len(sections) != 1 {
		t.Fatalf("sections=%v", obj["sections"])
	}
}

func TestRetriesOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeOutput(w, "hello")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	text, err := c.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "hello" || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("text=%q calls=%d", text, calls)
	}
}

func TestDropsRejectedTemperature(t *testing.T) {
	var withTemp, withoutTemp int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"temperature"`) {
			atomic.AddInt32(&withTemp, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature'"}}`))
			return
		}
		atomic.AddInt32(&withoutTemp, 1)
		writeOutput(w, "ok")
	}))
	defer srv.Close()

	temp := 0.2
	c := newTestClient(t, srv, &temp)
	for i := 0; i < 2; i++ {
		if _, err := c.GenerateText(context.Background(), "sys", "user"); err != nil {
			t.Fatalf("GenerateText #%d: %v", i, err)
		}
	}
	if withTemp != 1 || withoutTemp != 2 {
		t.Fatalf("withTemp=%d withoutTemp=%d", withTemp, withoutTemp)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
