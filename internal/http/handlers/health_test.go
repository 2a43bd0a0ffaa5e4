package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/memoir-studio-backend/internal/http/handlers"
)

type pinger func(ctx context.Context) error

func (p pinger) Ping(ctx context.Context) error { return p(ctx) }

func TestReadyReportsFailingCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := httpH.NewHealthHandler(map[string]httpH.Pinger{
		"db":    pinger(func(context.Context) error { return nil }),
		"redis": pinger(func(context.Context) error { return errors.New("connection refused") }),
	})
	r := gin.New()
	r.GET("/readyz", h.Ready)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") || !strings.Contains(w.Body.String(), `"db":"ok"`) {
		t.Fatalf("body %s", w.Body.String())
	}
}

func TestReadyWithNoChecksIsOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/readyz", httpH.NewHealthHandler(nil).Ready)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}
