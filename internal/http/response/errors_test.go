package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
)

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondFailure(c, err)
	var env ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return w, env
}

func TestRespondFailureMapsStudioCodes(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		code      string
		retryable bool
	}{
		{studio.Errorf(studio.CodeAlreadyGenerating, "busy"), http.StatusConflict, "ALREADY_GENERATING", false},
		{studio.Errorf(studio.CodeDraftNotReady, "no draft"), http.StatusServiceUnavailable, "DRAFT_NOT_READY", true},
		{studio.Errorf(studio.CodePopulateFailed, "retry"), http.StatusServiceUnavailable, "POPULATE_FAILED", true},
		{studio.Errorf(studio.CodeRateLimited, "slow down"), http.StatusTooManyRequests, "RATE_LIMITED", true},
		{studio.Errorf(studio.CodeNoAnswers, "none"), http.StatusUnprocessableEntity, "NO_ANSWERS", false},
		{studio.Errorf(studio.CodeMissingAttribution, "who"), http.StatusInternalServerError, "MISSING_ATTRIBUTION", false},
		{domainagg.NewError(domainagg.CodeNotFound, "op", "version not found", nil), http.StatusNotFound, "NOT_FOUND", false},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL", false},
	}
	for _, tc := range cases {
		w, env := respond(t, tc.err)
		if w.Code != tc.status || env.Error.Code != tc.code || env.Error.Retryable != tc.retryable {
			t.Fatalf("%v: got %d %+v", tc.err, w.Code, env.Error)
		}
		if tc.retryable && w.Header().Get("Retry-After") == "" {
			t.Fatalf("%v: missing Retry-After", tc.err)
		}
	}
}

func TestRespondFailureMessages(t *testing.T) {
	_, env := respond(t, studio.Errorf(studio.CodeIllustrationsNotReady, "illustration v3 generating"))
	if env.Error.Message != "Not ready yet. Please try again shortly." {
		t.Fatalf("retryable message: %q", env.Error.Message)
	}
	_, env = respond(t, studio.Errorf(studio.CodeInvalidInput, "missing chapter_instance_id"))
	if env.Error.Message != "INVALID_INPUT: missing chapter_instance_id" {
		t.Fatalf("input message: %q", env.Error.Message)
	}
	_, env = respond(t, errors.New("pq: connection reset"))
	if env.Error.Message != "Something went wrong. Please try again shortly." {
		t.Fatalf("internal message leaked: %q", env.Error.Message)
	}
}
