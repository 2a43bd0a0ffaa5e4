package testutil

import (
	"reflect"
	"sync"
	"testing"

	"github.com/yungbote/memoir-studio-backend/internal/data/aggregates"
)

func TestHooksRecorderIsSafeForConcurrentWrites(t *testing.T) {
	h := &HooksRecorder{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.WriteFinished(aggregates.WriteOutcome{Op: "Studio.Begin", Status: "success", Attempts: 1})
		}()
	}
	wg.Wait()
	if n := len(h.Outcomes()); n != 8 {
		t.Fatalf("outcomes = %d", n)
	}
}

func TestHooksRecorderStatusesKeepOrder(t *testing.T) {
	h := &HooksRecorder{}
	h.WriteFinished(aggregates.WriteOutcome{Status: "success"})
	h.WriteFinished(aggregates.WriteOutcome{Status: "already_generating"})
	if got := h.Statuses(); !reflect.DeepEqual(got, []string{"success", "already_generating"}) {
		t.Fatalf("statuses = %v", got)
	}
}
