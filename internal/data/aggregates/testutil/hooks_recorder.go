package testutil

import (
	"sync"

	"github.com/yungbote/memoir-studio-backend/internal/data/aggregates"
)

// HooksRecorder keeps every write outcome an aggregate reports.
type HooksRecorder struct {
	mu       sync.Mutex
	outcomes []aggregates.WriteOutcome
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) WriteFinished(o aggregates.WriteOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes = append(h.outcomes, o)
}

func (h *HooksRecorder) Outcomes() []aggregates.WriteOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]aggregates.WriteOutcome(nil), h.outcomes...)
}

// Statuses lists the recorded statuses in write order.
func (h *HooksRecorder) Statuses() []string {
	out := []string{}
	for _, o := range h.Outcomes() {
		out = append(out, o.Status)
	}
	return out
}
