package aggregates

import (
	"time"

	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/observability"
)

// WriteOutcome describes one aggregate write after its last attempt.
type WriteOutcome struct {
	Op       string
	Status   string
	Code     domainagg.ErrorCode
	Attempts int
	Duration time.Duration
}

// Hooks receives every finished aggregate write.
type Hooks interface {
	WriteFinished(WriteOutcome)
}

// HooksFunc adapts a function to Hooks.
type HooksFunc func(WriteOutcome)

func (f HooksFunc) WriteFinished(o WriteOutcome) { f(o) }

var noopHooks = HooksFunc(func(WriteOutcome) {})

// NewObservabilityHooks reports writes as aggregate metrics. Each extra attempt
// counts as one retry.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks
	}
	return HooksFunc(func(o WriteOutcome) {
		metrics.ObserveAggregateOperation(o.Op, o.Status, o.Duration)
		if o.Code == domainagg.CodeConflict {
			metrics.IncAggregateConflict(o.Op)
		}
		for i := 1; i < o.Attempts; i++ {
			metrics.IncAggregateRetry(o.Op)
		}
	})
}
