package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

type rateSubjectKey struct{}

// WithRateSubject records who a request is billed to for generation rate limiting.
func WithRateSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, rateSubjectKey{}, subject)
}

func RateSubject(ctx context.Context) string {
	if s, ok := ctx.Value(rateSubjectKey{}).(string); ok {
		return s
	}
	return ""
}
