package orchestrator

import "context"

type depthKeyType struct{}
type correlationKeyType struct{}

var depthKey depthKeyType
var correlationKey correlationKeyType

// depthFromContext returns the current nested-agent recursion depth,
// zero for a top-level turn (§9 "Agent-graph composition": "a bounded
// recursion depth on the orchestrator").
func depthFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(depthKey).(int); ok {
		return v
	}
	return 0
}

func withDepth(ctx context.Context, d int) context.Context {
	return context.WithValue(ctx, depthKey, d)
}

// correlationFromContext returns the parent turn's correlation id, used
// to build a nested turn's id so the event stream stays reconstructible
// as a tree (§9).
func correlationFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey).(string); ok {
		return v
	}
	return ""
}

func withCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}
