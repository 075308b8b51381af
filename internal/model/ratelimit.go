package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Model with a process-local token-bucket limiter so a
// burst of agent turns against the same engine can't exceed a configured
// tokens-per-minute budget. tokensPerMinute and burst size the bucket;
// estimateTokens approximates a request's cost from its message content
// since the real count isn't known until the provider responds.
//
// Grounded on the adaptive rate-limiting middleware pattern (a
// model-client wrapper sitting at the provider boundary, waiting for
// token-bucket capacity before issuing the request) — simplified here to
// a fixed, process-local budget since nothing in this module's scope
// needs cross-process coordination or AIMD backoff against provider
// signals.
type RateLimited struct {
	Model
	limiter *rate.Limiter
}

// NewRateLimited returns m wrapped with a limiter allowing burst tokens
// immediately and refilling at tokensPerMinute/60 tokens per second.
func NewRateLimited(m Model, tokensPerMinute float64, burst int) *RateLimited {
	return &RateLimited{
		Model:   m,
		limiter: rate.NewLimiter(rate.Limit(tokensPerMinute/60), burst),
	}
}

func estimateTokens(req Request) int {
	n := len(req.System) / 4
	for _, msg := range req.Messages {
		n += len(msg.Content)/4 + 1
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Complete waits for bucket capacity before delegating to the wrapped
// Model's Complete.
func (r *RateLimited) Complete(ctx context.Context, req Request) (Response, error) {
	if err := r.reserve(ctx, req); err != nil {
		return Response{}, err
	}
	return r.Model.Complete(ctx, req)
}

// Stream waits for bucket capacity before delegating to the wrapped
// Model's Stream.
func (r *RateLimited) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	if err := r.reserve(ctx, req); err != nil {
		return nil, err
	}
	return r.Model.Stream(ctx, req)
}

func (r *RateLimited) reserve(ctx context.Context, req Request) error {
	n := estimateTokens(req)
	if n > r.limiter.Burst() {
		n = r.limiter.Burst()
	}
	return r.limiter.WaitN(ctx, n)
}
