package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	name     string
	response Response
}

func (f *fakeModel) Name() string          { return f.name }
func (f *fakeModel) SupportsTools() bool   { return true }
func (f *fakeModel) Complete(ctx context.Context, req Request) (Response, error) {
	return f.response, nil
}
func (f *fakeModel) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	ch := make(chan Chunk, 1)
	ch <- Chunk{Text: f.response.Text, Done: true}
	close(ch)
	return ch, nil
}

func TestRateLimitedAllowsWithinBurst(t *testing.T) {
	inner := &fakeModel{name: "anthropic", response: Response{Text: "hi"}}
	rl := NewRateLimited(inner, 60000, 100)

	resp, err := rl.Complete(context.Background(), Request{Messages: []Message{{Content: "short"}}})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
	assert.Equal(t, "anthropic", rl.Name())
}

func TestRateLimitedRejectsOnCancelledContext(t *testing.T) {
	inner := &fakeModel{name: "anthropic"}
	rl := NewRateLimited(inner, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	longReq := Request{Messages: []Message{{Content: string(make([]byte, 10000))}}}
	_, err := rl.Complete(ctx, longReq)
	assert.Error(t, err)
}

func TestEstimateTokensClampedToBurst(t *testing.T) {
	inner := &fakeModel{name: "anthropic", response: Response{Text: "ok"}}
	rl := NewRateLimited(inner, 60000, 5)

	req := Request{Messages: []Message{{Content: string(make([]byte, 10000))}}}
	_, err := rl.Complete(context.Background(), req)
	require.NoError(t, err)
}
