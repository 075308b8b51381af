package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	tools      []ToolDescriptor
	pingErr    error
	lastCalled string
}

func (f *fakeTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	return f.tools, nil
}

func (f *fakeTransport) CallTool(ctx context.Context, name string, argsJSON string) ([]Segment, error) {
	f.lastCalled = name
	return []Segment{{Type: "text", Data: "ok"}}, nil
}

func (f *fakeTransport) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeTransport) Close() error                   { return nil }

func TestRegisterNamespacePrefixOnConflict(t *testing.T) {
	p := NewProxy(ConflictNamespacePrefix)
	a := &fakeTransport{tools: []ToolDescriptor{{Name: "search"}}}
	b := &fakeTransport{tools: []ToolDescriptor{{Name: "search"}}}

	require.NoError(t, p.Register(context.Background(), "serverA", a))
	require.NoError(t, p.Register(context.Background(), "serverB", b))

	catalog := p.Catalog()
	require.Contains(t, catalog, "search")
	require.Contains(t, catalog, "serverB/search")
}

func TestRegisterRejectOnConflict(t *testing.T) {
	p := NewProxy(ConflictReject)
	a := &fakeTransport{tools: []ToolDescriptor{{Name: "search"}}}
	b := &fakeTransport{tools: []ToolDescriptor{{Name: "search"}}}

	require.NoError(t, p.Register(context.Background(), "serverA", a))
	err := p.Register(context.Background(), "serverB", b)
	require.ErrorIs(t, err, ErrConflict)
}

func TestCallRoutesToOwningServer(t *testing.T) {
	p := NewProxy(ConflictFirstWins)
	a := &fakeTransport{tools: []ToolDescriptor{{Name: "search"}}}
	require.NoError(t, p.Register(context.Background(), "serverA", a))

	segments, err := p.Call(context.Background(), "search", `{}`)
	require.NoError(t, err)
	require.Equal(t, "search", a.lastCalled)
	require.Equal(t, "ok", segments[0].Data)
}

func TestHealthCheckMarksUnhealthyAndSkipsRouting(t *testing.T) {
	p := NewProxy(ConflictFirstWins)
	a := &fakeTransport{tools: []ToolDescriptor{{Name: "search"}}, pingErr: assertErr}
	require.NoError(t, p.Register(context.Background(), "serverA", a))

	p.HealthCheck(context.Background())

	_, err := p.Call(context.Background(), "search", `{}`)
	require.Error(t, err)
}

var assertErr = errUnhealthy{}

type errUnhealthy struct{}

func (errUnhealthy) Error() string { return "unhealthy" }
