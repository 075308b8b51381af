package context

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSources struct{ body string }

func (f fakeSources) Fetch(ctx context.Context, uri string) ([]byte, error) {
	return []byte(f.body + ":" + uri), nil
}

type fakeHistory struct{ lines []string }

func (f fakeHistory) TailText(ctx context.Context, sessionID string, n int) ([]string, error) {
	if n > len(f.lines) {
		n = len(f.lines)
	}
	return f.lines[len(f.lines)-n:], nil
}

type fakeMemory struct{ entries []string }

func (f fakeMemory) Recent(ctx context.Context, planID string, limit int) ([]string, error) {
	return f.entries, nil
}

func TestAssembleSubstitutesVariables(t *testing.T) {
	m := NewManager(nil, nil, nil, nil)
	out, err := m.Assemble(context.Background(), Request{
		Template:  "Hello {{name}}",
		Variables: map[string]string{"name": "Radium"},
	})
	require.NoError(t, err)
	require.Equal(t, "Hello Radium", out)
}

func TestAssembleResolvesInputAndTail(t *testing.T) {
	m := NewManager(fakeSources{body: "fetched"}, fakeHistory{lines: []string{"a", "b", "c"}}, nil, nil)
	out, err := m.Assemble(context.Background(), Request{
		Template:  "ctx: agent[input:file://x.md] tail: agent[tail:2]",
		SessionID: "s1",
	})
	require.NoError(t, err)
	require.Contains(t, out, "fetched:file://x.md")
	require.Contains(t, out, "b\nc")
}

func TestAssemblePrependsMemoryAndPlaybooks(t *testing.T) {
	pb := NewPlaybookStore()
	pb.Append("coder", "Always write tests.")

	m := NewManager(nil, nil, fakeMemory{entries: []string{"prior output"}}, pb)
	out, err := m.Assemble(context.Background(), Request{
		Template: "body",
		PlanID:   "plan-1",
		AgentTag: "coder",
	})
	require.NoError(t, err)
	require.True(t, strings.Index(out, "prior output") < strings.Index(out, "body"))
	require.Contains(t, out, "Always write tests.")
}

func TestAssembleSizeCapErrors(t *testing.T) {
	m := NewManager(nil, nil, nil, nil)
	_, err := m.Assemble(context.Background(), Request{Template: "0123456789", SizeCap: 5})
	require.ErrorIs(t, err, ErrSizeCapExceeded)
}

func TestLoadHierarchicalContextNearestFirst(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "pkg", "inner")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "GEMINI.md"), []byte("root context"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "GEMINI.md"), []byte("inner context"), 0o644))

	sections := loadHierarchicalContext(sub, root)
	require.Equal(t, []string{"inner context", "root context"}, sections)
}
