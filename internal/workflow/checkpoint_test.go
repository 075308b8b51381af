package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Unicorn/Radium-sub010/internal/session"
)

func TestCheckpointCreateListGet(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())
	sess := &session.Session{ID: "sess-1", AgentID: "coder", State: session.StateActive}

	cp, err := store.Create("wf-1", 2, sess)
	require.NoError(t, err)
	require.Equal(t, "wf-1", cp.WorkflowID)
	require.Equal(t, 2, cp.StepIndex)

	list, err := store.List("wf-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, cp.ID, list[0].ID)

	got, err := store.Get("wf-1", cp.ID)
	require.NoError(t, err)
	require.Equal(t, cp.SessionID, got.SessionID)
}

func TestCheckpointDelete(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())
	sess := &session.Session{ID: "sess-1", State: session.StateActive}

	cp, err := store.Create("wf-1", 0, sess)
	require.NoError(t, err)
	require.NoError(t, store.Delete("wf-1", cp.ID))

	_, err = store.Get("wf-1", cp.ID)
	require.Error(t, err)
}

func TestRestoreRejectsPendingToolCalls(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())
	sess := &session.Session{
		ID: "sess-1", State: session.StateActive,
		ToolCalls: []session.ToolCall{{ID: "tc1", ToolName: "run_command"}},
	}

	cp, err := store.Create("wf-1", 1, sess)
	require.NoError(t, err)

	_, err = Restore(cp)
	require.ErrorIs(t, err, ErrPendingToolCalls)
}

func TestRestoreAcceptsTerminalSession(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())
	sess := &session.Session{
		ID: "sess-1", State: session.StateActive,
		ToolCalls: []session.ToolCall{{ID: "tc1", ToolName: "read_file", Success: true}},
	}

	cp, err := store.Create("wf-1", 1, sess)
	require.NoError(t, err)

	restored, err := Restore(cp)
	require.NoError(t, err)
	require.Equal(t, "sess-1", restored.ID)
}
