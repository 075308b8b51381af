package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Unicorn/Radium-sub010/internal/workspace"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	layout, err := workspace.Locate(t.TempDir())
	require.NoError(t, err)
	return NewStore(layout)
}

func TestCreateAttachRoundTrip(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create("agent-1", "")
	require.NoError(t, err)
	require.Equal(t, StateActive, sess.State)

	got, err := s.Attach(sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
}

func TestResumeAfterRestartPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create("agent-1", "")
	require.NoError(t, err)

	require.NoError(t, s.AppendMessage(sess.ID, Message{Role: RoleUser, Content: "one"}))
	require.NoError(t, s.AppendToolCall(sess.ID, ToolCall{ToolName: "read_file", Success: true}))
	require.NoError(t, s.AppendMessage(sess.ID, Message{Role: RoleAssistant, Content: "two"}))

	// Simulate a cold restart: a fresh Store over the same locator.
	s2 := NewStore(s.locator)
	got, err := s2.Attach(sess.ID)
	require.NoError(t, err)

	require.Len(t, got.Messages, 2)
	require.Equal(t, "one", got.Messages[0].Content)
	require.Equal(t, "two", got.Messages[1].Content)
	require.Len(t, got.ToolCalls, 1)
}

func TestStateTransitionsForwardOnly(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create("agent-1", "")
	require.NoError(t, err)

	require.NoError(t, s.UpdateState(sess.ID, StatePaused))
	require.NoError(t, s.UpdateState(sess.ID, StateActive))
	require.NoError(t, s.UpdateState(sess.ID, StateCompleted))

	err = s.UpdateState(sess.ID, StateActive)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestHasPendingToolCalls(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create("agent-1", "")
	require.NoError(t, err)

	require.NoError(t, s.AppendToolCall(sess.ID, ToolCall{ToolName: "run_command"}))
	got, err := s.Attach(sess.ID)
	require.NoError(t, err)
	require.True(t, got.HasPendingToolCalls())

	require.NoError(t, s.UpdateToolCallResult(sess.ID, got.ToolCalls[0].ID, json.RawMessage(`"ok"`), true, "", 10))
	got, err = s.Attach(sess.ID)
	require.NoError(t, err)
	require.False(t, got.HasPendingToolCalls())
}

func TestSaveArtifactRecordsSizeAndArtifact(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create("agent-1", "")
	require.NoError(t, err)

	artifact, err := s.SaveArtifact(sess.ID, "output.txt", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(5), artifact.Size)

	got, err := s.Attach(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Artifacts, 1)
}
