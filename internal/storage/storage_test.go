package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAgentStoreUpsertAndGet(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "db.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	agents := NewAgentStore(s)
	ctx := context.Background()

	rec := AgentRecord{
		ID:           "code-review",
		Name:         "Code Review",
		PromptPath:   "prompts/code-review.md",
		Capabilities: []string{"read", "edit"},
		CreatedAt:    time.Now(),
	}
	require.NoError(t, agents.Upsert(ctx, rec))

	got, err := agents.Get(ctx, "code-review")
	require.NoError(t, err)
	require.Equal(t, rec.Name, got.Name)
	require.ElementsMatch(t, rec.Capabilities, got.Capabilities)

	_, err = agents.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWorkflowStoreRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "db.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	workflows := NewWorkflowStore(s)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, workflows.Upsert(ctx, WorkflowRecord{
		ID: "wf-1", Name: "nightly", State: "Running", StepsJSON: `[]`,
		CreatedAt: now, UpdatedAt: now,
	}))

	got, err := workflows.Get(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, "Running", got.State)

	require.NoError(t, workflows.UpsertTask(ctx, TaskRecord{
		ID: "task-1", WorkflowID: "wf-1", StepIndex: 0, AgentID: "a", Input: "{}", Status: "Completed",
	}))
	tasks, err := workflows.TasksForWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "Completed", tasks[0].Status)
}
