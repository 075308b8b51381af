package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise AgentStore against a scripted driver instead of a
// real sqlite file, so a query's exact SQL and argument order is pinned
// down without needing a migrated on-disk database.

func TestAgentStoreGetAgainstMockDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := OpenDB(db)
	agents := NewAgentStore(s)

	rows := sqlmock.NewRows([]string{
		"id", "name", "description", "prompt_path", "engine", "model",
		"reasoning_effort", "category", "capabilities", "sandbox", "created_at",
	}).AddRow("code-review", "Code Review", "", "prompts/code-review.md", "", "", "", "", "read,edit", "", time.Now().UTC().Format(time.RFC3339Nano))

	mock.ExpectQuery("SELECT id, name, description, prompt_path, engine, model, reasoning_effort, category, capabilities, sandbox, created_at\\s+FROM agents WHERE id = \\?").
		WithArgs("code-review").
		WillReturnRows(rows)

	rec, err := agents.Get(context.Background(), "code-review")
	require.NoError(t, err)
	assert.Equal(t, "Code Review", rec.Name)
	assert.ElementsMatch(t, []string{"read", "edit"}, rec.Capabilities)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAgentStoreGetPropagatesDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := OpenDB(db)
	agents := NewAgentStore(s)

	mock.ExpectQuery("SELECT id, name, description, prompt_path, engine, model, reasoning_effort, category, capabilities, sandbox, created_at\\s+FROM agents WHERE id = \\?").
		WithArgs("missing").
		WillReturnError(ErrNotFound)

	_, err = agents.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAgentStoreUpsertAgainstMockDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := OpenDB(db)
	agents := NewAgentStore(s)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO agents").
		WithArgs("planner", "Planner", "", "prompts/planner.md", "", "", "", "", "read", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec := AgentRecord{ID: "planner", Name: "Planner", PromptPath: "prompts/planner.md", Capabilities: []string{"read"}, CreatedAt: time.Now()}
	require.NoError(t, agents.Upsert(context.Background(), rec))

	require.NoError(t, mock.ExpectationsWereMet())
}
