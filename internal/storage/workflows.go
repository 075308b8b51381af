package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// WorkflowRecord is the persisted form of a workflow's top-level state.
// The step sequence itself is stored as JSON (steps) since it is read
// and rewritten wholesale by the workflow engine, not queried piecemeal.
type WorkflowRecord struct {
	ID        string
	Name      string
	State     string
	StepsJSON string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskRecord is one step execution within a workflow run.
type TaskRecord struct {
	ID             string
	WorkflowID     string
	StepIndex      int
	AgentID        string
	Input          string
	Status         string
	StartedAt      *time.Time
	EndedAt        *time.Time
	OutputHash     string
	FailureHistory string
}

type WorkflowStore struct {
	s *Store
}

func NewWorkflowStore(s *Store) *WorkflowStore { return &WorkflowStore{s: s} }

func (w *WorkflowStore) Upsert(ctx context.Context, rec WorkflowRecord) error {
	return w.s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflows (id, name, state, steps, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name=excluded.name, state=excluded.state, steps=excluded.steps, updated_at=excluded.updated_at
		`, rec.ID, rec.Name, rec.State, rec.StepsJSON,
			rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("upsert workflow %s: %w", rec.ID, err)
		}
		return nil
	})
}

func (w *WorkflowStore) Get(ctx context.Context, id string) (WorkflowRecord, error) {
	var rec WorkflowRecord
	var created, updated string
	err := w.s.DB().QueryRowContext(ctx, `
		SELECT id, name, state, steps, created_at, updated_at FROM workflows WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Name, &rec.State, &rec.StepsJSON, &created, &updated)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("get workflow: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rec, nil
}

func (w *WorkflowStore) List(ctx context.Context) ([]WorkflowRecord, error) {
	rows, err := w.s.DB().QueryContext(ctx, `
		SELECT id, name, state, steps, created_at, updated_at FROM workflows ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []WorkflowRecord
	for rows.Next() {
		var rec WorkflowRecord
		var created, updated string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.State, &rec.StepsJSON, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (w *WorkflowStore) UpsertTask(ctx context.Context, rec TaskRecord) error {
	startedAt, endedAt := nullableTime(rec.StartedAt), nullableTime(rec.EndedAt)
	return w.s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, workflow_id, step_index, agent_id, input, status, started_at, ended_at, output_hash, failure_history)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status=excluded.status, started_at=excluded.started_at, ended_at=excluded.ended_at,
				output_hash=excluded.output_hash, failure_history=excluded.failure_history
		`, rec.ID, rec.WorkflowID, rec.StepIndex, rec.AgentID, rec.Input, rec.Status, startedAt, endedAt,
			rec.OutputHash, rec.FailureHistory)
		if err != nil {
			return fmt.Errorf("upsert task %s: %w", rec.ID, err)
		}
		return nil
	})
}

func (w *WorkflowStore) TasksForWorkflow(ctx context.Context, workflowID string) ([]TaskRecord, error) {
	rows, err := w.s.DB().QueryContext(ctx, `
		SELECT id, workflow_id, step_index, agent_id, input, status, started_at, ended_at, output_hash, failure_history
		FROM tasks WHERE workflow_id = ? ORDER BY step_index
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var startedAt, endedAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.StepIndex, &rec.AgentID, &rec.Input, &rec.Status,
			&startedAt, &endedAt, &rec.OutputHash, &rec.FailureHistory); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		rec.StartedAt = parseNullableTime(startedAt)
		rec.EndedAt = parseNullableTime(endedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
