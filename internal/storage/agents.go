package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AgentRecord is the persisted form of an agent definition (§3).
type AgentRecord struct {
	ID              string
	Name            string
	Description     string
	PromptPath      string
	Engine          string
	Model           string
	ReasoningEffort string
	Category        string
	Capabilities    []string
	Sandbox         string
	CreatedAt       time.Time
}

// AgentStore persists agent definitions in the agents table. It does not
// discover definitions or compare file mtimes; discovery of agent
// definition files lives in internal/agentdef.
type AgentStore struct {
	s *Store
}

func NewAgentStore(s *Store) *AgentStore { return &AgentStore{s: s} }

func (a *AgentStore) Upsert(ctx context.Context, rec AgentRecord) error {
	return a.s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (id, name, description, prompt_path, engine, model, reasoning_effort, category, capabilities, sandbox, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name=excluded.name, description=excluded.description, prompt_path=excluded.prompt_path,
				engine=excluded.engine, model=excluded.model, reasoning_effort=excluded.reasoning_effort,
				category=excluded.category, capabilities=excluded.capabilities, sandbox=excluded.sandbox
		`, rec.ID, rec.Name, rec.Description, rec.PromptPath, rec.Engine, rec.Model, rec.ReasoningEffort,
			rec.Category, strings.Join(rec.Capabilities, ","), rec.Sandbox, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("upsert agent %s: %w", rec.ID, err)
		}
		return nil
	})
}

func (a *AgentStore) Get(ctx context.Context, id string) (AgentRecord, error) {
	row := a.s.DB().QueryRowContext(ctx, `
		SELECT id, name, description, prompt_path, engine, model, reasoning_effort, category, capabilities, sandbox, created_at
		FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

func (a *AgentStore) List(ctx context.Context) ([]AgentRecord, error) {
	rows, err := a.s.DB().QueryContext(ctx, `
		SELECT id, name, description, prompt_path, engine, model, reasoning_effort, category, capabilities, sandbox, created_at
		FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []AgentRecord
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (AgentRecord, error) {
	var rec AgentRecord
	var caps, createdAt string
	err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.PromptPath, &rec.Engine, &rec.Model,
		&rec.ReasoningEffort, &rec.Category, &caps, &rec.Sandbox, &createdAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("scan agent: %w", err)
	}
	if caps != "" {
		rec.Capabilities = strings.Split(caps, ",")
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return rec, nil
}

// RecordAnalytics best-effort persists a policy decision (§4.1: "Recording
// to analytics is best-effort (warnings only)"). Callers log and discard
// the error rather than propagate it.
func (a *AgentStore) RecordAnalytics(ctx context.Context, id, toolName, action, matchedRule string, at time.Time) error {
	_, err := a.s.DB().ExecContext(ctx, `
		INSERT INTO policy_analytics (id, tool_name, action, matched_rule, recorded_at) VALUES (?, ?, ?, ?, ?)
	`, id, toolName, action, matchedRule, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record analytics: %w", err)
	}
	return nil
}

// MarshalCapabilities and UnmarshalCapabilities exist for callers that
// store capability flags as a structured map rather than a flat list.
func MarshalCapabilities(m map[string]bool) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal capabilities: %w", err)
	}
	return string(b), nil
}
