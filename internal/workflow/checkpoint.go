package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Unicorn/Radium-sub010/internal/session"
)

// ErrPendingToolCalls is returned by Restore when the target session
// has a tool call without a terminal result: restoring mid-tool-call
// would leave the orchestrator waiting on a call it no longer owns.
var ErrPendingToolCalls = errors.New("workflow: checkpoint restore rejected, session has pending tool calls")

// Checkpoint is a content-addressed snapshot of a workflow's paused
// state (§4.5 checkpoint behavior: "pause the workflow... resumes only
// on an explicit external signal").
type Checkpoint struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	StepIndex  int       `json:"step_index"`
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	Session    json.RawMessage `json:"session"`
}

// CheckpointStore persists checkpoints as one JSON file per checkpoint
// under <root>/<workflow-id>/<id>.json, ids content-addressed by the
// sha256 of the snapshot bytes so identical states dedupe naturally.
type CheckpointStore struct {
	root string
}

func NewCheckpointStore(root string) *CheckpointStore {
	return &CheckpointStore{root: root}
}

// Create snapshots a session and persists a new checkpoint for it.
func (c *CheckpointStore) Create(workflowID string, stepIndex int, sess *session.Session) (Checkpoint, error) {
	snapshot, err := json.Marshal(sess)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("workflow: marshal checkpoint session: %w", err)
	}
	sum := sha256.Sum256(snapshot)
	id := hex.EncodeToString(sum[:])

	cp := Checkpoint{
		ID: id, WorkflowID: workflowID, StepIndex: stepIndex,
		SessionID: sess.ID, CreatedAt: time.Now(), Session: snapshot,
	}

	dir := filepath.Join(c.root, workflowID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Checkpoint{}, fmt.Errorf("workflow: create checkpoint dir: %w", err)
	}
	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return Checkpoint{}, fmt.Errorf("workflow: marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, id+".json"), b, 0o644); err != nil {
		return Checkpoint{}, fmt.Errorf("workflow: write checkpoint: %w", err)
	}
	return cp, nil
}

// List enumerates checkpoints for a workflow, newest first.
func (c *CheckpointStore) List(workflowID string) ([]Checkpoint, error) {
	dir := filepath.Join(c.root, workflowID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: list checkpoints: %w", err)
	}
	var out []Checkpoint
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		cp, err := c.read(workflowID, e.Name())
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c *CheckpointStore) read(workflowID, filename string) (Checkpoint, error) {
	b, err := os.ReadFile(filepath.Join(c.root, workflowID, filename))
	if err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// Get loads a single checkpoint by id.
func (c *CheckpointStore) Get(workflowID, id string) (Checkpoint, error) {
	return c.read(workflowID, id+".json")
}

// Delete removes a checkpoint.
func (c *CheckpointStore) Delete(workflowID, id string) error {
	err := os.Remove(filepath.Join(c.root, workflowID, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Restore rejects restoring a checkpoint whose snapshotted session has
// any non-terminal tool call, then hands back the decoded session for
// the caller to reattach the workflow to.
func Restore(cp Checkpoint) (*session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal(cp.Session, &sess); err != nil {
		return nil, fmt.Errorf("workflow: decode checkpoint session: %w", err)
	}
	if sess.HasPendingToolCalls() {
		return nil, ErrPendingToolCalls
	}
	return &sess, nil
}
