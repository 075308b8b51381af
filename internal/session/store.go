package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session id has no on-disk document.
var ErrNotFound = errors.New("session: not found")

// ErrInvalidTransition is returned by UpdateState on a disallowed move.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// Locator is the subset of workspace.Layout the store needs, kept as an
// interface so this package doesn't import internal/workspace.
type Locator interface {
	SessionFile(id string) string
	SessionArtifactsDir(id string) string
	SessionsDirPath() string
}

// ListOptions filters and paginates List.
type ListOptions struct {
	AgentID string
	Limit   int
	Offset  int
}

// Store persists sessions as one JSON document per session under the
// workspace's sessions directory (§4.3, §6). Every append atomically
// rewrites the document; an in-process per-session lock gives
// read-copy-modify-write semantics so concurrent appends from the
// orchestrator never interleave (§5).
type Store struct {
	locator Locator

	mu    sync.Mutex // guards locks map
	locks map[string]*sync.Mutex
}

func NewStore(locator Locator) *Store {
	return &Store{locator: locator, locks: map[string]*sync.Mutex{}}
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Create starts a new Active session and persists it immediately.
func (s *Store) Create(agentID, workspaceRoot string) (*Session, error) {
	sess := &Session{
		ID:            uuid.NewString(),
		AgentID:       agentID,
		WorkspaceRoot: workspaceRoot,
		State:         StateActive,
		CreatedAt:     time.Now(),
	}
	if err := s.write(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Attach rehydrates a session from disk, the single read path a client
// (re)connecting to a possibly-new process uses (§4.3 resume invariant).
func (s *Store) Attach(id string) (*Session, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.read(id)
}

// Restore overwrites a session's document with sess wholesale, used by
// checkpoint restore (C14) to reinstate a prior snapshot. The caller is
// responsible for any invariant checks (e.g. rejecting a snapshot with
// pending tool calls) before calling this.
func (s *Store) Restore(sess *Session) error {
	lock := s.lockFor(sess.ID)
	lock.Lock()
	defer lock.Unlock()
	return s.write(sess)
}

func (s *Store) read(id string) (*Session, error) {
	path := s.locator.SessionFile(id)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *Store) write(sess *Session) error {
	path := s.locator.SessionFile(sess.ID)
	b, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// AppendMessage appends a message under the session's lock and rewrites
// the document.
func (s *Store) AppendMessage(id string, msg Message) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.read(id)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	sess.Messages = append(sess.Messages, msg)
	return s.write(sess)
}

// AppendToolCall appends a tool-call record under the session's lock.
func (s *Store) AppendToolCall(id string, call ToolCall) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.read(id)
	if err != nil {
		return err
	}
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.Timestamp.IsZero() {
		call.Timestamp = time.Now()
	}
	sess.ToolCalls = append(sess.ToolCalls, call)
	return s.write(sess)
}

// UpdateToolCallResult finds a tool call by id and fills in its terminal
// result, used when a suspended async tool completes.
func (s *Store) UpdateToolCallResult(id, toolCallID string, result json.RawMessage, success bool, errMsg string, durationMS int64) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.read(id)
	if err != nil {
		return err
	}
	for i := range sess.ToolCalls {
		if sess.ToolCalls[i].ID == toolCallID {
			sess.ToolCalls[i].Result = result
			sess.ToolCalls[i].Success = success
			sess.ToolCalls[i].Error = errMsg
			sess.ToolCalls[i].DurationMS = durationMS
			return s.write(sess)
		}
	}
	return fmt.Errorf("session: tool call %s not found", toolCallID)
}

// UpdateState transitions a session's state, enforcing the forward-only
// rule (§4.3).
func (s *Store) UpdateState(id string, next State) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.read(id)
	if err != nil {
		return err
	}
	if !CanTransition(sess.State, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.State, next)
	}
	sess.State = next
	return s.write(sess)
}

// SaveArtifact writes bytes to the session's artifact directory,
// fsync'd before returning so the write is durable before acknowledging
// the caller (§9).
func (s *Store) SaveArtifact(id, name string, data []byte) (Artifact, error) {
	dir := s.locator.SessionArtifactsDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create artifacts dir: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("create artifact: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return Artifact{}, fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Artifact{}, fmt.Errorf("sync artifact: %w", err)
	}

	artifact := Artifact{ID: uuid.NewString(), Name: name, Size: int64(len(data))}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	sess, err := s.read(id)
	if err != nil {
		return Artifact{}, err
	}
	sess.Artifacts = append(sess.Artifacts, artifact)
	if err := s.write(sess); err != nil {
		return Artifact{}, err
	}
	return artifact, nil
}

// List enumerates sessions in the sessions directory, filtered and
// paginated by opts. This walks the directory rather than an index,
// acceptable at the expected per-workspace session counts (§4.3).
func (s *Store) List(opts ListOptions) ([]*Session, error) {
	entries, err := os.ReadDir(s.locator.SessionsDirPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions dir: %w", err)
	}

	var all []*Session
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		sess, err := s.read(id)
		if err != nil {
			continue
		}
		if opts.AgentID != "" && sess.AgentID != opts.AgentID {
			continue
		}
		all = append(all, sess)
	}

	start := opts.Offset
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return all[start:end], nil
}
