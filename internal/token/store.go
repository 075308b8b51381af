// Package token implements the file-backed, permission-guarded
// credential/token store (C3): a key-secret map for provider credentials
// and daemon tokens, persisted under the workspace's auth directory.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned when a key has no stored secret.
var ErrNotFound = errors.New("token: not found")

type entry struct {
	Secret    string    `json:"secret"`
	UpdatedAt time.Time `json:"updated_at"`
}

type document struct {
	Entries map[string]entry `json:"entries"`
}

// Store serializes all writes so concurrent callers never interleave a
// partial rewrite of the underlying file (§5: "the token store
// serializes writes").
type Store struct {
	path string
	mu   sync.Mutex
}

// Open returns a Store backed by the file at path, creating an empty
// document if none exists. The caller is responsible for ensuring path's
// parent directory is mode 0700 (the workspace locator does this for the
// canonical auth directory).
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeDocument(path, document{Entries: map[string]entry{}}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &Store{path: path}, nil
}

func (s *Store) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return "", err
	}
	e, ok := doc.Entries[key]
	if !ok {
		return "", ErrNotFound
	}
	return e.Secret, nil
}

func (s *Store) Set(key, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Entries[key] = entry{Secret: secret, UpdatedAt: time.Now()}
	return writeDocument(s.path, doc)
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	delete(doc.Entries, key)
	return writeDocument(s.path, doc)
}

func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc.Entries))
	for k := range doc.Entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) read() (document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return document{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return document{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]entry{}
	}
	return doc, nil
}

// writeDocument atomically rewrites path via a temp file + rename, and
// enforces the mode-0600 permission §6 requires for auth files.
func writeDocument(path string, doc document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".token-*.tmp")
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
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
