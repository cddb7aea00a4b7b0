// Package persistence adapts the teacher's atomic JSON-file storage
// pattern to snapshotting the protocol's aggregates: Registry state and the
// Factory's election directory, one file per named snapshot under a base
// directory. Ballot state is not snapshotted.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists named JSON snapshots to disk using a temp-file-then-
// rename write, the same atomicity pattern as the teacher's
// JSONStore.saveChainToFile.
type Store struct {
	basePath string
	mu       sync.Mutex
}

// New creates a Store rooted at basePath, creating the directory if
// necessary.
func New(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// Save marshals v as indented JSON and atomically writes it to
// "<name>.json" under the store's base path.
func (s *Store) Save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pathFor(name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return nil
}

// Load unmarshals the snapshot named name into v. A missing snapshot file
// is not an error: v is left untouched and a nil error is returned, so
// callers can distinguish "never persisted" from "corrupt".
func (s *Store) Load(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return nil
}

func (s *Store) pathFor(name string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("%s.json", name))
}
