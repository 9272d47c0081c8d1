package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileSnapshotStore persists the snapshot as a single JSON file. Writes go
// through a temp file plus rename so readers never observe a torn snapshot.
// This is the mock-grade default backend.
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore constructs a file-backed store, creating the parent
// directory if needed.
func NewFileSnapshotStore(path string) (*FileSnapshotStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("snapshot dir: %w", err)
		}
	}
	return &FileSnapshotStore{path: path}, nil
}

// Save writes the snapshot atomically.
func (s *FileSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("snapshot write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("snapshot rename: %w", err)
	}
	return nil
}

// Load reads the last snapshot. A missing file yields an empty snapshot.
func (s *FileSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("snapshot read: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot decode: %w", err)
	}
	return snap, nil
}

// Close is a no-op for the file backend.
func (s *FileSnapshotStore) Close() error { return nil }
