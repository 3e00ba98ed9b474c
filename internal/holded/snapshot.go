package holded

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoSnapshot indicates no snapshot file has been configured or written yet.
var ErrNoSnapshot = errors.New("holded: no product snapshot")

// SnapshotStore persists the last successful product listing to disk.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore returns a store writing to path. An empty path disables it.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Load reads the persisted listing.
func (s *SnapshotStore) Load() ([]Product, error) {
	if s == nil || s.path == "" {
		return nil, ErrNoSnapshot
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("holded: read snapshot: %w", err)
	}
	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("holded: decode snapshot: %w", err)
	}
	return products, nil
}

// Save atomically replaces the persisted listing.
func (s *SnapshotStore) Save(products []Product) error {
	if s == nil || s.path == "" {
		return nil
	}
	raw, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("holded: encode snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("holded: snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".products-*.json")
	if err != nil {
		return fmt.Errorf("holded: snapshot temp: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("holded: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("holded: close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("holded: replace snapshot: %w", err)
	}
	return nil
}
