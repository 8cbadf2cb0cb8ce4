package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store loads and saves the cache map as a whole document.
type Store interface {
	Load() (map[string]Entry, error)
	Save(entries map[string]Entry) error
}

// JSONStore persists the cache map as a single JSON file.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-file-backed cache store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads the whole cache document. A missing file is an empty cache.
func (s *JSONStore) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse cache: %w", err)
	}
	return entries, nil
}

// Save writes the whole cache document.
func (s *JSONStore) Save(entries map[string]Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}
