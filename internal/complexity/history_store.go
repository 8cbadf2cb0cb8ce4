package complexity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// HistoryStore loads and saves the rolling history as a whole document.
// Swapping the backing medium is an implementation detail behind this
// interface, not a semantics change.
type HistoryStore interface {
	Load() ([]Record, error)
	Save(records []Record) error
}

// JSONHistoryStore persists the history as a single JSON file.
type JSONHistoryStore struct {
	path string
}

// NewJSONHistoryStore creates a JSON-file-backed history store.
func NewJSONHistoryStore(path string) *JSONHistoryStore {
	return &JSONHistoryStore{path: path}
}

// Load reads the whole history document. A missing file is an empty
// history, not an error.
func (s *JSONHistoryStore) Load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return records, nil
}

// Save writes the whole history document.
func (s *JSONHistoryStore) Save(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}
