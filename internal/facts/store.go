// Package facts maintains the shared ground-truth record used to produce
// and validate verification headers, plus the monotonic header counter.
package facts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"taskhive/internal/logging"
)

// EnvOverride names the environment variable that, when set, takes priority
// over the persisted facts file.
const EnvOverride = "HIVE_FACTS"

// FactSet is the flat ground-truth record. OpenTasks is informational and
// is not compared during validation.
type FactSet struct {
	Scope     string `json:"scope"`
	Site      string `json:"site"`
	OpenTasks int    `json:"open_tasks"`
	Provider  string `json:"provider"`
}

// document is the on-disk shape: the fact set plus counter and timestamp.
type document struct {
	FactSet
	Counter   uint64 `json:"counter"`
	UpdatedAt string `json:"updated_at"`
}

// Defaults returns the built-in fact set used when nothing is persisted.
func Defaults() FactSet {
	return FactSet{
		Scope:    "workspace",
		Site:     "local",
		Provider: "default",
	}
}

// Store owns the current fact set and the header counter. The counter never
// decreases and never repeats within a process lifetime; it is persisted so
// it also survives restarts.
type Store struct {
	mu      sync.Mutex
	path    string
	current FactSet
	counter uint64
}

// NewStore creates a store backed by the given facts file and loads the
// initial state. Malformed persisted state falls back to defaults and is
// logged, never raised.
func NewStore(path string) *Store {
	s := &Store{path: path}
	s.load()
	return s
}

func (s *Store) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Priority: env override, persisted file, defaults.
	if raw := os.Getenv(EnvOverride); raw != "" {
		var doc document
		if err := json.Unmarshal([]byte(raw), &doc); err == nil {
			s.current = doc.FactSet
			s.counter = doc.Counter
			logging.Facts("loaded facts from %s override (counter=%d)", EnvOverride, s.counter)
			return
		}
		logging.FactsWarn("malformed %s override, falling back", EnvOverride)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.FactsWarn("could not read facts file %s: %v, using defaults", s.path, err)
		}
		s.current = Defaults()
		return
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.FactsWarn("malformed facts file %s: %v, using defaults", s.path, err)
		s.current = Defaults()
		return
	}

	s.current = doc.FactSet
	s.counter = doc.Counter
	logging.Facts("loaded facts from %s (counter=%d)", s.path, s.counter)
}

// Load returns the current fact set.
func (s *Store) Load() FactSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Counter returns the current counter value without incrementing it.
func (s *Store) Counter() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Next increments the counter and returns the new value. Exactly one
// increment happens per generated header.
func (s *Store) Next() uint64 {
	s.mu.Lock()
	s.counter++
	n := s.counter
	s.mu.Unlock()

	// Persist off the critical section; in-memory state is already updated.
	if err := s.persist(); err != nil {
		logging.FactsWarn("counter persist failed: %v", err)
	}
	return n
}

// Update replaces the current fact set and persists it.
func (s *Store) Update(fs FactSet) {
	s.mu.Lock()
	s.current = fs
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		logging.FactsWarn("facts persist failed: %v", err)
	}
}

// SetOpenTasks updates the informational open-task count.
func (s *Store) SetOpenTasks(n int) {
	s.mu.Lock()
	s.current.OpenTasks = n
	s.mu.Unlock()
}

// Persist writes the whole document to disk. Failures are returned so the
// caller can log them, but callers never treat them as fatal.
func (s *Store) Persist() error {
	return s.persist()
}

func (s *Store) persist() error {
	s.mu.Lock()
	doc := document{
		FactSet:   s.current,
		Counter:   s.counter,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create facts directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal facts: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write facts: %w", err)
	}
	return nil
}
