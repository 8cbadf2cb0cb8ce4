// Package registry holds the static roster of schedulable workers.
package registry

import (
	"sync"
	"time"

	"taskhive/internal/config"
)

// Status describes a worker's eligibility tier.
type Status string

const (
	// StatusActive workers earn a scoring bonus over configured ones.
	StatusActive Status = "active"
	// StatusConfigured workers are eligible but lower priority.
	StatusConfigured Status = "configured"
)

// Worker represents one schedulable executor. Workers are created at
// process start from the roster and never deleted during a process
// lifetime; Status and LastActiveAt are mutated only by the scheduler.
type Worker struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"display_name"`
	Capabilities    []string  `json:"capabilities"`
	Status          Status    `json:"status"`
	LastActiveAt    time.Time `json:"last_active_at"`
	BaseTimeSeconds float64   `json:"base_time_seconds"`
}

// Registry is the ordered worker roster. Registration order is preserved
// so scoring tie-breaks are deterministic (first-registered wins).
type Registry struct {
	mu      sync.RWMutex
	ordered []*Worker
	byID    map[string]*Worker
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*Worker)}
}

// FromConfig builds a registry from the configured roster, preserving
// roster order.
func FromConfig(workers []config.WorkerConfig) *Registry {
	r := New()
	for _, wc := range workers {
		status := Status(wc.Status)
		if status != StatusActive && status != StatusConfigured {
			status = StatusConfigured
		}
		r.Register(&Worker{
			ID:              wc.ID,
			DisplayName:     wc.DisplayName,
			Capabilities:    append([]string(nil), wc.Capabilities...),
			Status:          status,
			LastActiveAt:    time.Now(),
			BaseTimeSeconds: wc.BaseTimeSeconds,
		})
	}
	return r
}

// Register appends a worker. Re-registering an existing ID replaces the
// entry in place, keeping its original position.
func (r *Registry) Register(w *Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[w.ID]; ok {
		*existing = *w
		return
	}
	r.ordered = append(r.ordered, w)
	r.byID[w.ID] = w
}

// Get returns the worker with the given ID.
func (r *Registry) Get(id string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	return w, ok
}

// Workers returns the roster in registration order.
func (r *Registry) Workers() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Worker(nil), r.ordered...)
}

// Len returns the roster size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// ActiveCount returns how many workers have active status.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, w := range r.ordered {
		if w.Status == StatusActive {
			count++
		}
	}
	return count
}

// Touch updates a worker's last-active timestamp.
func (r *Registry) Touch(id string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.byID[id]; ok {
		w.LastActiveAt = t
	}
}
