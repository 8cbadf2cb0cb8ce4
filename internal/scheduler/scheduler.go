// Package scheduler distributes submitted work across the worker roster,
// rebalances queued load, and memoizes assignments through the response
// cache.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskhive/internal/cache"
	"taskhive/internal/facts"
	"taskhive/internal/logging"
	"taskhive/internal/registry"

	"github.com/google/uuid"
)

// ErrNoWorkersRegistered is a configuration error: distribution cannot
// proceed with an empty roster. It is fatal to the caller, not retried.
var ErrNoWorkersRegistered = errors.New("no workers registered")

// Priority of a submitted task. Stored and exposed; it does not affect
// scoring.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// TaskStatus tracks the queued -> completed lifecycle. Completion is set
// externally; the scheduler never transitions a task to completed itself.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskCompleted TaskStatus = "completed"
)

// Task is one unit of submitted work. Tasks are never physically deleted;
// the queue is an append-only log filtered by status when counting load.
type Task struct {
	ID               string     `json:"id"`
	Description      string     `json:"description"`
	Priority         Priority   `json:"priority"`
	Status           TaskStatus `json:"status"`
	AssignedWorkerID string     `json:"assigned_worker_id"`
	Fingerprint      string     `json:"fingerprint"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Options tune a single distribution call.
type Options struct {
	Agent       string // pin the target worker, skipping scoring
	Purpose     string // cache fingerprint hint
	BypassCache bool
}

// AssignmentResult is returned to callers and stored in the cache.
type AssignmentResult struct {
	Cached               bool    `json:"cached"`
	TaskID               string  `json:"task_id,omitempty"`
	AssignedWorkerID     string  `json:"assigned_worker_id"`
	EstimatedTimeSeconds float64 `json:"estimated_time_seconds,omitempty"`
}

// RedistributeResult reports the outcome of one rebalancing pass.
type RedistributeResult struct {
	Redistributed bool   `json:"redistributed"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	TaskID        string `json:"task_id,omitempty"`
}

// StatusReport is the scheduler's observable state.
type StatusReport struct {
	ActiveWorkerCount   int       `json:"active_worker_count"`
	TotalWorkerCount    int       `json:"total_worker_count"`
	KnowledgeEntryCount int       `json:"knowledge_entry_count"`
	PendingTaskCount    int       `json:"pending_task_count"`
	LastEventTimestamp  time.Time `json:"last_event_timestamp"`
}

// Scheduler owns the task queue and serializes all mutations behind one
// mutex. Given expected low contention, a single lock around the whole
// distribute sequence also serializes the per-fingerprint read-then-write.
type Scheduler struct {
	mu        sync.Mutex
	registry  *registry.Registry
	cache     *cache.Cache
	facts     *facts.Store
	scorer    Scorer
	tasks     []*Task
	threshold int
	lastEvent time.Time
	now       func() time.Time
}

// New creates a scheduler. rebalanceThreshold is the queue-count gap that
// triggers a task move; values below 1 fall back to 2.
func New(reg *registry.Registry, c *cache.Cache, fs *facts.Store, scorer Scorer, rebalanceThreshold int) *Scheduler {
	if scorer == nil {
		scorer = NewKeywordScorer(DefaultIdleWindow)
	}
	if rebalanceThreshold < 1 {
		rebalanceThreshold = 2
	}
	return &Scheduler{
		registry:  reg,
		cache:     c,
		facts:     fs,
		scorer:    scorer,
		threshold: rebalanceThreshold,
		now:       time.Now,
	}
}

// Distribute assigns a work description to the best-matching worker,
// short-circuiting through the response cache when a prior assignment for
// the same fingerprint is still fresh.
func (s *Scheduler) Distribute(description string, priority Priority, opts Options) (AssignmentResult, error) {
	if s.registry.Len() == 0 {
		return AssignmentResult{}, ErrNoWorkersRegistered
	}
	if priority == "" {
		priority = PriorityNormal
	}

	fp := cache.Fingerprint(description, opts.Agent, opts.Purpose, s.facts.Load())

	s.mu.Lock()
	defer s.mu.Unlock()

	if !opts.BypassCache {
		if entry, ok := s.cache.Get(fp); ok {
			var result AssignmentResult
			if err := json.Unmarshal(entry.Payload, &result); err == nil {
				result.Cached = true
				logging.Scheduler("cache hit for %s -> %s", fp, result.AssignedWorkerID)
				return result, nil
			}
			logging.SchedulerWarn("unreadable cache payload for %s, recomputing", fp)
		}
	}

	worker, err := s.pickWorkerLocked(description, opts.Agent)
	if err != nil {
		return AssignmentResult{}, err
	}

	now := s.now()
	task := &Task{
		ID:               uuid.NewString(),
		Description:      description,
		Priority:         priority,
		Status:           TaskQueued,
		AssignedWorkerID: worker.ID,
		Fingerprint:      fp,
		CreatedAt:        now,
	}
	s.tasks = append(s.tasks, task)
	s.registry.Touch(worker.ID, now)
	s.lastEvent = now
	s.facts.SetOpenTasks(s.pendingCountLocked())

	result := AssignmentResult{
		TaskID:               task.ID,
		AssignedWorkerID:     worker.ID,
		EstimatedTimeSeconds: worker.BaseTimeSeconds * complexityMultiplier(description),
	}

	if err := s.cache.Put(fp, result, map[string]string{"purpose": opts.Purpose}); err != nil {
		logging.SchedulerWarn("cache write failed for %s: %v", fp, err)
	}

	logging.Scheduler("assigned task %s to %s (estimate %.1fs)", task.ID, worker.ID, result.EstimatedTimeSeconds)
	return result, nil
}

// pickWorkerLocked selects the target worker: a pinned agent verbatim, or
// the scoring argmax with first-registered winning ties.
func (s *Scheduler) pickWorkerLocked(description, agent string) (*registry.Worker, error) {
	if agent != "" {
		if w, ok := s.registry.Get(agent); ok {
			return w, nil
		}
		logging.SchedulerWarn("pinned agent %q not in roster, scoring instead", agent)
	}

	var best *registry.Worker
	bestScore := -1
	for _, w := range s.registry.Workers() {
		score := s.scorer.Score(w, description)
		logging.SchedulerDebug("score %s=%d", w.ID, score)
		if score > bestScore {
			best = w
			bestScore = score
		}
	}
	if best == nil {
		return nil, ErrNoWorkersRegistered
	}
	return best, nil
}

// complexityMultiplier scales the completion estimate with description
// length.
func complexityMultiplier(description string) float64 {
	switch {
	case len(description) > 100:
		return 1.5
	case len(description) > 50:
		return 1.2
	default:
		return 1.0
	}
}

// Redistribute inspects per-worker queued counts and moves exactly one
// task from the most-loaded to the least-loaded worker when the gap
// exceeds the threshold.
func (s *Scheduler) Redistribute() RedistributeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int, s.registry.Len())
	for _, w := range s.registry.Workers() {
		counts[w.ID] = 0
	}
	for _, t := range s.tasks {
		if t.Status == TaskQueued {
			counts[t.AssignedWorkerID]++
		}
	}

	var maxID, minID string
	maxCount, minCount := -1, -1
	for _, w := range s.registry.Workers() {
		c := counts[w.ID]
		if maxCount < 0 || c > maxCount {
			maxID, maxCount = w.ID, c
		}
		if minCount < 0 || c < minCount {
			minID, minCount = w.ID, c
		}
	}

	if maxCount-minCount <= s.threshold {
		return RedistributeResult{Redistributed: false}
	}

	// First queued task of the overloaded worker, in queue order.
	for _, t := range s.tasks {
		if t.Status == TaskQueued && t.AssignedWorkerID == maxID {
			t.AssignedWorkerID = minID
			s.lastEvent = s.now()
			logging.Scheduler("rebalanced task %s: %s -> %s (gap %d)", t.ID, maxID, minID, maxCount-minCount)
			return RedistributeResult{Redistributed: true, From: maxID, To: minID, TaskID: t.ID}
		}
	}
	return RedistributeResult{Redistributed: false}
}

// MarkCompleted transitions a task to completed. Completion is an external
// trigger; the transition is terminal.
func (s *Scheduler) MarkCompleted(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.ID == taskID {
			if t.Status == TaskCompleted {
				return nil
			}
			t.Status = TaskCompleted
			s.lastEvent = s.now()
			s.facts.SetOpenTasks(s.pendingCountLocked())
			return nil
		}
	}
	return fmt.Errorf("unknown task: %s", taskID)
}

// Status reports the scheduler's observable state.
func (s *Scheduler) Status() StatusReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StatusReport{
		ActiveWorkerCount:   s.registry.ActiveCount(),
		TotalWorkerCount:    s.registry.Len(),
		KnowledgeEntryCount: s.cache.CacheStats().ValidEntries,
		PendingTaskCount:    s.pendingCountLocked(),
		LastEventTimestamp:  s.lastEvent,
	}
}

// Tasks returns a copy of the task log, oldest first.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = *t
	}
	return out
}

func (s *Scheduler) pendingCountLocked() int {
	count := 0
	for _, t := range s.tasks {
		if t.Status == TaskQueued {
			count++
		}
	}
	return count
}

// StartRebalancer runs Redistribute on a timer until ctx is cancelled or
// the returned stop function is called. The loop takes the same lock as
// Distribute, so timer passes never race assignment mutations.
func (s *Scheduler) StartRebalancer(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 60 * time.Second
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				s.Redistribute()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopCh) })
		<-doneCh
	}
}
