package scheduler

import (
	"strings"
	"time"

	"taskhive/internal/registry"
)

// Scorer rates how well a worker matches a work description. The scheduler
// picks the argmax; alternative strategies plug in here without touching
// the distribution control flow.
type Scorer interface {
	Score(w *registry.Worker, description string) int
}

// Scoring weights.
const (
	capabilityMatchScore = 10
	activeStatusScore    = 5
	idleBonusScore       = 2
)

// DefaultIdleWindow is how long a worker must sit idle before it earns the
// anti-starvation nudge.
const DefaultIdleWindow = 60 * time.Second

// KeywordScorer is the default scorer: capability tags are matched as
// keywords against the lowercased description, with hyphens in tags treated
// as spaces ("file-operations" matches "file operations").
type KeywordScorer struct {
	IdleWindow time.Duration
	now        func() time.Time
}

// NewKeywordScorer creates the default scorer.
func NewKeywordScorer(idleWindow time.Duration) *KeywordScorer {
	if idleWindow <= 0 {
		idleWindow = DefaultIdleWindow
	}
	return &KeywordScorer{IdleWindow: idleWindow, now: time.Now}
}

// Score implements Scorer.
func (k *KeywordScorer) Score(w *registry.Worker, description string) int {
	desc := strings.ToLower(description)

	score := 0
	for _, tag := range w.Capabilities {
		needle := strings.ReplaceAll(strings.ToLower(tag), "-", " ")
		if needle != "" && strings.Contains(desc, needle) {
			score += capabilityMatchScore
		}
	}
	if w.Status == registry.StatusActive {
		score += activeStatusScore
	}
	if k.now().Sub(w.LastActiveAt) > k.IdleWindow {
		score += idleBonusScore
	}
	return score
}
