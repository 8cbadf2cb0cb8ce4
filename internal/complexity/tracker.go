package complexity

import (
	"sync"
	"time"

	"taskhive/internal/facts"
	"taskhive/internal/logging"
)

// HistoryCap bounds the rolling history. Oldest entries drop first, by
// insertion order.
const HistoryCap = 100

// DefaultTrendWindow is the number of records a trend computation spans.
const DefaultTrendWindow = 10

// Record is one measurement in the rolling history.
type Record struct {
	SubjectID   string            `json:"subject_id"`
	Timestamp   time.Time         `json:"timestamp"`
	FactCounter uint64            `json:"fact_counter"`
	Metrics     Metrics           `json:"metrics"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Direction classifies a trend.
type Direction string

const (
	DirectionStable     Direction = "stable"
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
)

// Trend describes the change between the two halves of the trend window.
type Trend struct {
	Direction     Direction `json:"direction"`
	PercentChange float64   `json:"percent_change"`
	RecentAverage float64   `json:"recent_average"`
	OlderAverage  float64   `json:"older_average"`
}

// Summary aggregates the most recent records.
type Summary struct {
	TotalCount    int      `json:"total_count"`
	RecentCount   int      `json:"recent_count"`
	Averages      Metrics  `json:"averages"`
	Trend         Trend    `json:"trend"`
	RecentEntries []Record `json:"recent_entries"`
}

// Tracker maintains the rolling complexity history. The trim-to-cap step is
// serialized so concurrent recorders cannot lose entries to overlapping
// truncations.
type Tracker struct {
	mu      sync.Mutex
	history []Record
	store   HistoryStore
	facts   *facts.Store
	cap     int
}

// NewTracker creates a tracker backed by the given history store. facts may
// be nil; records then carry a zero fact counter.
func NewTracker(store HistoryStore, factStore *facts.Store) *Tracker {
	t := &Tracker{store: store, facts: factStore, cap: HistoryCap}

	if store != nil {
		history, err := store.Load()
		if err != nil {
			// Corrupt history is recovered as empty, never propagated.
			logging.ComplexityDebug("history load failed: %v, starting empty", err)
		} else {
			t.history = history
		}
	}
	return t
}

// Record scores content, appends the measurement, trims to the cap, and
// persists the history.
func (t *Tracker) Record(subjectID, content string, metadata map[string]string) Record {
	rec := Record{
		SubjectID: subjectID,
		Timestamp: time.Now().UTC(),
		Metrics:   Score(content),
		Metadata:  metadata,
	}
	if t.facts != nil {
		rec.FactCounter = t.facts.Counter()
	}

	t.mu.Lock()
	t.history = append(t.history, rec)
	if len(t.history) > t.cap {
		t.history = t.history[len(t.history)-t.cap:]
	}
	snapshot := make([]Record, len(t.history))
	copy(snapshot, t.history)
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.Save(snapshot); err != nil {
			logging.Get(logging.CategoryComplexity).Warn("history persist failed: %v", err)
		}
	}

	logging.ComplexityDebug("recorded %s composite=%.2f", subjectID, rec.Metrics.CompositeScore)
	return rec
}

// TrendOver splits the most recent windowSize records into an older and a
// newer half and compares their composite-score averages. With fewer than 2
// records in the older half the trend is stable at 0%.
func (t *Tracker) TrendOver(windowSize int) Trend {
	if windowSize <= 0 {
		windowSize = DefaultTrendWindow
	}

	t.mu.Lock()
	window := t.history
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	window = append([]Record(nil), window...)
	t.mu.Unlock()

	mid := len(window) / 2
	older := window[:mid]
	recent := window[mid:]

	if len(older) < 2 {
		return Trend{Direction: DirectionStable}
	}

	olderAvg := averageComposite(older)
	recentAvg := averageComposite(recent)

	var pct float64
	if olderAvg != 0 {
		pct = (recentAvg - olderAvg) / olderAvg * 100
	}

	direction := DirectionStable
	switch {
	case pct >= 5:
		direction = DirectionIncreasing
	case pct <= -5:
		direction = DirectionDecreasing
	}

	return Trend{
		Direction:     direction,
		PercentChange: round2(pct),
		RecentAverage: round2(recentAvg),
		OlderAverage:  round2(olderAvg),
	}
}

// TrendDefault computes the trend over the default window.
func (t *Tracker) TrendDefault() Trend {
	return t.TrendOver(DefaultTrendWindow)
}

// Summarize aggregates the most recent limit records. The embedded trend
// spans the same window, so averages and trend describe one slice of
// history.
func (t *Tracker) Summarize(limit int) Summary {
	if limit <= 0 {
		limit = 10
	}

	t.mu.Lock()
	total := len(t.history)
	recent := t.history
	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	recent = append([]Record(nil), recent...)
	t.mu.Unlock()

	return Summary{
		TotalCount:    total,
		RecentCount:   len(recent),
		Averages:      averageMetrics(recent),
		Trend:         t.TrendOver(limit),
		RecentEntries: recent,
	}
}

// Len returns the current history length.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}

// History returns a copy of the current history, oldest first.
func (t *Tracker) History() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Record(nil), t.history...)
}

func averageComposite(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range records {
		sum += r.Metrics.CompositeScore
	}
	return sum / float64(len(records))
}

func averageMetrics(records []Record) Metrics {
	if len(records) == 0 {
		return Metrics{}
	}
	var m Metrics
	for _, r := range records {
		m.ByteLength += r.Metrics.ByteLength
		m.LineCount += r.Metrics.LineCount
		m.ShannonEntropy += r.Metrics.ShannonEntropy
		m.StructuralComplexity += r.Metrics.StructuralComplexity
		m.CompositeScore += r.Metrics.CompositeScore
	}
	n := float64(len(records))
	return Metrics{
		ByteLength:           round2(m.ByteLength / n),
		LineCount:            round2(m.LineCount / n),
		ShannonEntropy:       round2(m.ShannonEntropy / n),
		StructuralComplexity: round2(m.StructuralComplexity / n),
		CompositeScore:       round2(m.CompositeScore / n),
	}
}
