package complexity

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTrendStableOnIdenticalContent(t *testing.T) {
	tracker := NewTracker(nil, nil)

	for i := 0; i < 10; i++ {
		tracker.Record("same", "identical content every time", nil)
	}

	tr := tracker.TrendDefault()
	if tr.Direction != DirectionStable {
		t.Errorf("direction = %s, want stable", tr.Direction)
	}
	if tr.PercentChange != 0 {
		t.Errorf("percentChange = %v, want 0", tr.PercentChange)
	}
}

func TestTrendIncreasing(t *testing.T) {
	tracker := NewTracker(nil, nil)

	simple := "aaaa"
	involved := "func process(items []Item) error {\n\tfor _, it := range items {\n\t\tif err := it.Validate(); err != nil {\n\t\t\treturn err\n\t\t}\n\t}\n\treturn nil\n}"

	for i := 0; i < 5; i++ {
		tracker.Record("old", simple, nil)
	}
	for i := 0; i < 5; i++ {
		tracker.Record("new", involved, nil)
	}

	tr := tracker.TrendDefault()
	if tr.Direction != DirectionIncreasing {
		t.Errorf("direction = %s, want increasing (change %.2f%%)", tr.Direction, tr.PercentChange)
	}
	if tr.RecentAverage <= tr.OlderAverage {
		t.Errorf("recent avg %.2f should exceed older avg %.2f", tr.RecentAverage, tr.OlderAverage)
	}
}

func TestTrendInsufficientData(t *testing.T) {
	tracker := NewTracker(nil, nil)

	// Older half of a 3-record window holds a single record.
	for i := 0; i < 3; i++ {
		tracker.Record("x", "content", nil)
	}

	tr := tracker.TrendOver(3)
	if tr.Direction != DirectionStable || tr.PercentChange != 0 {
		t.Errorf("want stable/0%% with sparse history, got %s/%.2f%%", tr.Direction, tr.PercentChange)
	}
}

func TestHistoryCap(t *testing.T) {
	tracker := NewTracker(nil, nil)

	for i := 0; i < 150; i++ {
		tracker.Record(fmt.Sprintf("subject-%d", i), "content", nil)
	}

	if got := tracker.Len(); got != HistoryCap {
		t.Fatalf("history length = %d, want %d", got, HistoryCap)
	}

	// The 50 oldest entries are discarded, FIFO by insertion order.
	history := tracker.History()
	if history[0].SubjectID != "subject-50" {
		t.Errorf("oldest surviving entry = %s, want subject-50", history[0].SubjectID)
	}
	if history[len(history)-1].SubjectID != "subject-149" {
		t.Errorf("newest entry = %s, want subject-149", history[len(history)-1].SubjectID)
	}
}

func TestSummarize(t *testing.T) {
	tracker := NewTracker(nil, nil)

	for i := 0; i < 15; i++ {
		tracker.Record(fmt.Sprintf("s%d", i), "steady content", nil)
	}

	sum := tracker.Summarize(10)
	if sum.TotalCount != 15 {
		t.Errorf("totalCount = %d, want 15", sum.TotalCount)
	}
	if sum.RecentCount != 10 {
		t.Errorf("recentCount = %d, want 10", sum.RecentCount)
	}
	if len(sum.RecentEntries) != 10 {
		t.Errorf("recentEntries = %d, want 10", len(sum.RecentEntries))
	}

	// Identical content: averages equal any single measurement.
	want := Score("steady content")
	if diff := cmp.Diff(want, sum.Averages); diff != "" {
		t.Errorf("averages mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarizeTrendTracksLimit(t *testing.T) {
	tracker := NewTracker(nil, nil)

	involved := "func process(items []Item) error {\n\tfor _, it := range items {\n\t\tif err := it.Validate(); err != nil {\n\t\t\treturn err\n\t\t}\n\t}\n\treturn nil\n}"
	for i := 0; i < 5; i++ {
		tracker.Record("heavy", involved, nil)
	}
	for i := 0; i < 5; i++ {
		tracker.Record("light", "aaaa", nil)
	}

	// Full window sees heavy-then-light, so complexity falls.
	if tr := tracker.TrendDefault(); tr.Direction != DirectionDecreasing {
		t.Fatalf("default window direction = %s, want decreasing", tr.Direction)
	}

	// A 4-record summary only covers identical light entries, so its
	// trend must be flat rather than inherit the full-window slope.
	sum := tracker.Summarize(4)
	if sum.Trend.Direction != DirectionStable {
		t.Errorf("summary trend = %s, want stable", sum.Trend.Direction)
	}
	if sum.Trend.PercentChange != 0 {
		t.Errorf("summary trend change = %.2f%%, want 0", sum.Trend.PercentChange)
	}
}

func TestJSONHistoryStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store := NewJSONHistoryStore(path)

	tracker := NewTracker(store, nil)
	tracker.Record("a", "first", map[string]string{"origin": "test"})
	tracker.Record("b", "second", nil)

	reloaded := NewTracker(store, nil)
	if got := reloaded.Len(); got != 2 {
		t.Fatalf("reloaded length = %d, want 2", got)
	}
	history := reloaded.History()
	if history[0].SubjectID != "a" || history[1].SubjectID != "b" {
		t.Errorf("order not preserved: %s, %s", history[0].SubjectID, history[1].SubjectID)
	}
	if history[0].Metadata["origin"] != "test" {
		t.Errorf("metadata lost on round trip")
	}
}

func TestMissingHistoryFileStartsEmpty(t *testing.T) {
	store := NewJSONHistoryStore(filepath.Join(t.TempDir(), "absent.json"))
	tracker := NewTracker(store, nil)
	if tracker.Len() != 0 {
		t.Errorf("expected empty history, got %d", tracker.Len())
	}
}

func TestConcurrentRecordersKeepCap(t *testing.T) {
	tracker := NewTracker(nil, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				tracker.Record(fmt.Sprintf("g%d-%d", g, i), "content", nil)
			}
		}(g)
	}
	wg.Wait()

	if got := tracker.Len(); got != HistoryCap {
		t.Errorf("history length = %d, want %d", got, HistoryCap)
	}
}
