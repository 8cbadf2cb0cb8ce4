package complexity

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteHistoryStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := NewSQLiteHistoryStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	records := []Record{
		{
			SubjectID:   "main.go",
			Timestamp:   time.Now().UTC().Truncate(time.Second),
			FactCounter: 4,
			Metrics:     Score("package main"),
			Metadata:    map[string]string{"origin": "scan"},
		},
		{
			SubjectID: "util.go",
			Timestamp: time.Now().UTC().Truncate(time.Second),
			Metrics:   Score("func helper() {}"),
		},
	}

	if err := store.Save(records); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d records, want 2", len(loaded))
	}
	if loaded[0].SubjectID != "main.go" || loaded[1].SubjectID != "util.go" {
		t.Errorf("order not preserved: %s, %s", loaded[0].SubjectID, loaded[1].SubjectID)
	}
	if loaded[0].FactCounter != 4 {
		t.Errorf("factCounter = %d, want 4", loaded[0].FactCounter)
	}
	if loaded[0].Metadata["origin"] != "scan" {
		t.Errorf("metadata lost on round trip")
	}
	if loaded[0].Metrics != records[0].Metrics {
		t.Errorf("metrics mismatch: %+v vs %+v", loaded[0].Metrics, records[0].Metrics)
	}
}

func TestSQLiteHistoryStoreSaveReplaces(t *testing.T) {
	store, err := NewSQLiteHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := store.Save([]Record{{SubjectID: "old"}}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.Save([]Record{{SubjectID: "a"}, {SubjectID: "b"}}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d records, want 2 (save replaces)", len(loaded))
	}
	if loaded[0].SubjectID != "a" {
		t.Errorf("first record = %s, want a", loaded[0].SubjectID)
	}
}
