package complexity

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"taskhive/internal/logging"

	_ "modernc.org/sqlite"
)

// SQLiteHistoryStore persists the history in an embedded sqlite database.
// It keeps whole-document semantics: Save replaces the stored history in a
// single transaction.
type SQLiteHistoryStore struct {
	db        *sql.DB
	storePath string
}

// NewSQLiteHistoryStore opens (creating if needed) the history database.
func NewSQLiteHistoryStore(path string) (*SQLiteHistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	s := &SQLiteHistoryStore{db: db, storePath: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logging.Store("complexity history store initialized: path=%s", path)
	return s, nil
}

func (s *SQLiteHistoryStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS complexity_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id TEXT NOT NULL,
		recorded_at DATETIME NOT NULL,
		fact_counter INTEGER NOT NULL DEFAULT 0,
		metrics TEXT NOT NULL,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_history_subject ON complexity_history(subject_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads the stored history, oldest first.
func (s *SQLiteHistoryStore) Load() ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT subject_id, recorded_at, fact_counter, metrics, metadata
		FROM complexity_history ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var metricsJSON string
		var metadataJSON sql.NullString
		if err := rows.Scan(&rec.SubjectID, &rec.Timestamp, &rec.FactCounter, &metricsJSON, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &rec.Metrics); err != nil {
			return nil, fmt.Errorf("failed to parse metrics: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Save replaces the stored history with the given records.
func (s *SQLiteHistoryStore) Save(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM complexity_history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO complexity_history (subject_id, recorded_at, fact_counter, metrics, metadata)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		metricsJSON, err := json.Marshal(rec.Metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics: %w", err)
		}
		var metadataJSON []byte
		if rec.Metadata != nil {
			metadataJSON, err = json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata: %w", err)
			}
		}
		if _, err := stmt.Exec(rec.SubjectID, rec.Timestamp, rec.FactCounter, string(metricsJSON), string(metadataJSON)); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	return tx.Commit()
}

// Close closes the underlying database.
func (s *SQLiteHistoryStore) Close() error {
	return s.db.Close()
}
