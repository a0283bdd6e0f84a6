package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/sqlite"
)

// startedLayout is fixed width so that started values sort lexically.
const startedLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps run history in a single SQLite file. Each run is
// stored as its JSON document next to a few indexed columns.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the history database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			started TEXT NOT NULL,
			data TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs (started);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_action ON runs (action);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set up history database: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save inserts or replaces the run.
func (s *SQLiteStore) Save(result *RunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result %s: %w", result.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO runs (id, action, status, started, data) VALUES (?, ?, ?, ?, ?)`,
		result.ID, result.Action, string(result.Status),
		result.Started.UTC().Format(startedLayout), string(data),
	)
	if err != nil {
		return fmt.Errorf("saving result %s: %w", result.ID, err)
	}
	return nil
}

// Load returns the run with the given id.
func (s *SQLiteStore) Load(runID string) (*RunResult, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM runs WHERE id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(runID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading result %s: %w", runID, err)
	}
	return decodeRun(runID, data)
}

// List implements Lister.
func (s *SQLiteStore) List(limit int) ([]*RunResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT id, data FROM runs ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	var out []*RunResult
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("listing results: %w", err)
		}
		r, err := decodeRun(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes runs started before cutoff and reports how many went.
func (s *SQLiteStore) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM runs WHERE started < ?`, cutoff.UTC().Format(startedLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning results: %w", err)
	}
	return res.RowsAffected()
}

func decodeRun(id, data string) (*RunResult, error) {
	var r RunResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("unmarshalling result %s: %w", id, err)
	}
	return &r, nil
}
