package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/i474232898/karwanua/internal/environment"
)

// SQLiteStore keeps snapshot history in a SQLite database so it survives
// restarts. Retention matches MemoryStore: count first, then age, and the
// newest snapshot per location is never dropped by age.
type SQLiteStore struct {
	db         *sql.DB
	maxHistory int
	maxAge     time.Duration
	clock      clockwork.Clock
}

// OpenSQLiteStore opens (creating if needed) the database at path.
// If maxHistory or maxAge is <= 0, that limit is treated as unlimited.
func OpenSQLiteStore(path string, maxHistory int, maxAge time.Duration, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" coherent.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			location_key TEXT NOT NULL,
			taken_at INTEGER NOT NULL,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_location ON snapshots(location_key, id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshots table: %w", err)
	}

	return &SQLiteStore{
		db:         db,
		maxHistory: maxHistory,
		maxAge:     maxAge,
		clock:      applyOptions(opts).clock,
	}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot appends a snapshot and enforces retention in one transaction.
func (s *SQLiteStore) SaveSnapshot(loc environment.Location, snapshot environment.Snapshot) error {
	key := loc.Key()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO snapshots (location_key, taken_at, payload) VALUES (?, ?, ?)`,
		key, snapshot.Timestamp.UTC().UnixNano(), string(payload),
	); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	if s.maxHistory > 0 {
		if _, err := tx.Exec(`
			DELETE FROM snapshots
			WHERE location_key = ? AND id NOT IN (
				SELECT id FROM snapshots WHERE location_key = ? ORDER BY id DESC LIMIT ?
			)`, key, key, s.maxHistory); err != nil {
			return fmt.Errorf("trimming history: %w", err)
		}
	}

	if s.maxAge > 0 {
		cutoff := s.clock.Now().Add(-s.maxAge).UTC().UnixNano()
		if _, err := tx.Exec(`
			DELETE FROM snapshots
			WHERE location_key = ? AND taken_at < ? AND id < (
				SELECT MAX(id) FROM snapshots WHERE location_key = ?
			)`, key, cutoff, key); err != nil {
			return fmt.Errorf("expiring history: %w", err)
		}
	}

	return tx.Commit()
}

// GetLatest returns the most recently saved snapshot for a location.
func (s *SQLiteStore) GetLatest(loc environment.Location) (environment.Snapshot, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM snapshots WHERE location_key = ? ORDER BY id DESC LIMIT 1`,
		loc.Key(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return environment.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return environment.Snapshot{}, fmt.Errorf("querying latest snapshot: %w", err)
	}
	return decodeSnapshot(payload)
}

// GetRange returns all snapshots for a location between from and to (inclusive).
func (s *SQLiteStore) GetRange(loc environment.Location, from, to time.Time) ([]environment.Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM snapshots
		WHERE location_key = ? AND taken_at >= ? AND taken_at <= ?
		ORDER BY id`,
		loc.Key(), from.UTC().UnixNano(), to.UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var result []environment.Snapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap, err := decodeSnapshot(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

func decodeSnapshot(payload string) (environment.Snapshot, error) {
	var snap environment.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return environment.Snapshot{}, &environment.ParseError{Raw: payload, Err: err}
	}
	return snap, nil
}
