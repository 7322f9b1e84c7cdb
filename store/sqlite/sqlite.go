/*
Package sqlite provides a SQLite-backed history.Archive.

PURPOSE:
  Keeps every ingested event batch so the server can rebuild its in-memory
  index after a restart. The engine never reads from here directly; the
  server replays the latest batch at startup.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on batches or events
  - No DELETE statements
  - A newer batch supersedes older ones by received_at

KEY TABLES:
  batches: One row per ingestion (id, source, received_at)
  events:  Events of a batch in arrival order, stored in the feed's wire
           JSON so the archive and the feed share one encoding

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/policy-history.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  latest, err := store.Latest(ctx)
  if err == nil {
      engine.Ingest(latest.Events)
  }

SEE ALSO:
  - history/archive.go: Interface definition
  - history/store/memory.go: In-memory implementation for testing
  - feed/decode.go: Wire encoding used for stored events
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/policy-history/feed"
	"github.com/warp/policy-history/history"
)

// timeLayout is fixed-width so received_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var (
	_ history.Archive = (*Store)(nil)
	_ history.Lister  = (*Store)(nil)
)

// Store implements history.Archive using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Batches (append-only)
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		received_at TEXT NOT NULL,
		event_count INTEGER NOT NULL
	);

	-- Latest-batch lookup (hot path at startup)
	CREATE INDEX IF NOT EXISTS idx_batches_received_at
		ON batches(received_at DESC);

	-- Events in arrival order within their batch
	CREATE TABLE IF NOT EXISTS events (
		batch_id TEXT NOT NULL REFERENCES batches(id),
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		PRIMARY KEY (batch_id, seq)
	);

	-- For tracing a policy id across batches
	CREATE INDEX IF NOT EXISTS idx_events_policy
		ON events(policy_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ARCHIVE
// =============================================================================

// Append writes a batch and its events atomically.
func (s *Store) Append(ctx context.Context, batch history.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM batches WHERE id = ?`, batch.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check batch: %w", err)
	}
	if exists > 0 {
		return history.ErrDuplicateBatch
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO batches (id, source, received_at, event_count) VALUES (?, ?, ?, ?)`,
		batch.ID, batch.Source, batch.ReceivedAt.UTC().Format(timeLayout), len(batch.Events))
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (batch_id, seq, kind, policy_id, payload_json) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()

	for i, w := range feed.ToWire(batch.Events) {
		payload, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, batch.ID, i, w.Type, w.Payload.PolicyID, string(payload)); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Latest returns the most recently received batch.
func (s *Store) Latest(ctx context.Context) (history.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, received_at FROM batches ORDER BY received_at DESC, rowid DESC LIMIT 1`)
	return s.loadRow(ctx, row)
}

// Load returns the batch with the given id.
func (s *Store) Load(ctx context.Context, id string) (history.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, received_at FROM batches WHERE id = ?`, id)
	return s.loadRow(ctx, row)
}

// List returns batch headers, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]history.BatchHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, received_at, event_count FROM batches ORDER BY received_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []history.BatchHeader
	for rows.Next() {
		var r history.BatchHeader
		var receivedAt string
		if err := rows.Scan(&r.ID, &r.Source, &receivedAt, &r.EventCount); err != nil {
			return nil, err
		}
		if r.ReceivedAt, err = time.Parse(timeLayout, receivedAt); err != nil {
			return nil, fmt.Errorf("parse received_at: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) loadRow(ctx context.Context, row *sql.Row) (history.Batch, error) {
	var b history.Batch
	var receivedAt string
	if err := row.Scan(&b.ID, &b.Source, &receivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Batch{}, history.ErrBatchNotFound
		}
		return history.Batch{}, err
	}
	t, err := time.Parse(timeLayout, receivedAt)
	if err != nil {
		return history.Batch{}, fmt.Errorf("parse received_at: %w", err)
	}
	b.ReceivedAt = t

	events, err := s.loadEvents(ctx, b.ID)
	if err != nil {
		return history.Batch{}, err
	}
	b.Events = events
	return b, nil
}

func (s *Store) loadEvents(ctx context.Context, batchID string) ([]history.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload_json FROM events WHERE batch_id = ? ORDER BY seq`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wire []feed.EventJSON
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var w feed.EventJSON
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			return nil, fmt.Errorf("decode stored event: %w", err)
		}
		wire = append(wire, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return feed.FromWire(wire)
}
