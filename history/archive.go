/*
archive.go - Persistence interface for ingested batches

PURPOSE:
  The engine itself is in-memory only. The Archive keeps the raw batches
  that were fed to it so a restarted process can rebuild its index by
  ingesting the latest one again (see api.Handler.Replay).

APPEND-ONLY CONTRACT:
  - Append(): write a batch once
  - NO Update() or Delete() methods exist
  - A newer batch supersedes older ones; older ones stay for audit

IMPLEMENTATIONS:
  - store/memory.go: In-memory for tests and the mock environment
  - ../store/sqlite: SQLite-backed
*/
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Batch is one ingestion input as received.
type Batch struct {
	ID         string
	Source     string
	ReceivedAt time.Time
	Events     []Event
}

// NewBatch stamps events with a fresh id and the current time.
func NewBatch(source string, events []Event) Batch {
	return Batch{
		ID:         uuid.NewString(),
		Source:     source,
		ReceivedAt: time.Now().UTC(),
		Events:     events,
	}
}

// Archive stores batches. IMPORTANT: append-only.
type Archive interface {
	// Append persists a batch. Returns ErrDuplicateBatch if the id exists.
	Append(ctx context.Context, batch Batch) error

	// Latest returns the most recently received batch, or ErrBatchNotFound.
	Latest(ctx context.Context) (Batch, error)

	// Load returns the batch with the given id, or ErrBatchNotFound.
	Load(ctx context.Context, id string) (Batch, error)
}

// BatchHeader is a batch without its events.
type BatchHeader struct {
	ID         string
	Source     string
	ReceivedAt time.Time
	EventCount int
}

// Lister is implemented by archives that can enumerate their batches.
type Lister interface {
	// List returns up to limit headers, newest first.
	List(ctx context.Context, limit int) ([]BatchHeader, error)
}
