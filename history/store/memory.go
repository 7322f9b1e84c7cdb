// Package store provides Archive implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/policy-history/history"
)

// =============================================================================
// MEMORY ARCHIVE - In-memory implementation (for testing/dev)
// =============================================================================

var (
	_ history.Archive = (*Memory)(nil)
	_ history.Lister  = (*Memory)(nil)
)

type Memory struct {
	mu      sync.RWMutex
	batches []history.Batch
	ids     map[string]bool
}

func NewMemory() *Memory {
	return &Memory{ids: make(map[string]bool)}
}

// Append adds a batch. Append-only.
func (m *Memory) Append(_ context.Context, batch history.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ids[batch.ID] {
		return history.ErrDuplicateBatch
	}

	// Keep batches ordered by ReceivedAt; ties keep append order.
	i := sort.Search(len(m.batches), func(i int) bool {
		return m.batches[i].ReceivedAt.After(batch.ReceivedAt)
	})
	batch.Events = append([]history.Event(nil), batch.Events...)
	m.batches = append(m.batches, history.Batch{})
	copy(m.batches[i+1:], m.batches[i:])
	m.batches[i] = batch
	m.ids[batch.ID] = true
	return nil
}

func (m *Memory) Latest(_ context.Context) (history.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.batches) == 0 {
		return history.Batch{}, history.ErrBatchNotFound
	}
	return cloneBatch(m.batches[len(m.batches)-1]), nil
}

func (m *Memory) Load(_ context.Context, id string) (history.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.batches {
		if b.ID == id {
			return cloneBatch(b), nil
		}
	}
	return history.Batch{}, history.ErrBatchNotFound
}

// List returns up to limit batch headers, newest first.
func (m *Memory) List(_ context.Context, limit int) ([]history.BatchHeader, error) {
	if limit <= 0 {
		return []history.BatchHeader{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	headers := make([]history.BatchHeader, 0, min(limit, len(m.batches)))
	for i := len(m.batches) - 1; i >= 0 && len(headers) < limit; i-- {
		b := m.batches[i]
		headers = append(headers, history.BatchHeader{
			ID:         b.ID,
			Source:     b.Source,
			ReceivedAt: b.ReceivedAt,
			EventCount: len(b.Events),
		})
	}
	return headers, nil
}

// Len returns the number of archived batches.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.batches)
}

func cloneBatch(b history.Batch) history.Batch {
	b.Events = append([]history.Event(nil), b.Events...)
	return b
}
