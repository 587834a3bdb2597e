// Package store provides an in-memory trade.Store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/trade"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps saved snapshots as encoded documents, so callers can never
// alias the stored state.
type Memory struct {
	mu       sync.RWMutex
	history  [][]byte
	revision int64

	// Retain is how many snapshots are kept; zero keeps all.
	Retain int

	// FailNext makes the next Save return this error (for tests).
	FailNext error
}

func NewMemory() *Memory {
	return &Memory{Retain: trade.DefaultSnapshotRetention}
}

// Save appends a snapshot built on the latest revision.
func (m *Memory) Save(_ context.Context, snap *trade.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}
	if snap.Revision-1 != m.revision {
		return &domain.ConflictError{Parent: snap.Revision - 1, Latest: m.revision}
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	m.history = append(m.history, doc)
	m.revision = snap.Revision
	if m.Retain > 0 && len(m.history) > m.Retain {
		m.history = append([][]byte(nil), m.history[len(m.history)-m.Retain:]...)
	}
	return nil
}

// Load decodes the latest snapshot.
func (m *Memory) Load(_ context.Context) (*trade.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.history) == 0 {
		return nil, nil
	}
	var snap trade.Snapshot
	if err := json.Unmarshal(m.history[len(m.history)-1], &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Len is the number of snapshots currently retained.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

// Revision is the latest stored revision.
func (m *Memory) Revision() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revision
}
