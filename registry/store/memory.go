// Package store provides an in-memory registry.Journal.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/warp/rental-engine/registry"
)

// ErrInvalidRecord is returned for records with an unknown kind.
var ErrInvalidRecord = errors.New("invalid journal record")

// =============================================================================
// MEMORY JOURNAL - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records []registry.Record
	nextSeq uint64

	failNext error
}

func NewMemory() *Memory {
	return &Memory{nextSeq: 1}
}

// Append assigns the next Seq and stores rec. Append-only.
func (m *Memory) Append(_ context.Context, rec registry.Record) (registry.Record, error) {
	if !rec.Kind.Valid() {
		return registry.Record{}, ErrInvalidRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNext; err != nil {
		m.failNext = nil
		return registry.Record{}, err
	}

	rec.Seq = m.nextSeq
	m.nextSeq++
	m.insertLocked(rec)
	return rec, nil
}

// Seed stores records with their Seq unchanged, for replay tests and imports.
func (m *Memory) Seed(recs ...registry.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		m.insertLocked(rec)
		if rec.Seq >= m.nextSeq {
			m.nextSeq = rec.Seq + 1
		}
	}
}

func (m *Memory) insertLocked(rec registry.Record) {
	// Binary search keeps records ordered by Seq even when seeded out of order.
	i := sort.Search(len(m.records), func(i int) bool {
		return m.records[i].Seq > rec.Seq
	})
	m.records = append(m.records, registry.Record{})
	copy(m.records[i+1:], m.records[i:])
	m.records[i] = rec
}

// Load returns every record in Seq order.
func (m *Memory) Load(_ context.Context) ([]registry.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]registry.Record, len(m.records))
	copy(result, m.records)
	return result, nil
}

// FailNext makes the next Append return err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
