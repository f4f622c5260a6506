package audit

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity is the number of entries the in-process recorder
// keeps before dropping the oldest.
const DefaultMemoryCapacity = 10000

// Memory keeps entries in process. It is used when no database is
// configured.
type Memory struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

var _ Recorder = (*Memory)(nil)

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Record(_ context.Context, p Params) (*Entry, error) {
	e := newEntry(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == m.capacity {
		m.entries = append(m.entries[:0], m.entries[1:]...)
	}
	m.entries = append(m.entries, e)
	return &e, nil
}

func (m *Memory) List(_ context.Context, f Filter) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0)
	skipped := 0
	for i := len(m.entries) - 1; i >= 0 && len(out) < f.limit(); i-- {
		e := m.entries[i]
		if !f.matches(e) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) Purge(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	var purged int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) && (batchSize <= 0 || purged < int64(batchSize)) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	clear(m.entries[len(kept):])
	m.entries = kept
	return purged, nil
}

func (m *Memory) Close() {}
