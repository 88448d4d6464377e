package view

import (
	"sync"

	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
)

// Compile-time check to ensure Memory implements Store
var _ Store = (*Memory)(nil)

// Memory is the in-process materialized view. Apply is only ever called
// from the consumer loop; the lock exists for concurrent readers.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]models.ViewEntry
	capacity int
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]models.ViewEntry)}
}

func (m *Memory) Get(symbol string) (models.ViewEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[symbol]
	return entry, ok
}

// Apply folds one log record into the view. The rule is convergent: any
// replay or duplicate delivery of the same record set lands on the same
// final state.
//
//  1. Offset at or below the last applied offset: already seen, no-op.
//  2. Event time behind the current entry: late tick. Advance the offset
//     so replay stays idempotent, keep the price.
//  3. Otherwise replace price and event time together.
func (m *Memory) Apply(rec Record) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	symbol := rec.Trade.Symbol
	existing, ok := m.entries[symbol]

	if ok && rec.Offset <= existing.LastAppliedOffset {
		return DuplicateOffset
	}

	if ok && rec.Trade.EventTime < existing.EventTime {
		existing.LastAppliedOffset = rec.Offset
		m.entries[symbol] = existing
		return StaleEventTime
	}

	m.entries[symbol] = models.ViewEntry{
		Symbol:            symbol,
		Price:             rec.Trade.Price,
		EventTime:         rec.Trade.EventTime,
		LastAppliedOffset: rec.Offset,
	}
	if !ok {
		m.evictOverCapacity()
	}
	return Applied
}

func (m *Memory) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for sym := range m.entries {
		out = append(out, sym)
	}
	return out
}

// SetCapacity bounds the symbol count; entries with the oldest event time
// are evicted first. Zero keeps the view unbounded.
func (m *Memory) SetCapacity(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capacity = n
	m.evictOverCapacity()
}

// caller must hold mu
func (m *Memory) evictOverCapacity() {
	if m.capacity <= 0 {
		return
	}
	for len(m.entries) > m.capacity {
		oldest := ""
		oldestTime := int64(0)
		for sym, entry := range m.entries {
			if oldest == "" || entry.EventTime < oldestTime {
				oldest = sym
				oldestTime = entry.EventTime
			}
		}
		delete(m.entries, oldest)
	}
}
