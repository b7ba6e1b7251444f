// Package cache memoizes per-group balance aggregates.
//
// Entries hold only user ids and minor-unit amounts, so renames never make an
// entry stale. Any append to a group's ledger, and any membership change, must
// be followed by Invalidate for that group.
package cache

import (
	"context"
	"sync"

	"github.com/gnan700/splitledger/internal/calculator"
	"github.com/gnan700/splitledger/internal/metrics"
)

// BalanceCache stores one aggregate per group.
//
// Every group has a generation that Invalidate advances. A reader that missed
// passes the generation it saw to Set, and Set discards the aggregate if the
// group was invalidated in between, so an aggregate computed before a write
// can never replace the invalidation that write caused.
type BalanceCache interface {
	// Get returns the cached aggregate and true on a hit. On a miss it
	// returns the group's current generation.
	Get(ctx context.Context, groupID string) (*calculator.Ledger, uint64, bool)

	// Set stores the aggregate unless the group's generation has moved past gen.
	Set(ctx context.Context, groupID string, gen uint64, ledger *calculator.Ledger)

	// Invalidate drops the entry for groupID and advances its generation.
	Invalidate(ctx context.Context, groupID string) error
}

// Memory is an in-process BalanceCache. The zero value is not usable; call NewMemory.
type Memory struct {
	mu          sync.RWMutex
	entries     map[string]*calculator.Ledger
	generations map[string]uint64
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[string]*calculator.Ledger),
		generations: make(map[string]uint64),
	}
}

func (m *Memory) Get(_ context.Context, groupID string) (*calculator.Ledger, uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.entries[groupID]
	return l, m.generations[groupID], ok
}

func (m *Memory) Set(_ context.Context, groupID string, gen uint64, ledger *calculator.Ledger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[groupID] != gen {
		metrics.CacheStaleWrites.Inc()
		return
	}
	m.entries[groupID] = ledger
}

func (m *Memory) Invalidate(_ context.Context, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, groupID)
	m.generations[groupID]++
	return nil
}

// Len returns the number of cached groups.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
