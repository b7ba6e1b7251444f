package service

import (
	"slices"
	"sync"
)

// groupLocks hands out one RWMutex per group. Within a process, mutations of
// a group hold the write lock until the cache is invalidated and balance reads
// hold the read lock. Between processes, writes are ordered by the store's
// transactional group lock instead. Entries are never removed.
type groupLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newGroupLocks() *groupLocks {
	return &groupLocks{locks: make(map[string]*sync.RWMutex)}
}

func (g *groupLocks) get(groupID string) *sync.RWMutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[groupID]
	if !ok {
		l = &sync.RWMutex{}
		g.locks[groupID] = l
	}
	return l
}

// lock write-locks one group and returns its unlock function.
func (g *groupLocks) lock(groupID string) func() {
	l := g.get(groupID)
	l.Lock()
	return l.Unlock
}

// rlock read-locks one group and returns its unlock function.
func (g *groupLocks) rlock(groupID string) func() {
	l := g.get(groupID)
	l.RLock()
	return l.RUnlock
}

// lockAll write-locks every group in ascending id order, so two callers
// locking overlapping sets cannot deadlock.
func (g *groupLocks) lockAll(groupIDs []string) func() {
	ids := slices.Clone(groupIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]*sync.RWMutex, 0, len(ids))
	for _, id := range ids {
		l := g.get(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
