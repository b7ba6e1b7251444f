// Package service implements the ledger operations behind the REST API:
// users, groups, expenses, settlements and balances. Every mutation of a
// group runs under that group's write lock. Zero-balance checks run inside the
// store's write transaction against the log itself, so they hold across
// server instances sharing one database.
package service

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gnan700/splitledger/internal/cache"
	"github.com/gnan700/splitledger/internal/models"
	"github.com/gnan700/splitledger/internal/storage"
)

// Services bundles the services sharing one store, cache and lock registry.
type Services struct {
	Users       *UserService
	Groups      *GroupService
	Expenses    *ExpenseService
	Settlements *SettlementService
	Balances    *BalanceService
}

// New wires all services to the given store and balance cache.
// A nil cache selects the in-process cache.
func New(store storage.Store, balances cache.BalanceCache) *Services {
	if balances == nil {
		balances = cache.NewMemory()
	}
	c := &core{
		store: store,
		cache: balances,
		locks: newGroupLocks(),
	}
	return &Services{
		Users:       &UserService{core: c},
		Groups:      &GroupService{core: c},
		Expenses:    &ExpenseService{core: c},
		Settlements: &SettlementService{core: c},
		Balances:    &BalanceService{core: c},
	}
}

// core is the state shared by all services.
type core struct {
	store storage.Store
	cache cache.BalanceCache
	locks *groupLocks

	// membership is read-locked by operations that add users to groups and
	// write-locked by user deletion, so a user's set of groups is stable while
	// it is being deleted. Always taken before any group lock.
	membership sync.RWMutex

	flight singleflight.Group
}

// invalidate drops the cached aggregate of a group. Failures are logged: the
// write has already been committed.
func (c *core) invalidate(ctx context.Context, groupID string) {
	if err := c.cache.Invalidate(ctx, groupID); err != nil {
		slog.Error("Failed to invalidate cached balances", "group_id", groupID, "error", err)
	}
}

// userNames resolves display names for ids. Unknown ids (deleted users) are
// absent from the map.
func (c *core) userNames(ctx context.Context, ids []string) (map[string]string, error) {
	users, err := c.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr("get users", "user", "", err)
	}
	names := make(map[string]string, len(users))
	for id, u := range users {
		names[id] = u.Name
	}
	return names, nil
}

// getGroup loads a group, mapping a missing row to NotFoundError.
func (c *core) getGroup(ctx context.Context, groupID string) (*models.Group, error) {
	g, err := c.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, storeErr("get group", "group", groupID, err)
	}
	return g, nil
}

// requireUsers checks that every id names an existing user.
func (c *core) requireUsers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	users, err := c.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return storeErr("get users", "user", "", err)
	}
	for _, id := range ids {
		if _, ok := users[id]; !ok {
			return &NotFoundError{Entity: "user", ID: id}
		}
	}
	return nil
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
