package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gnan700/splitledger/internal/calculator"
	"github.com/gnan700/splitledger/internal/metrics"
	"github.com/gnan700/splitledger/internal/models"
	"github.com/gnan700/splitledger/internal/storage"
)

// ledger returns the group's balance aggregate, from the cache when possible.
// The caller must hold the group's lock (read or write).
func (c *core) ledger(ctx context.Context, groupID string) (*calculator.Ledger, error) {
	l, gen, ok := c.cache.Get(ctx, groupID)
	if ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return l, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	v, err, _ := c.flight.Do(groupID, func() (any, error) {
		// Shared by every caller in the flight, so no single caller's
		// cancellation may abort it.
		ctx := context.WithoutCancel(ctx)
		l, err := c.aggregate(ctx, groupID)
		if err != nil {
			return nil, err
		}
		c.cache.Set(ctx, groupID, gen, l)
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*calculator.Ledger), nil
}

// aggregate folds the group's full expense and settlement log.
func (c *core) aggregate(ctx context.Context, groupID string) (*calculator.Ledger, error) {
	expenses, err := c.store.ListExpensesByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	settlements, err := c.store.ListSettlementsByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settlements: %w", err)
	}

	l, err := calculator.Aggregate(ExpensesForBalance(expenses), SettlementsForBalance(settlements))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate group %s: %w", groupID, err)
	}
	return l, nil
}

// ExpensesForBalance converts stored expenses to calculator input.
func ExpensesForBalance(expenses []*models.Expense) []calculator.ExpenseForBalance {
	out := make([]calculator.ExpenseForBalance, len(expenses))
	for i, e := range expenses {
		splits := make([]calculator.SplitForBalance, len(e.Splits))
		for j, s := range e.Splits {
			splits[j] = calculator.SplitForBalance{UserID: s.UserID, Amount: s.Amount}
		}
		out[i] = calculator.ExpenseForBalance{PayerID: e.PaidBy, Amount: e.Amount, Splits: splits}
	}
	return out
}

// SettlementsForBalance converts stored settlements to calculator input.
func SettlementsForBalance(settlements []*models.Settlement) []calculator.SettlementForBalance {
	out := make([]calculator.SettlementForBalance, len(settlements))
	for i, s := range settlements {
		out[i] = calculator.SettlementForBalance{FromUserID: s.FromUserID, ToUserID: s.ToUserID, Amount: s.Amount}
	}
	return out
}

// blockedError aborts a guarded write and carries the balances that caused it.
type blockedError struct {
	blockers []Blocker
}

func (e *blockedError) Error() string {
	return fmt.Sprintf("%d outstanding balances", len(e.blockers))
}

// balanceGuard refuses a write while any user selected by held has a nonzero
// net balance in the group. It runs on the log read inside the write's
// transaction, so it sees appends made by every server instance.
func balanceGuard(held func(userID string) bool) storage.LedgerGuard {
	return func(groupID string, expenses []*models.Expense, settlements []*models.Settlement) error {
		l, err := calculator.Aggregate(ExpensesForBalance(expenses), SettlementsForBalance(settlements))
		if err != nil {
			return fmt.Errorf("failed to aggregate group %s: %w", groupID, err)
		}

		ids := make([]string, 0, len(l.Net))
		for id := range l.Net {
			if held(id) {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)

		var blockers []Blocker
		for _, id := range ids {
			if net := l.NetOf(id); !net.IsZero() {
				blockers = append(blockers, Blocker{GroupID: groupID, UserID: id, Amount: net})
			}
		}
		if len(blockers) > 0 {
			return &blockedError{blockers: blockers}
		}
		return nil
	}
}

// blockersIn collects the blockers of every blockedError in err's tree.
func blockersIn(err error) []Blocker {
	switch e := err.(type) {
	case *blockedError:
		return e.blockers
	case interface{ Unwrap() []error }:
		var out []Blocker
		for _, inner := range e.Unwrap() {
			out = append(out, blockersIn(inner)...)
		}
		return out
	case interface{ Unwrap() error }:
		return blockersIn(e.Unwrap())
	}
	return nil
}

// conflict builds a ConflictError with user and group names filled in.
func (c *core) conflict(ctx context.Context, kind, message string, blockers []Blocker) error {
	metrics.DeletionsBlocked.WithLabelValues(kind).Inc()

	ids := make([]string, len(blockers))
	for i, b := range blockers {
		ids[i] = b.UserID
	}
	if names, err := c.userNames(ctx, ids); err == nil {
		for i := range blockers {
			blockers[i].UserName = names[blockers[i].UserID]
		}
	}

	groupNames := make(map[string]string)
	for i, b := range blockers {
		name, ok := groupNames[b.GroupID]
		if !ok {
			if g, err := c.store.GetGroup(ctx, b.GroupID); err == nil {
				name = g.Name
			}
			groupNames[b.GroupID] = name
		}
		blockers[i].GroupName = name
	}
	return &ConflictError{Message: message, Blockers: blockers}
}

// checkMembers rejects the request unless every id is a current member.
func checkMembers(group *models.Group, role string, ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return invalidf("%s is required", role)
		}
		if !group.HasMember(id) {
			return invalidf("%s %s is not a member of group %s", role, id, group.ID)
		}
	}
	return nil
}

// checkAmount rejects non-positive amounts and sub-cent precision.
func checkAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return invalidf("amount must be greater than zero")
	}
	if _, err := calculator.ToCents(amount); err != nil {
		return invalidf("%v", err)
	}
	return nil
}
