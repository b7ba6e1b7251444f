package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gnan700/splitledger/internal/calculator"
	"github.com/gnan700/splitledger/internal/models"
)

// BalanceService derives balances from the expense and settlement log.
type BalanceService struct {
	*core
}

// Group returns one balance record per current member of the group.
func (s *BalanceService) Group(ctx context.Context, groupID string) ([]models.Balance, error) {
	balances, err := s.group(ctx, groupID)
	if err != nil {
		logFailure("GroupBalances", err, "group_id", groupID)
		return nil, err
	}
	slog.Debug("GroupBalances successful", "group_id", groupID, "members", len(balances))
	return balances, nil
}

func (s *BalanceService) group(ctx context.Context, groupID string) ([]models.Balance, error) {
	unlock := s.locks.rlock(groupID)
	defer unlock()

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	l, err := s.ledger(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return s.named(ctx, group, l.Balances(group.Members))
}

// User returns the user's balance record in every group they belong to,
// one row per group.
func (s *BalanceService) User(ctx context.Context, userID string) ([]models.Balance, error) {
	balances, err := s.user(ctx, userID)
	if err != nil {
		logFailure("UserBalances", err, "user_id", userID)
		return nil, err
	}
	slog.Debug("UserBalances successful", "user_id", userID, "groups", len(balances))
	return balances, nil
}

func (s *BalanceService) user(ctx context.Context, userID string) ([]models.Balance, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, storeErr("get user", "user", userID, err)
	}
	groupIDs, err := s.store.ListGroupIDsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user groups: %w", err)
	}

	balances := []models.Balance{}
	for _, groupID := range groupIDs {
		b, err := s.userInGroup(ctx, userID, groupID)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b...)
	}
	return balances, nil
}

func (s *BalanceService) userInGroup(ctx context.Context, userID, groupID string) ([]models.Balance, error) {
	unlock := s.locks.rlock(groupID)
	defer unlock()

	group, err := s.getGroup(ctx, groupID)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// The user may have left, or the group been deleted, between listing and locking.
	if !group.HasMember(userID) {
		return nil, nil
	}
	l, err := s.ledger(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return s.named(ctx, group, l.Balances([]string{userID}))
}

// named joins user names onto calculator output. Names are resolved at read
// time, so renames never need a cache invalidation. Former members who no
// longer exist are shown by id.
func (s *BalanceService) named(ctx context.Context, group *models.Group, members []calculator.MemberBalance) ([]models.Balance, error) {
	var ids []string
	for _, m := range members {
		ids = append(ids, m.UserID)
		for _, f := range m.OwedBy {
			ids = append(ids, f.UserID)
		}
		for _, f := range m.OwesTo {
			ids = append(ids, f.UserID)
		}
	}
	names, err := s.userNames(ctx, dedupe(ids))
	if err != nil {
		return nil, err
	}
	name := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}
	counterparties := func(flows []calculator.Flow) []models.Counterparty {
		out := make([]models.Counterparty, len(flows))
		for i, f := range flows {
			out[i] = models.Counterparty{UserID: f.UserID, UserName: name(f.UserID), Amount: f.Amount}
		}
		return out
	}

	out := make([]models.Balance, len(members))
	for i, m := range members {
		out[i] = models.Balance{
			UserID:     m.UserID,
			UserName:   name(m.UserID),
			GroupID:    group.ID,
			GroupName:  group.Name,
			NetBalance: m.NetBalance,
			OwedBy:     counterparties(m.OwedBy),
			OwesTo:     counterparties(m.OwesTo),
		}
	}
	return out, nil
}
