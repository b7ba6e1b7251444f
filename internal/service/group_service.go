package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gnan700/splitledger/internal/models"
	"github.com/gnan700/splitledger/internal/storage"
)

// GroupService manages groups and their membership.
type GroupService struct {
	*core
}

// GroupDetail is a group with its member records and the sum of its expenses.
type GroupDetail struct {
	*models.Group

	// Users are the members in membership order.
	Users []*models.User

	TotalExpenses decimal.Decimal
}

// detail resolves members and totals the group's expenses.
func (s *GroupService) detail(ctx context.Context, group *models.Group) (*GroupDetail, error) {
	users, err := s.store.GetUsersByIDs(ctx, group.Members)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	d := &GroupDetail{Group: group, Users: make([]*models.User, 0, len(group.Members))}
	for _, id := range group.Members {
		if u, ok := users[id]; ok {
			d.Users = append(d.Users, u)
		}
	}

	expenses, err := s.store.ListExpensesByGroup(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	for _, e := range expenses {
		d.TotalExpenses = d.TotalExpenses.Add(e.Amount)
	}
	return d, nil
}

// Create creates a group with the given members.
func (s *GroupService) Create(ctx context.Context, name, description string, userIDs []string) (*GroupDetail, error) {
	slog.Info("CreateGroup request received",
		"name", name,
		"members_count", len(userIDs),
	)

	d, err := s.create(ctx, name, description, userIDs)
	if err != nil {
		logFailure("CreateGroup", err)
		return nil, err
	}

	slog.Info("Group created", "group_id", d.ID)
	return d, nil
}

func (s *GroupService) create(ctx context.Context, name, description string, userIDs []string) (*GroupDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidf("group name is required")
	}

	s.membership.RLock()
	defer s.membership.RUnlock()

	members := dedupe(userIDs)
	if err := s.requireUsers(ctx, members); err != nil {
		return nil, err
	}

	group := &models.Group{
		Name:        name,
		Description: strings.TrimSpace(description),
		Members:     members,
	}
	// Save to storage (generates ID and CreatedAt)
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	return s.detail(ctx, group)
}

// Get retrieves a group by ID.
func (s *GroupService) Get(ctx context.Context, groupID string) (*GroupDetail, error) {
	unlock := s.locks.rlock(groupID)
	defer unlock()

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		logFailure("GetGroup", err, "group_id", groupID)
		return nil, err
	}
	d, err := s.detail(ctx, group)
	if err != nil {
		logFailure("GetGroup", err, "group_id", groupID)
		return nil, err
	}
	return d, nil
}

// List returns a page of groups. A limit of 0 returns everything after skip.
func (s *GroupService) List(ctx context.Context, skip, limit int) ([]*GroupDetail, error) {
	if err := checkPage(skip, limit); err != nil {
		return nil, err
	}
	groups, err := s.store.ListGroups(ctx, skip, limit)
	if err != nil {
		slog.Error("ListGroups failed", "error", err)
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	details := make([]*GroupDetail, 0, len(groups))
	for _, g := range groups {
		d, err := s.detail(ctx, g)
		if err != nil {
			slog.Error("ListGroups failed", "group_id", g.ID, "error", err)
			return nil, err
		}
		details = append(details, d)
	}

	slog.Info("ListGroups successful", "count", len(details))
	return details, nil
}

// Update applies a partial update. A non-nil Members replaces the membership;
// dropping a member is refused while that member's balance is nonzero.
func (s *GroupService) Update(ctx context.Context, groupID string, upd models.GroupUpdate) (*GroupDetail, error) {
	slog.Info("UpdateGroup request received", "group_id", groupID)

	d, err := s.update(ctx, groupID, upd)
	if err != nil {
		logFailure("UpdateGroup", err, "group_id", groupID)
		return nil, err
	}

	slog.Info("Group updated", "group_id", groupID)
	return d, nil
}

func (s *GroupService) update(ctx context.Context, groupID string, upd models.GroupUpdate) (*GroupDetail, error) {
	s.membership.RLock()
	defer s.membership.RUnlock()
	unlock := s.locks.lock(groupID)
	defer unlock()

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, invalidf("group name must not be empty")
		}
		group.Name = name
	}
	if upd.Description != nil {
		group.Description = strings.TrimSpace(*upd.Description)
	}

	membershipChanged := false
	if upd.Members != nil {
		members := dedupe(*upd.Members)
		if err := s.requireUsers(ctx, members); err != nil {
			return nil, err
		}

		membershipChanged = !slices.Equal(group.Members, members)
		group.Members = members
	}

	// Everyone outside the member list being written must be settled.
	var guard storage.LedgerGuard
	if upd.Members != nil {
		guard = balanceGuard(func(id string) bool { return !slices.Contains(group.Members, id) })
	}
	if err := s.store.UpdateGroup(ctx, group, guard); err != nil {
		if blockers := blockersIn(err); len(blockers) > 0 {
			return nil, s.conflict(ctx, "member",
				"cannot remove members with outstanding balances; settle all debts first",
				blockers)
		}
		return nil, storeErr("update group", "group", groupID, err)
	}
	if membershipChanged {
		s.invalidate(ctx, groupID)
	}
	return s.detail(ctx, group)
}

// Delete removes a group and its ledger. It is refused while any member
// (current or former) has a nonzero net balance.
func (s *GroupService) Delete(ctx context.Context, groupID string) error {
	slog.Info("DeleteGroup request received", "group_id", groupID)

	if err := s.delete(ctx, groupID); err != nil {
		logFailure("DeleteGroup", err, "group_id", groupID)
		return err
	}

	slog.Info("Group deleted", "group_id", groupID)
	return nil
}

func (s *GroupService) delete(ctx context.Context, groupID string) error {
	unlock := s.locks.lock(groupID)
	defer unlock()

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return err
	}

	everyone := func(string) bool { return true }
	if err := s.store.DeleteGroup(ctx, groupID, balanceGuard(everyone)); err != nil {
		if blockers := blockersIn(err); len(blockers) > 0 {
			return s.conflict(ctx, "group",
				fmt.Sprintf("cannot delete group %s with outstanding balances; settle all debts first", group.Name),
				blockers)
		}
		return storeErr("delete group", "group", groupID, err)
	}
	s.invalidate(ctx, groupID)
	return nil
}

// AddMembers adds existing users to the group. Users already in the group are ignored.
func (s *GroupService) AddMembers(ctx context.Context, groupID string, userIDs []string) (*GroupDetail, error) {
	slog.Info("AddMembers request received",
		"group_id", groupID,
		"members_count", len(userIDs),
	)

	d, err := s.addMembers(ctx, groupID, userIDs)
	if err != nil {
		logFailure("AddMembers", err, "group_id", groupID)
		return nil, err
	}

	slog.Info("Members added", "group_id", groupID, "members_count", len(d.Members))
	return d, nil
}

func (s *GroupService) addMembers(ctx context.Context, groupID string, userIDs []string) (*GroupDetail, error) {
	if len(userIDs) == 0 {
		return nil, invalidf("user_ids must not be empty")
	}

	s.membership.RLock()
	defer s.membership.RUnlock()
	unlock := s.locks.lock(groupID)
	defer unlock()

	if _, err := s.getGroup(ctx, groupID); err != nil {
		return nil, err
	}
	ids := dedupe(userIDs)
	if err := s.requireUsers(ctx, ids); err != nil {
		return nil, err
	}

	if err := s.store.AddGroupMembers(ctx, groupID, ids); err != nil {
		return nil, storeErr("add members", "group", groupID, err)
	}
	s.invalidate(ctx, groupID)

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, group)
}

// RemoveMember drops a user from the group. It is refused while the user's
// net balance in the group is nonzero.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, userID string) error {
	slog.Info("RemoveMember request received", "group_id", groupID, "user_id", userID)

	if err := s.removeMember(ctx, groupID, userID); err != nil {
		logFailure("RemoveMember", err, "group_id", groupID, "user_id", userID)
		return err
	}

	slog.Info("Member removed", "group_id", groupID, "user_id", userID)
	return nil
}

func (s *GroupService) removeMember(ctx context.Context, groupID, userID string) error {
	unlock := s.locks.lock(groupID)
	defer unlock()

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.HasMember(userID) {
		return &NotFoundError{Entity: "member", ID: userID}
	}

	leaving := func(id string) bool { return id == userID }
	if err := s.store.RemoveGroupMember(ctx, groupID, userID, balanceGuard(leaving)); err != nil {
		if blockers := blockersIn(err); len(blockers) > 0 {
			return s.conflict(ctx, "member",
				"cannot remove user with outstanding balances; settle all debts first",
				blockers)
		}
		return storeErr("remove member", "member", userID, err)
	}
	s.invalidate(ctx, groupID)
	return nil
}
