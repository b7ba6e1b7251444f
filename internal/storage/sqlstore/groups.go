package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gnan700/splitledger/internal/models"
	"github.com/gnan700/splitledger/internal/storage"
)

// CreateGroup persists a new group and its members.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	// Generate ID if not set
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.lockUsers(ctx, tx, group.Members); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO expense_groups (id, name, description, created_at) VALUES (?, ?, ?, ?)",
		group.ID, group.Name, group.Description, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	if err := insertMembers(ctx, tx, group.ID, group.Members, 0); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertMembers(ctx context.Context, tx *sql.Tx, groupID string, userIDs []string, firstPosition int) error {
	for i, userID := range userIDs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO group_members (group_id, user_id, position) VALUES (?, ?, ?)",
			groupID, userID, firstPosition+i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert member %s: %w", userID, err)
		}
	}
	return nil
}

// GetGroup retrieves a group by ID, including its members in insertion order.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, created_at FROM expense_groups WHERE id = ?",
		groupID,
	).Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	members, err := s.membersOf(ctx, []string{groupID})
	if err != nil {
		return nil, err
	}
	group.Members = members[groupID]
	if group.Members == nil {
		group.Members = []string{}
	}
	return group, nil
}

// ListGroups returns groups ordered by creation time, each with its members.
func (s *Store) ListGroups(ctx context.Context, offset, limit int) ([]*models.Group, error) {
	page, args := pageClause(offset, limit)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, created_at FROM expense_groups ORDER BY created_at, id"+page,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	groups := []*models.Group{}
	for rows.Next() {
		g := &models.Group{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	members, err := s.membersOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		g.Members = members[g.ID]
		if g.Members == nil {
			g.Members = []string{}
		}
	}
	return groups, nil
}

// membersOf loads members for the given groups, keyed by group ID.
func (s *Store) membersOf(ctx context.Context, groupIDs []string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT group_id, user_id FROM group_members WHERE group_id IN ("+placeholders(len(groupIDs))+") ORDER BY group_id, position",
		stringArgs(groupIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	members := make(map[string][]string, len(groupIDs))
	for rows.Next() {
		var groupID, userID string
		if err := rows.Scan(&groupID, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members[groupID] = append(members[groupID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// UpdateGroup overwrites name, description and membership in one transaction.
func (s *Store) UpdateGroup(ctx context.Context, group *models.Group, guard storage.LedgerGuard) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.lockUsers(ctx, tx, group.Members); err != nil {
		return err
	}
	if err := s.lockGroup(ctx, tx, group.ID); err != nil {
		return err
	}
	if err := runGuard(ctx, tx, group.ID, guard); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE expense_groups SET name = ?, description = ? WHERE id = ?",
		group.Name, group.Description, group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = ?", group.ID); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}
	if err := insertMembers(ctx, tx, group.ID, group.Members, 0); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteGroup removes a group and its whole ledger. Records are deleted
// explicitly in dependency order so the result does not rely on cascades.
func (s *Store) DeleteGroup(ctx context.Context, groupID string, guard storage.LedgerGuard) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.lockGroup(ctx, tx, groupID); err != nil {
		return err
	}
	if err := runGuard(ctx, tx, groupID, guard); err != nil {
		return err
	}

	stmts := []struct {
		what  string
		query string
	}{
		{"splits", "DELETE FROM expense_splits WHERE expense_id IN (SELECT id FROM expenses WHERE group_id = ?)"},
		{"expenses", "DELETE FROM expenses WHERE group_id = ?"},
		{"settlements", "DELETE FROM settlements WHERE group_id = ?"},
		{"members", "DELETE FROM group_members WHERE group_id = ?"},
		{"group", "DELETE FROM expense_groups WHERE id = ?"},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, groupID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", st.what, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddGroupMembers appends users to the group, skipping existing members.
func (s *Store) AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.lockUsers(ctx, tx, userIDs); err != nil {
		return err
	}
	if err := s.lockGroup(ctx, tx, groupID); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, "SELECT user_id, position FROM group_members WHERE group_id = ?", groupID)
	if err != nil {
		return fmt.Errorf("failed to get members: %w", err)
	}
	existing := make(map[string]bool)
	next := 0
	for rows.Next() {
		var userID string
		var pos int
		if err := rows.Scan(&userID, &pos); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan member: %w", err)
		}
		existing[userID] = true
		if pos >= next {
			next = pos + 1
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate members: %w", err)
	}

	var fresh []string
	for _, id := range userIDs {
		if !existing[id] {
			existing[id] = true
			fresh = append(fresh, id)
		}
	}
	if err := insertMembers(ctx, tx, groupID, fresh, next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RemoveGroupMember drops one member from a group once guard accepts its log.
func (s *Store) RemoveGroupMember(ctx context.Context, groupID, userID string, guard storage.LedgerGuard) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.lockGroup(ctx, tx, groupID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_id = ? AND user_id = ?", groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("member %s of group %s: %w", userID, groupID, storage.ErrNotFound)
	}
	if err := runGuard(ctx, tx, groupID, guard); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
