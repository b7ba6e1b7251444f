package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gnan700/splitledger/internal/storage"
)

// Writes that reference users lock the user rows before any group row, and
// group rows are locked in ascending id order, so concurrent transactions on
// MySQL always wait in the same direction.

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// begin starts a read-write transaction with the dialect's options.
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, s.dialect.txOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// lockGroup checks that the group exists and holds its row lock until tx
// ends. Every write to a group's log or membership takes this lock first.
func (s *Store) lockGroup(ctx context.Context, tx *sql.Tx, groupID string) error {
	var exists int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM expense_groups WHERE id = ?"+s.dialect.forUpdate, groupID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock group: %w", err)
	}
	return nil
}

// lockUsers share-locks the user rows so none of them can be deleted before
// tx ends. Returns ErrNotFound for the first id that does not exist.
func (s *Store) lockUsers(ctx context.Context, tx *sql.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM users WHERE id IN ("+placeholders(len(ids))+") ORDER BY id"+s.dialect.forShare,
		stringArgs(ids)...,
	)
	if err != nil {
		return fmt.Errorf("failed to lock users: %w", err)
	}
	found, err := scanIDs(rows)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
		}
	}
	return nil
}

// requireMembers returns ErrNotMember unless every id is a current member of
// the group. The caller holds the group lock.
func requireMembers(ctx context.Context, tx *sql.Tx, groupID string, ids ...string) error {
	args := append([]any{groupID}, stringArgs(ids)...)
	rows, err := tx.QueryContext(ctx,
		"SELECT user_id FROM group_members WHERE group_id = ? AND user_id IN ("+placeholders(len(ids))+")",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to check members: %w", err)
	}
	found, err := scanIDs(rows)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("user %s in group %s: %w", id, groupID, storage.ErrNotMember)
		}
	}
	return nil
}

// runGuard reads the group's log through tx and hands it to guard.
func runGuard(ctx context.Context, tx *sql.Tx, groupID string, guard storage.LedgerGuard) error {
	if guard == nil {
		return nil
	}
	expenses, err := listExpenses(ctx, tx, groupID)
	if err != nil {
		return err
	}
	settlements, err := listSettlements(ctx, tx, groupID)
	if err != nil {
		return err
	}
	return guard(groupID, expenses, settlements)
}

func scanIDs(rows *sql.Rows) (map[string]bool, error) {
	defer rows.Close()
	found := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ids: %w", err)
	}
	return found, nil
}
