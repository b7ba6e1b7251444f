package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gnan700/splitledger/internal/models"
)

// nextSeq returns the next per-group sequence number for table. Called inside
// the appending transaction, so the group's log order is total.
func nextSeq(ctx context.Context, tx *sql.Tx, table, groupID string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM "+table+" WHERE group_id = ?", groupID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get next %s sequence: %w", table, err)
	}
	return seq, nil
}

// CreateExpense persists an expense and all of its splits atomically.
func (s *Store) CreateExpense(ctx context.Context, expense *models.Expense) error {
	// Generate ID if not set
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.lockGroup(ctx, tx, expense.GroupID); err != nil {
		return err
	}
	participants := []string{expense.PaidBy}
	for _, split := range expense.Splits {
		participants = append(participants, split.UserID)
	}
	if err := requireMembers(ctx, tx, expense.GroupID, participants...); err != nil {
		return err
	}
	seq, err := nextSeq(ctx, tx, "expenses", expense.GroupID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, description, amount, paid_by, split_type, created_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.Description, expense.Amount,
		expense.PaidBy, string(expense.SplitType), expense.CreatedAt, seq,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	for i, split := range expense.Splits {
		pct := decimal.NullDecimal{}
		if split.Percentage != nil {
			pct = decimal.NewNullDecimal(*split.Percentage)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO expense_splits (expense_id, user_id, position, amount, percentage) VALUES (?, ?, ?, ?, ?)",
			expense.ID, split.UserID, i, split.Amount, pct,
		)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListExpensesByGroup retrieves every expense of a group with its splits, oldest first.
func (s *Store) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	return listExpenses(ctx, s.db, groupID)
}

func listExpenses(ctx context.Context, q querier, groupID string) ([]*models.Expense, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, group_id, description, amount, paid_by, split_type, created_at
		 FROM expenses WHERE group_id = ? ORDER BY seq`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses by group: %w", err)
	}

	expenses := []*models.Expense{}
	byID := make(map[string]*models.Expense)
	for rows.Next() {
		e := &models.Expense{}
		var splitType string
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Description, &e.Amount, &e.PaidBy, &splitType, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.SplitType = models.SplitType(splitType)
		e.Splits = []models.Split{}
		expenses = append(expenses, e)
		byID[e.ID] = e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	if len(expenses) == 0 {
		return expenses, nil
	}

	splitRows, err := q.QueryContext(ctx,
		`SELECT sp.expense_id, sp.user_id, sp.amount, sp.percentage
		 FROM expense_splits sp JOIN expenses e ON e.id = sp.expense_id
		 WHERE e.group_id = ? ORDER BY sp.expense_id, sp.position`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get splits: %w", err)
	}
	defer splitRows.Close()

	for splitRows.Next() {
		var expenseID string
		var split models.Split
		var pct decimal.NullDecimal
		if err := splitRows.Scan(&expenseID, &split.UserID, &split.Amount, &pct); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		if pct.Valid {
			p := pct.Decimal
			split.Percentage = &p
		}
		if e, ok := byID[expenseID]; ok {
			e.Splits = append(e.Splits, split)
		}
	}
	if err := splitRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate splits: %w", err)
	}

	return expenses, nil
}
