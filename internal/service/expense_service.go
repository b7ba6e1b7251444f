package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gnan700/splitledger/internal/calculator"
	"github.com/gnan700/splitledger/internal/metrics"
	"github.com/gnan700/splitledger/internal/models"
)

// ExpenseService records expenses and lists a group's expense log.
type ExpenseService struct {
	*core
}

// NewExpense is a request to record an expense.
type NewExpense struct {
	Description string
	Amount      decimal.Decimal
	PaidBy      string

	// Policy decides the participants and their shares. An EqualPolicy with
	// no participants splits between all current members.
	Policy models.SplitPolicy
}

// ExpenseList is a group's expenses with the users they mention.
type ExpenseList struct {
	Expenses []*models.Expense

	// Users maps every payer and participant id to its user; deleted users are absent.
	Users map[string]*models.User
}

// Create validates and appends an expense with its allocated splits.
func (s *ExpenseService) Create(ctx context.Context, groupID string, req NewExpense) (*ExpenseList, error) {
	slog.Info("CreateExpense request received",
		"group_id", groupID,
		"amount", req.Amount.String(),
		"paid_by", req.PaidBy,
	)

	expense, err := s.create(ctx, groupID, req)
	if err != nil {
		logFailure("CreateExpense", err, "group_id", groupID)
		return nil, err
	}

	metrics.ExpensesCreated.WithLabelValues(string(expense.SplitType)).Inc()
	slog.Info("Expense created",
		"expense_id", expense.ID,
		"group_id", groupID,
		"splits", len(expense.Splits),
	)
	return s.withUsers(ctx, []*models.Expense{expense})
}

func (s *ExpenseService) create(ctx context.Context, groupID string, req NewExpense) (*models.Expense, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, invalidf("description is required")
	}
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Policy == nil {
		return nil, invalidf("split_type is required")
	}

	unlock := s.locks.lock(groupID)
	defer unlock()

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := checkMembers(group, "paid_by", req.PaidBy); err != nil {
		return nil, err
	}

	policy := req.Policy
	if eq, ok := policy.(models.EqualPolicy); ok && len(eq.Participants) == 0 {
		if len(group.Members) == 0 {
			return nil, invalidf("group %s has no members to split between", groupID)
		}
		policy = models.EqualPolicy{Participants: group.Members}
	}
	if err := checkMembers(group, "participant", policy.ParticipantIDs()...); err != nil {
		return nil, err
	}

	shares, err := calculator.Allocate(req.Amount, policy)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	expense := &models.Expense{
		GroupID:     groupID,
		Description: description,
		Amount:      req.Amount,
		PaidBy:      req.PaidBy,
		SplitType:   policy.Type(),
		Splits:      make([]models.Split, len(shares)),
	}
	for i, sh := range shares {
		expense.Splits[i] = models.Split{UserID: sh.UserID, Amount: sh.Amount, Percentage: sh.Percent}
	}

	if err := s.store.CreateExpense(ctx, expense); err != nil {
		return nil, storeErr("create expense", "group", groupID, err)
	}
	s.invalidate(ctx, groupID)
	return expense, nil
}

// List returns a group's expenses, oldest first.
func (s *ExpenseService) List(ctx context.Context, groupID string) (*ExpenseList, error) {
	unlock := s.locks.rlock(groupID)
	defer unlock()

	if _, err := s.getGroup(ctx, groupID); err != nil {
		logFailure("ListExpenses", err, "group_id", groupID)
		return nil, err
	}
	expenses, err := s.store.ListExpensesByGroup(ctx, groupID)
	if err != nil {
		slog.Error("ListExpenses failed", "group_id", groupID, "error", err)
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	return s.withUsers(ctx, expenses)
}

func (s *ExpenseService) withUsers(ctx context.Context, expenses []*models.Expense) (*ExpenseList, error) {
	var ids []string
	for _, e := range expenses {
		ids = append(ids, e.PaidBy)
		for _, sp := range e.Splits {
			ids = append(ids, sp.UserID)
		}
	}
	users, err := s.store.GetUsersByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return &ExpenseList{Expenses: expenses, Users: users}, nil
}
