package client

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// SeedResult lists what Seed created.
type SeedResult struct {
	Users    []*User
	Groups   []*Group
	Expenses int
}

var (
	sampleUsers = []struct{ name, email string }{
		{"Alice Johnson", "alice@example.com"},
		{"Bob Smith", "bob@example.com"},
		{"Charlie Brown", "charlie@example.com"},
		{"Diana Prince", "diana@example.com"},
		{"Eve Wilson", "eve@example.com"},
	}

	// sampleGroups reference sampleUsers by index.
	sampleGroups = []struct {
		name, description string
		members           []int
	}{
		{"Weekend Trip", "Our amazing weekend getaway", []int{0, 1, 2}},
		{"Office Lunch", "Team lunch expenses", []int{1, 2, 3}},
		{"Movie Night", "Friends movie night", []int{0, 2, 4}},
	}
)

// sampleExpense references payer and participants by index into the
// group's members.
type sampleExpense struct {
	description string
	amount      string
	payer       int
	percents    []string // nil for an equal split between all members
}

// sampleExpenses are keyed by index into sampleGroups.
var sampleExpenses = [][]sampleExpense{
	{
		{"Hotel accommodation", "300.00", 0, nil},
		{"Gas for the trip", "80.00", 1, nil},
		{"Dinner at fancy restaurant", "150.00", 2, []string{"40", "35", "25"}},
	},
	{
		{"Pizza lunch", "45.50", 0, nil},
		{"Coffee and snacks", "22.75", 2, nil},
	},
	{
		{"Movie tickets", "36.00", 1, nil},
		{"Popcorn and drinks", "24.99", 2, []string{"33.33", "33.33", "33.34"}},
	},
}

// Seed creates sample users, groups and expenses, printing progress to w.
func Seed(ctx context.Context, c *HTTP, w io.Writer) (*SeedResult, error) {
	res := &SeedResult{}

	for _, u := range sampleUsers {
		user, err := c.CreateUser(ctx, u.name, u.email)
		if err != nil {
			return res, fmt.Errorf("failed to create user %s: %w", u.name, err)
		}
		fmt.Fprintf(w, "created user %s (%s)\n", user.Name, user.ID)
		res.Users = append(res.Users, user)
	}

	for i, g := range sampleGroups {
		ids := make([]string, len(g.members))
		for j, m := range g.members {
			ids[j] = res.Users[m].ID
		}
		group, err := c.CreateGroup(ctx, g.name, g.description, ids)
		if err != nil {
			return res, fmt.Errorf("failed to create group %s: %w", g.name, err)
		}
		fmt.Fprintf(w, "created group %s (%s)\n", group.Name, group.ID)
		res.Groups = append(res.Groups, group)

		for _, e := range sampleExpenses[i] {
			req := Expense{
				Description: e.description,
				Amount:      decimal.RequireFromString(e.amount),
				PaidBy:      ids[e.payer],
				SplitType:   "equal",
			}
			if e.percents != nil {
				req.SplitType = "percentage"
				for j, p := range e.percents {
					pct := decimal.RequireFromString(p)
					req.Splits = append(req.Splits, Split{UserID: ids[j], Percentage: &pct})
				}
			}
			if _, err := c.CreateExpense(ctx, group.ID, req); err != nil {
				return res, fmt.Errorf("failed to create expense %s: %w", e.description, err)
			}
			fmt.Fprintf(w, "  added expense %s (%s)\n", e.description, e.amount)
			res.Expenses++
		}
	}
	return res, nil
}
