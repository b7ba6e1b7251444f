// Package audit periodically re-derives every group's balances from the raw
// ledger and reports records that break the ledger's invariants.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gnan700/splitledger/internal/calculator"
	"github.com/gnan700/splitledger/internal/metrics"
	"github.com/gnan700/splitledger/internal/service"
	"github.com/gnan700/splitledger/internal/storage"
)

// Finding is one invariant violation.
type Finding struct {
	GroupID   string
	ExpenseID string // empty for group-level findings
	Problem   string
}

// Report summarises one audit run.
type Report struct {
	Groups   int
	Expenses int
	Findings []Finding
}

// Imbalanced returns the number of distinct groups with findings.
func (r *Report) Imbalanced() int {
	seen := make(map[string]bool)
	for _, f := range r.Findings {
		seen[f.GroupID] = true
	}
	return len(seen)
}

// Auditor checks the ledger held by a store.
type Auditor struct {
	store   storage.Store
	timeout time.Duration
}

// New creates an Auditor. Scheduled runs are bounded by timeout.
func New(store storage.Store, timeout time.Duration) *Auditor {
	return &Auditor{store: store, timeout: timeout}
}

// Run audits every group: each expense's splits must sum exactly to its
// amount, and the group's net balances must sum to zero. The ledger is
// append-only and every record balances on its own, so no locks are needed.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	groups, err := a.store.ListGroups(ctx, 0, 0)
	if err != nil {
		metrics.AuditRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	report := &Report{Groups: len(groups)}
	for _, g := range groups {
		if err := a.auditGroup(ctx, g.ID, report); err != nil {
			metrics.AuditRuns.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	for _, f := range report.Findings {
		slog.Error("Ledger audit finding",
			"group_id", f.GroupID,
			"expense_id", f.ExpenseID,
			"problem", f.Problem,
		)
	}
	metrics.AuditImbalancedGroups.Set(float64(report.Imbalanced()))
	metrics.AuditRuns.WithLabelValues("ok").Inc()
	slog.Info("Ledger audit completed",
		"groups", report.Groups,
		"expenses", report.Expenses,
		"findings", len(report.Findings),
	)
	return report, nil
}

func (a *Auditor) auditGroup(ctx context.Context, groupID string, report *Report) error {
	expenses, err := a.store.ListExpensesByGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to list expenses of group %s: %w", groupID, err)
	}
	settlements, err := a.store.ListSettlementsByGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to list settlements of group %s: %w", groupID, err)
	}
	report.Expenses += len(expenses)

	for _, e := range expenses {
		if len(e.Splits) == 0 {
			report.Findings = append(report.Findings, Finding{GroupID: groupID, ExpenseID: e.ID, Problem: "expense has no splits"})
			continue
		}
		sum := e.Splits[0].Amount
		for _, s := range e.Splits[1:] {
			sum = sum.Add(s.Amount)
		}
		if !sum.Equal(e.Amount) {
			report.Findings = append(report.Findings, Finding{
				GroupID:   groupID,
				ExpenseID: e.ID,
				Problem:   fmt.Sprintf("splits sum to %s, expense amount is %s", sum.StringFixed(2), e.Amount.StringFixed(2)),
			})
		}
	}

	l, err := calculator.Aggregate(service.ExpensesForBalance(expenses), service.SettlementsForBalance(settlements))
	if err != nil {
		report.Findings = append(report.Findings, Finding{GroupID: groupID, Problem: err.Error()})
		return nil
	}
	if total := l.Total(); !total.IsZero() {
		report.Findings = append(report.Findings, Finding{
			GroupID: groupID,
			Problem: fmt.Sprintf("net balances sum to %s", total.StringFixed(2)),
		})
	}
	return nil
}

// Start schedules Run on a cron spec (standard 5-field or descriptors such as
// "@every 1h") and starts the scheduler. Stop the returned Cron on shutdown.
func (a *Auditor) Start(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if _, err := a.Run(ctx); err != nil {
			slog.Error("Ledger audit failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule ledger audit %q: %w", spec, err)
	}

	c.Start()
	slog.Info("Ledger audit scheduled", "schedule", spec)
	return c, nil
}
