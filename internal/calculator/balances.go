package calculator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ExpenseForBalance represents an expense with the minimal information needed for balance calculations.
type ExpenseForBalance struct {
	PayerID string
	Amount  decimal.Decimal
	Splits  []SplitForBalance
}

// SplitForBalance is one participant's allocated share of an expense.
type SplitForBalance struct {
	UserID string
	Amount decimal.Decimal
}

// SettlementForBalance represents a settlement with the minimal information needed for balance calculations.
type SettlementForBalance struct {
	FromUserID string // Who paid (debtor settling up)
	ToUserID   string // Who received (creditor being paid)
	Amount     decimal.Decimal
}

// Ledger is the fold of one group's expenses and settlements, in minor units.
// It serialises to JSON so it can be cached outside the process.
type Ledger struct {
	// Net is credits minus debits per user.
	Net map[string]int64 `json:"net"`

	// Owes is the gross pairwise flow: Owes[debtor][creditor].
	Owes map[string]map[string]int64 `json:"owes"`
}

// Flow is a netted amount between a member and one counterparty.
type Flow struct {
	UserID string
	Amount decimal.Decimal
}

// MemberBalance is the balance information for one group member.
type MemberBalance struct {
	UserID     string
	NetBalance decimal.Decimal // Positive = owed money, Negative = owes money
	OwedBy     []Flow
	OwesTo     []Flow
}

// Aggregate computes the group ledger from its full expense and settlement history.
//
// Algorithm:
//   - For each expense: payer is credited the amount, each split participant is
//     debited their share; non-payer participants owe the payer their share.
//   - For each settlement: from_user is credited, to_user is debited, and the
//     payment cancels part of from_user's debt to to_user.
//
// Runs in O(E·P + S). The result depends only on the inputs, never on order.
func Aggregate(expenses []ExpenseForBalance, settlements []SettlementForBalance) (*Ledger, error) {
	l := &Ledger{
		Net:  make(map[string]int64),
		Owes: make(map[string]map[string]int64),
	}

	for _, e := range expenses {
		amount, err := ToCents(e.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate expense: %w", err)
		}
		if err := l.addNet(e.PayerID, amount); err != nil {
			return nil, err
		}

		for _, s := range e.Splits {
			share, err := ToCents(s.Amount)
			if err != nil {
				return nil, fmt.Errorf("failed to aggregate split: %w", err)
			}
			if err := l.addNet(s.UserID, -share); err != nil {
				return nil, err
			}
			// A payer's own share nets to zero against themselves.
			if s.UserID != e.PayerID {
				if err := l.addOwes(s.UserID, e.PayerID, share); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, s := range settlements {
		amount, err := ToCents(s.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate settlement: %w", err)
		}
		if err := l.addNet(s.FromUserID, amount); err != nil {
			return nil, err
		}
		if err := l.addNet(s.ToUserID, -amount); err != nil {
			return nil, err
		}
		if err := l.addOwes(s.FromUserID, s.ToUserID, -amount); err != nil {
			return nil, err
		}
	}

	return l, nil
}

func (l *Ledger) addNet(userID string, cents int64) error {
	sum, err := addCents(l.Net[userID], cents)
	if err != nil {
		return fmt.Errorf("failed to aggregate net of %s: %w", userID, err)
	}
	l.Net[userID] = sum
	return nil
}

func (l *Ledger) addOwes(debtor, creditor string, cents int64) error {
	row, ok := l.Owes[debtor]
	if !ok {
		row = make(map[string]int64)
		l.Owes[debtor] = row
	}
	sum, err := addCents(row[creditor], cents)
	if err != nil {
		return fmt.Errorf("failed to aggregate debt of %s to %s: %w", debtor, creditor, err)
	}
	row[creditor] = sum
	return nil
}

// pairwise returns what a owes b after netting both directions. The
// difference is taken in decimal since the two flows may have opposite signs.
func (l *Ledger) pairwise(a, b string) decimal.Decimal {
	return FromCents(l.Owes[a][b]).Sub(FromCents(l.Owes[b][a]))
}

// NetOf returns the user's net balance; zero for users without activity.
func (l *Ledger) NetOf(userID string) decimal.Decimal {
	return FromCents(l.Net[userID])
}

// Total returns the sum of every net balance in the ledger. It is zero for any
// well-formed history.
func (l *Ledger) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range l.Net {
		sum = sum.Add(FromCents(v))
	}
	return sum
}

// Balances returns one record per member, in member order. Counterparties are
// sorted by amount descending, then user id ascending.
func (l *Ledger) Balances(memberIDs []string) []MemberBalance {
	out := make([]MemberBalance, 0, len(memberIDs))
	for _, m := range memberIDs {
		mb := MemberBalance{
			UserID:     m,
			NetBalance: FromCents(l.Net[m]),
			OwedBy:     []Flow{},
			OwesTo:     []Flow{},
		}

		for _, other := range l.counterparties(m) {
			switch n := l.pairwise(m, other); n.Sign() {
			case 1:
				mb.OwesTo = append(mb.OwesTo, Flow{UserID: other, Amount: n})
			case -1:
				mb.OwedBy = append(mb.OwedBy, Flow{UserID: other, Amount: n.Neg()})
			}
		}
		sortFlows(mb.OwedBy)
		sortFlows(mb.OwesTo)
		out = append(out, mb)
	}
	return out
}

// counterparties lists every user with a recorded flow to or from userID.
func (l *Ledger) counterparties(userID string) []string {
	seen := make(map[string]bool)
	for creditor := range l.Owes[userID] {
		seen[creditor] = true
	}
	for debtor, row := range l.Owes {
		if _, ok := row[userID]; ok {
			seen[debtor] = true
		}
	}
	delete(seen, userID)

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortFlows(flows []Flow) {
	sort.SliceStable(flows, func(i, j int) bool {
		if c := flows[i].Amount.Cmp(flows[j].Amount); c != 0 {
			return c > 0
		}
		return flows[i].UserID < flows[j].UserID
	})
}
