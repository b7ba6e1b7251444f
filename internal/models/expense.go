package models

import "github.com/shopspring/decimal"

// SplitType names how an expense is divided between participants.
type SplitType string

const (
	SplitEqual      SplitType = "equal"
	SplitPercentage SplitType = "percentage"
)

// Valid reports whether t is a known split type.
func (t SplitType) Valid() bool {
	return t == SplitEqual || t == SplitPercentage
}

// Expense is a payment made by one group member on behalf of some participants.
// An expense and all of its splits are stored together and never modified.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the owning group.
	GroupID string

	// Description is what the money was spent on (e.g., "Dinner").
	Description string

	// Amount is the total paid. Positive, two decimal places.
	Amount decimal.Decimal

	// PaidBy is the member who paid the full amount.
	PaidBy string

	SplitType SplitType

	// Splits are the allocated shares; they sum exactly to Amount.
	Splits []Split

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64
}

// Split is one participant's share of an expense.
type Split struct {
	UserID string

	// Amount is the allocated share.
	Amount decimal.Decimal

	// Percentage is set only for percentage splits.
	Percentage *decimal.Decimal
}

// SplitPolicy is a closed set of ways to divide an expense: EqualPolicy or PercentagePolicy.
type SplitPolicy interface {
	Type() SplitType
	// ParticipantIDs lists the users taking a share, in request order.
	ParticipantIDs() []string
}

// EqualPolicy divides the amount evenly between participants.
type EqualPolicy struct {
	Participants []string
}

func (EqualPolicy) Type() SplitType { return SplitEqual }

func (p EqualPolicy) ParticipantIDs() []string { return p.Participants }

// PercentShare is one participant's percentage of an expense.
type PercentShare struct {
	UserID  string
	Percent decimal.Decimal
}

// PercentagePolicy divides the amount by explicit percentages summing to 100.
type PercentagePolicy struct {
	Shares []PercentShare
}

func (PercentagePolicy) Type() SplitType { return SplitPercentage }

func (p PercentagePolicy) ParticipantIDs() []string {
	ids := make([]string, len(p.Shares))
	for i, s := range p.Shares {
		ids[i] = s.UserID
	}
	return ids
}
