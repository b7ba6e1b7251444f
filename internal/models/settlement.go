package models

import "github.com/shopspring/decimal"

// DefaultSettlementDescription is used when a settlement is recorded without a note.
const DefaultSettlementDescription = "Settlement"

// Settlement represents a recorded payment between group members to clear debts.
// It is bookkeeping only and never moves money. Settlements are immutable.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	// GroupID is the group this settlement belongs to.
	GroupID string

	// FromUserID is the user who paid (debtor settling up).
	FromUserID string

	// ToUserID is the user who received payment (creditor being paid).
	ToUserID string

	// Amount is the payment amount. Always positive.
	Amount decimal.Decimal

	// Description is a short note, "Settlement" by default.
	Description string

	// CreatedAt is the Unix timestamp when the settlement was recorded.
	CreatedAt int64
}
