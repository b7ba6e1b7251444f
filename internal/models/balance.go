package models

import "github.com/shopspring/decimal"

// Counterparty is one entry of a balance decomposition.
type Counterparty struct {
	UserID   string
	UserName string
	Amount   decimal.Decimal
}

// Balance is a member's derived position within one group.
// Positive NetBalance means the member is owed money, negative means they owe.
type Balance struct {
	UserID     string
	UserName   string
	GroupID    string
	GroupName  string
	NetBalance decimal.Decimal

	// OwedBy lists members who owe this user.
	OwedBy []Counterparty

	// OwesTo lists members this user owes.
	OwesTo []Counterparty
}
