// Package models defines the core domain models for the shared-expense ledger.
//
// # Records
//
// Users and Groups are mutable reference data. Expenses (with their Splits) and
// Settlements form the ledger: they are appended once and never updated, so every
// balance can be replayed from them.
//
// # Derived data
//
// Balance is never persisted. It is computed by the calculator package as a fold
// over a group's expenses and settlements.
//
// # Money
//
// Amounts are decimal.Decimal values with at most two fractional digits. Relationships
// use ID strings instead of pointers so the models stay free of reference cycles.
package models
