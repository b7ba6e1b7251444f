// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/gnan700/splitledger/internal/models"
)

var (
	// ErrNotFound is returned when a user, group or ledger record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique field (email) is already taken.
	ErrDuplicate = errors.New("already exists")

	// ErrNotMember is returned when a ledger record names a user who is not a
	// member of the group at commit time.
	ErrNotMember = errors.New("not a member of the group")
)

// LedgerGuard inspects a group's complete log inside the transaction that is
// about to change the group, after the group is locked against concurrent
// appends. A non-nil error aborts the write and is returned to the caller
// (joined with the errors of other groups for DeleteUser). A nil guard passes.
type LedgerGuard func(groupID string, expenses []*models.Expense, settlements []*models.Settlement) error

// Store defines the Ledger Store: users, groups and the append-only log of
// expenses and settlements. Implementations must make every write atomic.
// This abstraction allows swapping storage backends (SQLite, MySQL, etc.)
// without changing the service layer.
type Store interface {
	UserStore
	GroupStore
	LedgerStore

	// Close releases any resources held by the store.
	Close() error
}

// UserStore persists users.
type UserStore interface {
	// CreateUser persists a new user. The ID and CreatedAt fields are populated
	// by the store when empty. Returns ErrDuplicate if the email is taken.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUser retrieves a user by ID. Returns ErrNotFound if missing.
	GetUser(ctx context.Context, userID string) (*models.User, error)

	// GetUsersByIDs returns a map of user ID to user. Unknown IDs are omitted.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)

	// ListUsers returns users ordered by creation. A limit <= 0 means no limit.
	ListUsers(ctx context.Context, offset, limit int) ([]*models.User, error)

	// UpdateUser overwrites name and email. Returns ErrNotFound or ErrDuplicate.
	UpdateUser(ctx context.Context, user *models.User) error

	// DeleteUser removes the user and its group memberships. Ledger records
	// that mention the user are kept. guard runs once per group the user
	// belongs to; groups deleted concurrently are skipped.
	DeleteUser(ctx context.Context, userID string, guard LedgerGuard) error

	// ListGroupIDsByUser returns the IDs of every group the user belongs to.
	ListGroupIDsByUser(ctx context.Context, userID string) ([]string, error)
}

// GroupStore persists groups and their membership.
type GroupStore interface {
	// CreateGroup persists a new group with its members.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group with members in insertion order.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroups returns groups ordered by creation. A limit <= 0 means no limit.
	ListGroups(ctx context.Context, offset, limit int) ([]*models.Group, error)

	// UpdateGroup overwrites name, description and the member list after
	// guard accepts the group's log.
	UpdateGroup(ctx context.Context, group *models.Group, guard LedgerGuard) error

	// DeleteGroup removes the group together with its expenses and settlements
	// after guard accepts the group's log.
	DeleteGroup(ctx context.Context, groupID string, guard LedgerGuard) error

	// AddGroupMembers appends users not already in the group.
	AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error

	// RemoveGroupMember drops one user from the group after guard accepts the
	// group's log. Returns ErrNotFound if the user is not a member.
	RemoveGroupMember(ctx context.Context, groupID, userID string, guard LedgerGuard) error
}

// LedgerStore is the append-only log of expenses and settlements.
// Records have no update or delete path; only DeleteGroup removes them in bulk.
type LedgerStore interface {
	// CreateExpense appends an expense and all of its splits in one transaction.
	// Returns ErrNotMember if the payer or a split user has left the group.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// ListExpensesByGroup returns a group's expenses with splits, oldest first.
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)

	// CreateSettlement appends a settlement. Returns ErrNotMember if either
	// party has left the group.
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error

	// ListSettlementsByGroup returns a group's settlements, oldest first.
	ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error)
}
