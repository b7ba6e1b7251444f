package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gnan700/splitledger/internal/storage"
)

// ErrEmailTaken is returned when another user already has the email address.
var ErrEmailTaken = errors.New("email already registered")

// ValidationError reports a request rejected before any mutation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown user, group or membership.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Blocker is one nonzero balance standing in the way of a deletion.
type Blocker struct {
	GroupID   string
	GroupName string
	UserID    string
	UserName  string
	Amount    decimal.Decimal
}

// ConflictError reports a destructive operation refused because debts are outstanding.
type ConflictError struct {
	Message  string
	Blockers []Blocker
}

func (e *ConflictError) Error() string {
	if len(e.Blockers) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Blockers))
	for i, b := range e.Blockers {
		parts[i] = fmt.Sprintf("%s in %s: %s", displayName(b.UserName, b.UserID), displayName(b.GroupName, b.GroupID), b.Amount.StringFixed(2))
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func displayName(name, id string) string {
	if name == "" {
		return id
	}
	return name
}

// storeErr converts storage.ErrNotFound into a NotFoundError for entity/id,
// storage.ErrNotMember into a ValidationError, and wraps anything else as an
// internal failure.
func storeErr(op, entity, id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	if errors.Is(err, storage.ErrNotMember) {
		return &ValidationError{Message: err.Error()}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// logFailure logs client errors at WARN and everything else at ERROR.
func logFailure(op string, err error, attrs ...any) {
	attrs = append(attrs, "error", err)
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
	)
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &ce) || errors.Is(err, ErrEmailTaken) {
		slog.Warn(op+" rejected", attrs...)
		return
	}
	slog.Error(op+" failed", attrs...)
}
