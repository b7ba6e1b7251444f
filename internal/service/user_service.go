package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gnan700/splitledger/internal/models"
	"github.com/gnan700/splitledger/internal/storage"
)

// UserService manages users.
type UserService struct {
	*core
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", invalidf("email is required")
	}
	if !strings.Contains(email, "@") {
		return "", invalidf("email %q is not a valid address", email)
	}
	return email, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalidf("name is required")
	}
	return name, nil
}

// checkPage validates skip/limit pagination parameters.
func checkPage(skip, limit int) error {
	if skip < 0 {
		return invalidf("skip must not be negative")
	}
	if limit < 0 {
		return invalidf("limit must not be negative")
	}
	return nil
}

// Create registers a new user.
func (s *UserService) Create(ctx context.Context, name, email string) (*models.User, error) {
	slog.Info("CreateUser request received", "name", name)

	user, err := s.create(ctx, name, email)
	if err != nil {
		logFailure("CreateUser", err)
		return nil, err
	}

	slog.Info("User created", "user_id", user.ID)
	return user, nil
}

func (s *UserService) create(ctx context.Context, name, email string) (*models.User, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	email, err = normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	user := &models.User{Name: name, Email: email}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Get retrieves a user by ID.
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		err = storeErr("get user", "user", userID, err)
		logFailure("GetUser", err, "user_id", userID)
		return nil, err
	}
	return user, nil
}

// List returns a page of users. A limit of 0 returns everything after skip.
func (s *UserService) List(ctx context.Context, skip, limit int) ([]*models.User, error) {
	if err := checkPage(skip, limit); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx, skip, limit)
	if err != nil {
		slog.Error("ListUsers failed", "error", err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Update applies a partial update to a user.
func (s *UserService) Update(ctx context.Context, userID string, upd models.UserUpdate) (*models.User, error) {
	slog.Info("UpdateUser request received", "user_id", userID)

	user, err := s.update(ctx, userID, upd)
	if err != nil {
		logFailure("UpdateUser", err, "user_id", userID)
		return nil, err
	}

	slog.Info("User updated", "user_id", userID)
	return user, nil
}

func (s *UserService) update(ctx context.Context, userID string, upd models.UserUpdate) (*models.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeErr("get user", "user", userID, err)
	}

	if upd.Name != nil {
		if user.Name, err = normalizeName(*upd.Name); err != nil {
			return nil, err
		}
	}
	if upd.Email != nil {
		if user.Email, err = normalizeEmail(*upd.Email); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, storeErr("update user", "user", userID, err)
	}
	return user, nil
}

// Delete removes a user. It is refused while the user has a nonzero net
// balance in any group; the error names every blocking group.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	slog.Info("DeleteUser request received", "user_id", userID)

	if err := s.delete(ctx, userID); err != nil {
		logFailure("DeleteUser", err, "user_id", userID)
		return err
	}

	slog.Info("User deleted", "user_id", userID)
	return nil
}

func (s *UserService) delete(ctx context.Context, userID string) error {
	s.membership.Lock()
	defer s.membership.Unlock()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return storeErr("get user", "user", userID, err)
	}

	groupIDs, err := s.store.ListGroupIDsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list user groups: %w", err)
	}
	unlock := s.locks.lockAll(groupIDs)
	defer unlock()

	self := func(id string) bool { return id == userID }
	if err := s.store.DeleteUser(ctx, userID, balanceGuard(self)); err != nil {
		if blockers := blockersIn(err); len(blockers) > 0 {
			return s.conflict(ctx, "user",
				fmt.Sprintf("cannot delete user %s with outstanding balances; settle all debts first", user.Name),
				blockers)
		}
		return storeErr("delete user", "user", userID, err)
	}
	for _, groupID := range groupIDs {
		s.invalidate(ctx, groupID)
	}
	return nil
}
