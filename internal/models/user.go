package models

// User represents a person who can belong to groups and take part in expenses.
type User struct {
	// ID is the unique identifier for the user (UUID format). Immutable.
	ID string

	// Name is the display name of the user.
	Name string

	// Email is the user's email address (unique, stored lower-case).
	Email string

	// CreatedAt is the Unix timestamp when the user was created.
	CreatedAt int64
}

// UserUpdate carries a partial update. Nil fields are left untouched.
type UserUpdate struct {
	Name  *string
	Email *string
}
