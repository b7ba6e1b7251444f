package models

import "slices"

// Group is a closed circle of users sharing expenses.
// A group owns its expenses and settlements.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Roommates", "Weekend Trip").
	Name string

	// Description is optional free text.
	Description string

	// Members is the ordered list of member user IDs. Order only matters for display.
	Members []string

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

// GroupUpdate carries a partial update. A non-nil Members replaces the membership.
type GroupUpdate struct {
	Name        *string
	Description *string
	Members     *[]string
}
