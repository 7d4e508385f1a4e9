package business

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role within a business
type Role string

const (
	RoleOwner   Role = "Owner"
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleStaff   Role = "Staff"
)

// roleLevel defines the role hierarchy (higher number = more permissions).
// Roles are stored as strings; the ordering lives only here.
var roleLevel = map[Role]int{
	RoleStaff:   1,
	RoleManager: 2,
	RoleAdmin:   3,
	RoleOwner:   4,
}

// IsValid returns true if the role is one of the closed role set
func (r Role) IsValid() bool {
	_, ok := roleLevel[r]
	return ok
}

// AtLeast returns true if the role meets the given threshold in the hierarchy
func (r Role) AtLeast(threshold Role) bool {
	return roleLevel[r] >= roleLevel[threshold]
}

// Business represents a tenant: an isolated organization owning its members.
// The owner is set at creation and immutable.
type Business struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	OwnerID   uuid.UUID `db:"owner_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Member pairs a user with a business and a role. At most one membership
// exists per (user, business).
type Member struct {
	BusinessID uuid.UUID `db:"business_id"`
	UserID     uuid.UUID `db:"user_id"`
	Role       Role      `db:"role"`
	JoinedAt   time.Time `db:"joined_at"`
}

// MemberInfo is a member row joined with user details for listings
type MemberInfo struct {
	Email    string    `db:"email" json:"email"`
	Name     string    `db:"name" json:"name"`
	Role     Role      `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// Invite is a pending offer for an email address to join a business at a
// given role, gated by a signed token. Consumed exactly once on acceptance.
type Invite struct {
	ID              uuid.UUID `db:"id"`
	Email           string    `db:"email"`
	BusinessID      uuid.UUID `db:"business_id"`
	Role            Role      `db:"role"`
	Token           string    `db:"token"`
	InvitedByUserID uuid.UUID `db:"invited_by_user_id"`
	IsAccepted      bool      `db:"is_accepted"`
	CreatedAt       time.Time `db:"created_at"`
}
