package accounts

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account identity. Email is unique and stored
// case-normalized.
type User struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	IsActive     bool      `db:"is_active"`
	IsStaff      bool      `db:"is_staff"`
	IsSuperuser  bool      `db:"is_superuser"`
	DateJoined   time.Time `db:"date_joined"`
}

// Profile is the public shape of a user returned by the profile endpoint.
type Profile struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	DateJoined time.Time `json:"date_joined"`
}

// Profile returns the user's public profile.
func (u *User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		DateJoined: u.DateJoined,
	}
}
