package business

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRole is returned when an invite names a role outside the closed role set
	ErrInvalidRole = errors.New("invalid role specified")

	// ErrCannotInviteOwner is returned when an invite proposes the Owner role.
	// A business has exactly one owner, set at creation.
	ErrCannotInviteOwner = errors.New("cannot invite owner role")

	// ErrInviteAlreadyAccepted is returned when the invited email already
	// joined this business through a previous invite
	ErrInviteAlreadyAccepted = errors.New("an invite for this email was already accepted")

	// ErrInvitePending is returned when an unaccepted invite already exists
	// for this email and business
	ErrInvitePending = errors.New("an invite for this email is already pending")

	// ErrInviteNotFound is returned when no unaccepted invite matches the token
	ErrInviteNotFound = errors.New("no valid invite found for this token")

	// ErrInvalidInvitePayload is returned when a verified token does not carry
	// a well-formed email:business:role triple
	ErrInvalidInvitePayload = errors.New("invalid invite token payload")

	// ErrUserExists is returned on acceptance when the invited email is
	// already registered; the caller should sign in instead
	ErrUserExists = errors.New("a user with this email already exists")
)

const payloadSep = ":"

// InvitePayload is the claim carried inside a signed invitation token.
type InvitePayload struct {
	Email      string
	BusinessID uuid.UUID
	Role       Role
}

// FormatInvitePayload encodes the invite claim as email:business_id:role for
// signing. The business ID and role never contain the separator, so decoding
// splits from the right; emails carrying the separator are rejected before an
// invite is ever created.
func FormatInvitePayload(email string, businessID uuid.UUID, role Role) string {
	return fmt.Sprintf("%s%s%s%s%s", email, payloadSep, businessID, payloadSep, role)
}

// ParseInvitePayload decodes a verified token payload. Fails with
// ErrInvalidInvitePayload unless the payload splits into exactly three
// non-empty parts with a well-formed business ID and a known role.
func ParseInvitePayload(payload string) (InvitePayload, error) {
	roleIdx := strings.LastIndex(payload, payloadSep)
	if roleIdx < 0 {
		return InvitePayload{}, ErrInvalidInvitePayload
	}
	rest, rolePart := payload[:roleIdx], payload[roleIdx+1:]

	idIdx := strings.LastIndex(rest, payloadSep)
	if idIdx < 0 {
		return InvitePayload{}, ErrInvalidInvitePayload
	}
	email, idPart := rest[:idIdx], rest[idIdx+1:]

	if email == "" || strings.Contains(email, payloadSep) {
		return InvitePayload{}, ErrInvalidInvitePayload
	}

	businessID, err := uuid.Parse(idPart)
	if err != nil {
		return InvitePayload{}, ErrInvalidInvitePayload
	}

	role := Role(rolePart)
	if !role.IsValid() {
		return InvitePayload{}, ErrInvalidInvitePayload
	}

	return InvitePayload{Email: email, BusinessID: businessID, Role: role}, nil
}
