package business

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestInvitePayload_RoundTrip(t *testing.T) {
	businessID := uuid.New()

	payload := FormatInvitePayload("a@x.com", businessID, RoleStaff)
	p, err := ParseInvitePayload(payload)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", p.Email)
	require.Equal(t, businessID, p.BusinessID)
	require.Equal(t, RoleStaff, p.Role)
}

func TestParseInvitePayload_Malformed(t *testing.T) {
	businessID := uuid.New()

	for _, payload := range []string{
		"",
		"a@x.com",
		"a@x.com:" + businessID.String(),
		"a@x.com:not-a-uuid:Staff",
		"a@x.com:" + businessID.String() + ":CEO",
		":" + businessID.String() + ":Staff",
	} {
		_, err := ParseInvitePayload(payload)
		require.ErrorIs(t, err, ErrInvalidInvitePayload, "payload %q", payload)
	}
}

func TestRole_AtLeast(t *testing.T) {
	require.True(t, RoleOwner.AtLeast(RoleStaff))
	require.True(t, RoleOwner.AtLeast(RoleOwner))
	require.True(t, RoleAdmin.AtLeast(RoleManager))
	require.True(t, RoleManager.AtLeast(RoleManager))
	require.False(t, RoleManager.AtLeast(RoleAdmin))
	require.False(t, RoleStaff.AtLeast(RoleManager))
}

func TestRole_IsValid(t *testing.T) {
	for _, role := range []Role{RoleOwner, RoleAdmin, RoleManager, RoleStaff} {
		require.True(t, role.IsValid())
	}
	require.False(t, Role("CEO").IsValid())
	require.False(t, Role("").IsValid())
}

func TestDeriveSlug_Deterministic(t *testing.T) {
	ownerID := uuid.MustParse("3f2c8a10-aaaa-bbbb-cccc-000011112222")

	slug := DeriveSlug("Alice's Bakery", ownerID)
	require.Equal(t, "alice-s-bakery-3f2c8a10", slug)
	require.Equal(t, slug, DeriveSlug("Alice's Bakery", ownerID))

	// Same name under a different owner must not collide.
	other := DeriveSlug("Alice's Bakery", uuid.MustParse("9d4e1f20-aaaa-bbbb-cccc-000011112222"))
	require.NotEqual(t, slug, other)
}
