package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Alice@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", email)
}

func TestNormalizeEmail_Empty(t *testing.T) {
	_, err := NormalizeEmail("   ")
	require.ErrorIs(t, err, ErrEmailRequired)
}

func TestNormalizeEmail_Invalid(t *testing.T) {
	_, err := NormalizeEmail("not-an-email")
	require.ErrorIs(t, err, ErrEmailInvalid)
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "alice-s-bakery", Slugify("Alice's Bakery"))
	require.Equal(t, "acme-corp", Slugify("  ACME -- Corp!  "))
	require.Equal(t, "bob-sons-ltd", Slugify("Bob & Sons Ltd."))
}
