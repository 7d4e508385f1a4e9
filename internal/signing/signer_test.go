package signing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSign_AndUnsign_RoundTrip(t *testing.T) {
	s := NewSigner("test-secret")

	token := s.Sign("alice@example.com")
	payload, err := s.Unsign(token, time.Hour)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", payload)
}

func TestUnsign_PayloadWithSeparators(t *testing.T) {
	s := NewSigner("test-secret")

	// Invitation payloads embed colons; they must survive the round trip.
	token := s.Sign("alice@example.com:b2c9a1d4:Staff")
	payload, err := s.Unsign(token, time.Hour)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com:b2c9a1d4:Staff", payload)
}

func TestUnsign_Expired(t *testing.T) {
	s := NewSigner("test-secret")
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token := s.Sign("alice@example.com")

	s.now = time.Now
	_, err := s.Unsign(token, time.Hour)
	require.ErrorIs(t, err, ErrExpired)
}

func TestUnsign_Tampered(t *testing.T) {
	s := NewSigner("test-secret")

	token := s.Sign("alice@example.com")
	tampered := strings.Replace(token, "alice", "mallory", 1)

	_, err := s.Unsign(tampered, time.Hour)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestUnsign_WrongSecret(t *testing.T) {
	token := NewSigner("secret-a").Sign("alice@example.com")

	_, err := NewSigner("secret-b").Unsign(token, time.Hour)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestUnsign_Malformed(t *testing.T) {
	s := NewSigner("test-secret")

	for _, token := range []string{"", "no-separators", "a:b"} {
		_, err := s.Unsign(token, time.Hour)
		require.ErrorIs(t, err, ErrInvalidSignature, "token %q", token)
	}
}
