// Package signing produces and verifies time-limited signed tokens. A token
// binds a payload string to the moment it was signed; verification checks the
// HMAC and the token's age against a caller-supplied maximum. Nothing is
// persisted: validity is derived entirely from the token itself.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidSignature is returned when a token is malformed or its
	// signature does not verify.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrExpired is returned when a token's signature verifies but its age
	// exceeds the caller's max age.
	ErrExpired = errors.New("token expired")
)

const sep = ":"

// Signer signs payloads with an HMAC-SHA256 keyed by a process-wide secret.
// Instantiated once at startup and shared; it is stateless and safe for
// concurrent use.
type Signer struct {
	secret []byte

	// now is overridable for tests.
	now func() time.Time
}

// NewSigner creates a Signer with the given secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Sign returns payload:timestamp:signature. The payload travels in the clear;
// tokens are tamper-evident, not encrypted.
func (s *Signer) Sign(payload string) string {
	ts := strconv.FormatInt(s.now().Unix(), 36)
	value := payload + sep + ts
	return value + sep + s.signature(value)
}

// Unsign verifies the token's signature and age and returns the original
// payload. Fails with ErrInvalidSignature for malformed or tampered tokens
// and ErrExpired when signed more than maxAge ago.
func (s *Signer) Unsign(token string, maxAge time.Duration) (string, error) {
	sigIdx := strings.LastIndex(token, sep)
	if sigIdx < 0 {
		return "", ErrInvalidSignature
	}
	value, sig := token[:sigIdx], token[sigIdx+1:]

	if !hmac.Equal([]byte(sig), []byte(s.signature(value))) {
		return "", ErrInvalidSignature
	}

	// The payload itself may contain the separator, so the timestamp is the
	// segment after the last separator of the signed value.
	tsIdx := strings.LastIndex(value, sep)
	if tsIdx < 0 {
		return "", ErrInvalidSignature
	}
	payload, tsPart := value[:tsIdx], value[tsIdx+1:]

	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil {
		return "", ErrInvalidSignature
	}

	signedAt := time.Unix(ts, 0)
	if s.now().Sub(signedAt) > maxAge {
		return "", ErrExpired
	}

	return payload, nil
}

func (s *Signer) signature(value string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
