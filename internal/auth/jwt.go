package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TokenTypeAccess and TokenTypeRefresh distinguish the two halves of a
	// token pair. A refresh token is only valid at the refresh endpoint and
	// an access token only as a Bearer credential.
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrWrongTokenType is returned when an access token is presented where a
	// refresh token is required, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims are the JWT claims carried by Ziply session tokens. Email and Name
// are embedded so the frontend can render the signed-in user without an extra
// profile request.
type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	TokenType string    `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is a refresh/access token pair issued at login and registration.
type TokenPair struct {
	Refresh string `json:"refresh"`
	Access  string `json:"access"`
}

// CreateToken creates a signed HS256 token of the given type for the user.
func CreateToken(userID uuid.UUID, email, name, tokenType, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := &Claims{
		UserID:    userID,
		Email:     email,
		Name:      name,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// CreateTokenPair mints a refresh/access pair for the user.
func CreateTokenPair(userID uuid.UUID, email, name, secret string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	access, err := CreateToken(userID, email, name, TokenTypeAccess, secret, accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := CreateToken(userID, email, name, TokenTypeRefresh, secret, refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{Refresh: refresh, Access: access}, nil
}

// ValidateToken validates a JWT and returns its claims. The token must be of
// the expected type; expired or malformed tokens fail.
func ValidateToken(tokenString, secret, expectedType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.TokenType != expectedType {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}
