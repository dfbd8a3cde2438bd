// Package auth issues and validates the bearer tokens that guard the admin
// API. Tokens are HS256-signed JWTs naming the operator or automation that
// holds them.
package auth

import (
	"context"
	"time"
)

// TokenTypeAdmin is the type claim carried by admin API tokens.
const TokenTypeAdmin = "admin"

// JWTService defines operations for managing admin API tokens.
type JWTService interface {
	// GenerateToken creates a signed token for subject, typically an operator
	// name or the name of the remote process calling the completion hook.
	GenerateToken(ctx context.Context, subject string) (string, error)

	// ValidateToken validates the provided token string and extracts the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid, ErrWrongTokenType or
	// ErrInvalidToken when validation fails.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the validated content of an admin token.
type Claims struct {
	Subject   string    `json:"sub,omitempty"`
	TokenType string    `json:"type,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
