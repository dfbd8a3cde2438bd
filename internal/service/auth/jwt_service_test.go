package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/curation-engine/internal/config"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewJWTService(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short", TokenLifetime: time.Hour})
	assert.ErrorIs(t, err, ErrInvalidSecret)

	_, err = NewJWTService(config.AuthConfig{JWTSecret: testSecret})
	assert.Error(t, err)

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetime: time.Hour})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestGenerateAndValidateToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	svc, err := newHMACJWTService(testSecret, time.Hour, fixedClock(issued))
	require.NoError(t, err)

	token, err := svc.GenerateToken(ctx, "ort-scanner")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "ort-scanner", claims.Subject)
	assert.Equal(t, TokenTypeAdmin, claims.TokenType)
	assert.Equal(t, issued, claims.IssuedAt.UTC())
	assert.Equal(t, issued.Add(time.Hour), claims.ExpiresAt.UTC())
	assert.NotEmpty(t, claims.ID)

	_, err = svc.GenerateToken(ctx, "")
	assert.Error(t, err)
}

func TestValidateTokenFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	issuer, err := newHMACJWTService(testSecret, time.Hour, fixedClock(issued))
	require.NoError(t, err)
	token, err := issuer.GenerateToken(ctx, "operator")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later, err := newHMACJWTService(testSecret, time.Hour, fixedClock(issued.Add(2*time.Hour)))
		require.NoError(t, err)
		_, err = later.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("within clock skew", func(t *testing.T) {
		later, err := newHMACJWTService(testSecret, time.Hour, fixedClock(issued.Add(time.Hour+time.Minute)))
		require.NoError(t, err)
		_, err = later.ValidateToken(ctx, token)
		assert.NoError(t, err)
	})

	t.Run("not yet valid", func(t *testing.T) {
		earlier, err := newHMACJWTService(testSecret, time.Hour, fixedClock(issued.Add(-time.Hour)))
		require.NoError(t, err)
		_, err = earlier.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := newHMACJWTService(testSecret+"-rotated", time.Hour, fixedClock(issued))
		require.NoError(t, err)
		_, err = other.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := issuer.ValidateToken(ctx, "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong token type", func(t *testing.T) {
		claims := jwtCustomClaims{
			TokenType: "refresh",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "operator",
				IssuedAt:  jwt.NewNumericDate(issued),
				ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = issuer.ValidateToken(ctx, signed)
		assert.ErrorIs(t, err, ErrWrongTokenType)
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		claims := jwtCustomClaims{
			TokenType: TokenTypeAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = issuer.ValidateToken(ctx, signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
