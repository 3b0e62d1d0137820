// Package auth implements the token codec: signed, expiring JWTs that carry
// a subject, a token type, the issue time and a unique id.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the registered JWT claims plus the token type tag.
type Claims struct {
	jwt.RegisteredClaims
	Type models.TokenType `json:"type"`
}

// Codec issues and decodes HS256 tokens with a process-wide secret.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	secretKey []byte
	now       func() time.Time
}

// NewCodec returns a Codec signing with secretKey and using the wall clock.
func NewCodec(secretKey []byte) *Codec {
	return &Codec{secretKey: secretKey, now: time.Now}
}

// WithClock returns a copy of the codec that reads time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{secretKey: c.secretKey, now: now}
}

// Issue signs a token for subject with the given type that expires ttl after
// now. The returned time is the expiry embedded in the token.
func (c *Codec) Issue(subject string, tokenType models.TokenType, ttl time.Duration) (string, time.Time, error) {
	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Type: tokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", tokenType, err)
	}

	return signed, claims.ExpiresAt.Time, nil
}

// Decode verifies the signature, algorithm, expiry and type of tokenString.
// Every failure wraps common.ErrInvalidToken; expiry failures also match
// common.ErrTokenExpired. A token is expired once now reaches its expiry.
func (c *Codec) Decode(tokenString string, expected models.TokenType) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", common.ErrInvalidToken)
	}

	if claims.Type != expected {
		return nil, fmt.Errorf("%w: got %q token, want %q", common.ErrInvalidToken, claims.Type, expected)
	}

	// the jwt library accepts now == exp; we do not
	if !c.now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenExpired)
	}

	return claims, nil
}
