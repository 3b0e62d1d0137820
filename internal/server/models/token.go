package models

import "time"

// TokenType tags a token both in its signed payload and in storage.
// The string values are stable wire values.
type TokenType string

const (
	TokenTypeAccess        TokenType = "ACCESS"
	TokenTypeRefresh       TokenType = "REFRESH"
	TokenTypeResetPassword TokenType = "RESET_PASSWORD"
	TokenTypeVerifyEmail   TokenType = "VERIFY_EMAIL"
)

// Persisted reports whether tokens of this type are stored. Access tokens
// are verified by signature and expiry only.
func (t TokenType) Persisted() bool {
	switch t {
	case TokenTypeRefresh, TokenTypeResetPassword, TokenTypeVerifyEmail:
		return true
	default:
		return false
	}
}

// Token is a persisted refresh, reset-password or verify-email token.
type Token struct {
	ID          string
	Token       string
	Type        TokenType
	UserID      string
	Expires     time.Time
	Blacklisted bool
	CreatedAt   time.Time
}

// IssuedToken is a freshly minted token string with its expiry.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires"`
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	Access  IssuedToken `json:"access"`
	Refresh IssuedToken `json:"refresh"`
}
