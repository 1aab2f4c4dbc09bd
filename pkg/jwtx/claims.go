package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes. The access token is checked on every request
// without a store lookup so it has to stay short; the refresh token is
// revocable through the user's stored slot and can live for days.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 10 * 24 * time.Hour
)

// Token uses, carried in the "use" claim. A refresh token presented where an
// access token is expected (or the reverse) fails verification.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims are shared by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Use is either UseAccess or UseRefresh.
	Use string `json:"use"`

	// Profile hints for clients, access tokens only. Never trusted server
	// side: the authn middleware reloads the user by subject.
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// NewAccessClaims builds access-token claims for subject.
func NewAccessClaims(
	subject, username, email, fullName string,
	issuer string,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: registered(subject, issuer, ttl, now),
		Use:              UseAccess,
		Username:         username,
		Email:            email,
		FullName:         fullName,
	}
}

// NewRefreshClaims builds refresh-token claims for subject. Only the subject
// is embedded, everything else is looked up on refresh.
func NewRefreshClaims(subject, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: registered(subject, issuer, ttl, now),
		Use:              UseRefresh,
	}
}

func registered(subject, issuer string, ttl time.Duration, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        NewJTI(),
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim. Two tokens
// minted for the same user in the same second still differ because of it.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks the issuer. An empty expected value skips the check.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateUse checks the token use claim.
func (c *Claims) ValidateUse(expected string) error {
	if expected != "" && c.Use != expected {
		return ErrWrongUse
	}
	return nil
}

// ValidateExpiryWithLeeway checks exp and nbf allowing leeway for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
