package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the lifetime of access tokens unless configured.
const DefaultAccessTokenTTL = 15 * time.Minute

// Authentication method references carried in the amr claim.
const (
	AMRPassword = "pwd"
	AMRMFA      = "mfa"
	AMROAuth    = "oauth"
)

// Claims are the access token claims issued to platform users.
type Claims struct {
	jwt.RegisteredClaims

	Email  string   `json:"email,omitempty"`
	Role   string   `json:"role,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
	AMR    []string `json:"amr,omitempty"`
}

// AccessClaimsParams groups the inputs to NewAccessClaims.
type AccessClaimsParams struct {
	Subject  string
	Email    string
	Role     string
	Scopes   []string
	AMR      []string
	Issuer   string
	Audience []string
	TTL      time.Duration
	Now      time.Time
}

// NewAccessClaims builds claims valid from p.Now for p.TTL.
func NewAccessClaims(p AccessClaimsParams) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings(p.Audience),
			IssuedAt:  jwt.NewNumericDate(p.Now),
			NotBefore: jwt.NewNumericDate(p.Now),
			ExpiresAt: jwt.NewNumericDate(p.Now.Add(p.TTL)),
			ID:        NewJTI(),
		},
		Email:  p.Email,
		Role:   p.Role,
		Scopes: p.Scopes,
		AMR:    p.AMR,
	}
}

// NewJTI returns a random URL-safe token identifier.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasScope reports whether scope was granted.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// ValidateIssuer checks iss when expected is set.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience requires one of expected in aud when expected is set.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateTimes checks exp and nbf against now.
func (c *Claims) ValidateTimes(now time.Time) error {
	if c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
