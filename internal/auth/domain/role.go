package domain

import (
	"strings"
	"time"
)

// Role is the platform role carried by users and invitations.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleUser     Role = "USER"
	RoleReadOnly Role = "READ_ONLY"
)

// Scopes granted in access tokens.
const (
	ScopeAdminRead    = "admin:read"
	ScopeAdminWrite   = "admin:write"
	ScopeProfileRead  = "profile:read"
	ScopeProfileWrite = "profile:write"
)

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleUser, RoleReadOnly:
		return r, true
	}
	return "", false
}

// Scopes returns the token scopes implied by the role.
func (r Role) Scopes() []string {
	switch r {
	case RoleAdmin:
		return []string{ScopeAdminRead, ScopeAdminWrite, ScopeProfileRead, ScopeProfileWrite}
	case RoleUser:
		return []string{ScopeProfileRead, ScopeProfileWrite}
	case RoleReadOnly:
		return []string{ScopeProfileRead}
	}
	return nil
}

// RoleSource records where a role grant came from.
type RoleSource string

const (
	RoleSourceDefault RoleSource = "DEFAULT"
	RoleSourceLocal   RoleSource = "LOCAL"
	RoleSourceOAuth   RoleSource = "OAUTH"
)

// RoleGrant is a named role held by a user. OAuth grants mirror an upstream
// provider and are pruned when the provider stops reporting them.
type RoleGrant struct {
	UserID    string
	Name      string
	Source    RoleSource
	CreatedAt time.Time
}
