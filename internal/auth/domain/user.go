package domain

import "time"

type User struct {
	ID            string
	Email         string // unique, stored lower-cased
	Name          string
	Role          Role
	PasswordHash  string // argon2id encoded; empty for OAuth-only users
	MFAEnabled    bool
	OAuthProvider string // set together with OAuthID
	OAuthID       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (u User) HasPassword() bool { return u.PasswordHash != "" }

func (u User) IsOAuthLinked() bool { return u.OAuthProvider != "" && u.OAuthID != "" }
