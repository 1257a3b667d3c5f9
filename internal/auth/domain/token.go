package domain

import "time"

// AccessToken is a signed bearer token issued to a user.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
	AMR       []string
}
