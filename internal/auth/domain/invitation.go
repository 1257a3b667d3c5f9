package domain

import (
	"time"

	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationExpired  InvitationStatus = "EXPIRED"
	InvitationRevoked  InvitationStatus = "REVOKED"
)

// Invitation grants one-time registration rights for an email and role.
// Status is stored as PENDING, ACCEPTED or REVOKED; EXPIRED is derived from
// the clock and never written.
type Invitation struct {
	ID         string
	Email      string
	Role       Role
	Status     InvitationStatus
	TokenHash  string // fingerprint of the opaque token
	CreatedBy  string
	AcceptedBy string // empty until accepted
	CreatedAt  time.Time
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	RevokedAt  *time.Time
}

// IsValid reports whether the invitation can still be accepted at now.
func (i Invitation) IsValid(now time.Time) (bool, error) {
	if i.Status != InvitationPending {
		return false, nil
	}
	return clockx.Before(now, i.ExpiresAt)
}

// EffectiveStatus is Status with EXPIRED substituted for lapsed pending
// invitations.
func (i Invitation) EffectiveStatus(now time.Time) (InvitationStatus, error) {
	if i.Status != InvitationPending {
		return i.Status, nil
	}
	expired, err := clockx.Expired(now, i.ExpiresAt)
	if err != nil {
		return "", err
	}
	if expired {
		return InvitationExpired, nil
	}
	return i.Status, nil
}
