package service

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every error returned by the services wraps exactly one of
// these so the REST layer can map it to a status code.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrExpired         = errors.New("expired")
	ErrAlreadyAccepted = errors.New("already accepted")
	ErrAlreadyEnabled  = errors.New("already enabled")
	ErrNotEnabled      = errors.New("not enabled")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUpstream        = errors.New("upstream provider error")
)

var (
	ErrInvalidTTL             = fmt.Errorf("%w: ttl_hours must be positive", ErrValidation)
	ErrInvalidEmail           = fmt.Errorf("%w: invalid email", ErrValidation)
	ErrInvalidRole            = fmt.Errorf("%w: invalid role", ErrValidation)
	ErrInvalidState           = fmt.Errorf("%w: Invalid state parameter", ErrValidation)
	ErrInvalidInvitationToken = fmt.Errorf("%w: Invalid invitation token", ErrValidation)
	ErrUnknownProvider        = fmt.Errorf("%w: unknown OAuth provider", ErrValidation)
	ErrInvalidRecoveryCount   = fmt.Errorf("%w: recovery_code_count must be between 8 and 20", ErrValidation)
	ErrPasswordRequired       = fmt.Errorf("%w: password is required", ErrValidation)
	ErrSecretMismatch         = fmt.Errorf("%w: secret does not match enrollment", ErrValidation)

	ErrInvitationNotFound = fmt.Errorf("%w: invitation not found", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("%w: user not found", ErrNotFound)

	ErrInvitationExpired  = fmt.Errorf("%w: invitation has expired", ErrExpired)
	ErrInvitationRevoked  = fmt.Errorf("%w: invitation was revoked", ErrExpired)
	ErrInvitationAccepted = fmt.Errorf("%w: invitation already accepted", ErrAlreadyAccepted)

	ErrMFAAlreadyEnabled = fmt.Errorf("%w: MFA already enabled", ErrAlreadyEnabled)
	ErrMFANotEnabled     = fmt.Errorf("%w: MFA not enabled", ErrNotEnabled)
	ErrMFANotEnrolling   = fmt.Errorf("%w: MFA enrollment not started", ErrNotEnabled)

	ErrInvitationNotPending = fmt.Errorf("%w: invitation is not pending", ErrConflict)
	ErrEmailTaken           = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrOAuthIdentityTaken   = fmt.Errorf("%w: OAuth identity linked to another user", ErrConflict)
	ErrOAuthAlreadyLinked   = fmt.Errorf("%w: account already linked to a different OAuth identity", ErrConflict)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrInvalidMFAToken    = fmt.Errorf("%w: invalid or expired mfa_token", ErrUnauthorized)
	ErrInvalidMFACode     = fmt.Errorf("%w: invalid code", ErrUnauthorized)
	ErrTooManyAttempts    = fmt.Errorf("%w: too many attempts", ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", ErrUnauthorized)
)

// Result is the outcome of a user-facing code check. Wrong codes are an
// expected input, not an error.
type Result struct {
	Success bool
	Error   string
}

const msgInvalidCode = "invalid code"

func failed(msg string) Result { return Result{Error: msg} }

var succeeded = Result{Success: true}
