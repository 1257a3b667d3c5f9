package domain

import "time"

// MFAState is the per-user enrollment state: NONE -> ENROLLING -> VERIFIED.
type MFAState string

const (
	MFAStateNone      MFAState = "NONE"
	MFAStateEnrolling MFAState = "ENROLLING"
	MFAStateVerified  MFAState = "VERIFIED"
)

// MFA login methods.
const (
	MFAMethodTOTP         = "totp"
	MFAMethodRecoveryCode = "recovery_code"
)

// MFAConfig is the TOTP enrollment of one user. A user without a row is in
// state NONE.
type MFAConfig struct {
	UserID     string
	Secret     string // base32 TOTP seed
	State      MFAState
	CreatedAt  time.Time
	UpdatedAt  time.Time
	VerifiedAt *time.Time
}

// RecoveryCode is a single-use backup credential. Only its fingerprint is
// stored. A code is available while both UsedAt and RetiredAt are nil.
type RecoveryCode struct {
	ID        string
	UserID    string
	CodeHash  string
	CreatedAt time.Time
	UsedAt    *time.Time
	RetiredAt *time.Time // set when the batch is replaced or MFA is disabled
}

func (c RecoveryCode) Available() bool { return c.UsedAt == nil && c.RetiredAt == nil }

// MFASettings are the platform-wide MFA policy knobs.
type MFASettings struct {
	RequiredForAdmins bool
	RecoveryCodeCount int
	UpdatedBy         string
	UpdatedAt         time.Time
}

// Recovery code batch bounds.
const (
	MinRecoveryCodes     = 8
	MaxRecoveryCodes     = 20
	DefaultRecoveryCodes = 10
)

// DefaultMFASettings applies until an admin saves settings.
func DefaultMFASettings() MFASettings {
	return MFASettings{RecoveryCodeCount: DefaultRecoveryCodes}
}

// LoginChallenge is the pending second factor of a password login. The
// opaque mfa_token handed to the client is stored only as TokenHash.
type LoginChallenge struct {
	ID        string
	TokenHash string
	UserID    string

	// FirstFactor is the AMR value of the factor already presented.
	FirstFactor string
	Attempts    int
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// MaxLoginChallengeAttempts bounds failed codes per challenge.
const MaxLoginChallengeAttempts = 5

// MFAEnrollment is returned when enrollment starts.
type MFAEnrollment struct {
	Secret    string
	QRPayload string // otpauth:// URL
	QRPNG     []byte
	Issuer    string
	Account   string
}
