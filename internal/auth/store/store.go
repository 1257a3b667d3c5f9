package store

import (
	"context"
	"errors"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrConflict reports a compare-and-swap that matched no row.
	ErrConflict = errors.New("store: conditional update did not apply")
)

// Store is the root data access interface. Sub-repositories are exposed as
// methods so a transaction-scoped Store hands out repos bound to the same tx.
type Store interface {
	Users() Users
	Invitations() Invitations
	MFAConfigs() MFAConfigs
	RecoveryCodes() RecoveryCodes
	RoleGrants() RoleGrants
	Settings() Settings
	LoginChallenges() LoginChallenges

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	// Nested transactions are not supported.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser returns ErrAlreadyExists on a duplicate email.
	CreateUser(ctx context.Context, u domain.User) error

	SetMFAEnabled(ctx context.Context, userID string, enabled bool, at time.Time) error

	// SetOAuthIdentity writes provider and id together.
	SetOAuthIdentity(ctx context.Context, userID, provider, oauthID string, at time.Time) error

	DeleteUser(ctx context.Context, userID string) error

	IsEmpty(ctx context.Context) (bool, error)
}

type Invitations interface {
	CreateInvitation(ctx context.Context, inv domain.Invitation) error
	GetInvitationByID(ctx context.Context, id string) (domain.Invitation, error)
	GetInvitationByTokenHash(ctx context.Context, hash string) (domain.Invitation, error)

	// ListInvitations returns every invitation, newest first.
	ListInvitations(ctx context.Context) ([]domain.Invitation, error)

	// AcceptInvitation flips PENDING to ACCEPTED only while expires_at > now.
	// Returns ErrConflict when the guard does not hold.
	AcceptInvitation(ctx context.Context, id, acceptedBy string, now time.Time) error

	// RevokeInvitation flips PENDING to REVOKED. Returns ErrConflict when the
	// invitation is no longer pending.
	RevokeInvitation(ctx context.Context, id string, now time.Time) error
}

type MFAConfigs interface {
	GetMFAConfig(ctx context.Context, userID string) (domain.MFAConfig, error)

	// UpsertEnrollment stores a fresh ENROLLING secret. Returns ErrConflict if
	// the user is already VERIFIED.
	UpsertEnrollment(ctx context.Context, userID, secret string, now time.Time) error

	// MarkVerified promotes ENROLLING to VERIFIED when the stored secret is
	// still secret. Returns ErrConflict otherwise.
	MarkVerified(ctx context.Context, userID, secret string, now time.Time) error

	DeleteMFAConfig(ctx context.Context, userID string) error
}

type RecoveryCodes interface {
	// InsertRecoveryCode returns ErrAlreadyExists if the user ever held the
	// same code.
	InsertRecoveryCode(ctx context.Context, c domain.RecoveryCode) error

	// RedeemRecoveryCode marks an available code used. Returns ErrNotFound if
	// no available code matches.
	RedeemRecoveryCode(ctx context.Context, userID, codeHash string, now time.Time) error

	// RetireBatch retires the user's current batch. Retired hashes are kept
	// so later batches can be checked for reuse.
	RetireBatch(ctx context.Context, userID string, now time.Time) error

	CountRecoveryCodes(ctx context.Context, userID string) (remaining, used int, err error)

	DeleteAllRecoveryCodes(ctx context.Context, userID string) error
}

type RoleGrants interface {
	// GrantRole is idempotent per (user, name, source).
	GrantRole(ctx context.Context, g domain.RoleGrant) error
	ListRoleGrants(ctx context.Context, userID string) ([]domain.RoleGrant, error)
	RevokeRoleGrant(ctx context.Context, userID, name string, source domain.RoleSource) error
	DeleteAllRoleGrants(ctx context.Context, userID string) error
}

type Settings interface {
	// GetMFASettings returns ErrNotFound until settings are saved.
	GetMFASettings(ctx context.Context) (domain.MFASettings, error)
	PutMFASettings(ctx context.Context, s domain.MFASettings) error
}

type LoginChallenges interface {
	CreateLoginChallenge(ctx context.Context, c domain.LoginChallenge) error

	// GetLoginChallenge returns the challenge only while unexpired at now.
	GetLoginChallenge(ctx context.Context, tokenHash string, now time.Time) (domain.LoginChallenge, error)

	// IncrementAttempts bumps the failure counter and returns the new count.
	IncrementAttempts(ctx context.Context, tokenHash string) (int, error)

	DeleteLoginChallenge(ctx context.Context, tokenHash string) error
	DeleteUserLoginChallenges(ctx context.Context, userID string) error

	// DeleteExpiredLoginChallenges returns the number of rows removed.
	DeleteExpiredLoginChallenges(ctx context.Context, now time.Time) (int64, error)
}
