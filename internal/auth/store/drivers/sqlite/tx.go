package sqlite

import (
	"context"
	"database/sql"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the outer Store owns the database handle.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users                     { return &usersRepo{db: t.tx} }
func (t *txStore) Invitations() store.Invitations         { return &invitationsRepo{db: t.tx} }
func (t *txStore) MFAConfigs() store.MFAConfigs           { return &mfaConfigsRepo{db: t.tx} }
func (t *txStore) RecoveryCodes() store.RecoveryCodes     { return &recoveryCodesRepo{db: t.tx} }
func (t *txStore) RoleGrants() store.RoleGrants           { return &roleGrantsRepo{db: t.tx} }
func (t *txStore) Settings() store.Settings               { return &settingsRepo{db: t.tx} }
func (t *txStore) LoginChallenges() store.LoginChallenges { return &loginChallengesRepo{db: t.tx} }

// ApplyMigrations is a no-op; migrations run before any transaction.
func (t *txStore) ApplyMigrations() error { return nil }
