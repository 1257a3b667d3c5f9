package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
)

type mfaConfigsRepo struct {
	db dbtx
}

func (r *mfaConfigsRepo) GetMFAConfig(ctx context.Context, userID string) (domain.MFAConfig, error) {
	var (
		c                  domain.MFAConfig
		state              string
		createdAt, updated string
		verifiedAt         sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, secret, state, created_at, updated_at, verified_at
		FROM mfa_configs WHERE user_id = ?`, userID).
		Scan(&c.UserID, &c.Secret, &state, &createdAt, &updated, &verifiedAt)
	if err != nil {
		return domain.MFAConfig{}, mapNotFound(err)
	}
	c.State = domain.MFAState(state)
	if c.CreatedAt, err = clockx.Parse(createdAt); err != nil {
		return domain.MFAConfig{}, err
	}
	if c.UpdatedAt, err = clockx.Parse(updated); err != nil {
		return domain.MFAConfig{}, err
	}
	if c.VerifiedAt, err = parseNullTime(verifiedAt); err != nil {
		return domain.MFAConfig{}, err
	}
	return c, nil
}

func (r *mfaConfigsRepo) UpsertEnrollment(ctx context.Context, userID, secret string, now time.Time) error {
	ts := clockx.Format(now)
	return requireOneRow(r.db.ExecContext(ctx, `
		INSERT INTO mfa_configs (user_id, secret, state, created_at, updated_at)
		VALUES (?, ?, 'ENROLLING', ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET secret = excluded.secret, updated_at = excluded.updated_at
		WHERE mfa_configs.state = 'ENROLLING'`,
		userID, secret, ts, ts))
}

func (r *mfaConfigsRepo) MarkVerified(ctx context.Context, userID, secret string, now time.Time) error {
	ts := clockx.Format(now)
	return requireOneRow(r.db.ExecContext(ctx, `
		UPDATE mfa_configs
		SET state = 'VERIFIED', verified_at = ?, updated_at = ?
		WHERE user_id = ? AND secret = ? AND state = 'ENROLLING'`,
		ts, ts, userID, secret))
}

func (r *mfaConfigsRepo) DeleteMFAConfig(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_configs WHERE user_id = ?`, userID)
	return err
}

type recoveryCodesRepo struct {
	db dbtx
}

func (r *recoveryCodesRepo) InsertRecoveryCode(ctx context.Context, c domain.RecoveryCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recovery_codes (id, user_id, code_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		c.ID, c.UserID, c.CodeHash, clockx.Format(c.CreatedAt))
	return mapConstraint(err)
}

func (r *recoveryCodesRepo) RedeemRecoveryCode(ctx context.Context, userID, codeHash string, now time.Time) error {
	return notFoundIfNoRows(r.db.ExecContext(ctx, `
		UPDATE recovery_codes SET used_at = ?
		WHERE user_id = ? AND code_hash = ? AND used_at IS NULL AND retired_at IS NULL`,
		clockx.Format(now), userID, codeHash))
}

func (r *recoveryCodesRepo) RetireBatch(ctx context.Context, userID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recovery_codes SET retired_at = ?
		WHERE user_id = ? AND retired_at IS NULL`,
		clockx.Format(now), userID)
	return err
}

// CountRecoveryCodes counts the current batch: available codes and codes
// used since the batch was issued. Retired codes are history only.
func (r *recoveryCodesRepo) CountRecoveryCodes(ctx context.Context, userID string) (int, int, error) {
	var remaining, used int
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN used_at IS NULL AND retired_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN used_at IS NOT NULL AND retired_at IS NULL THEN 1 ELSE 0 END), 0)
		FROM recovery_codes WHERE user_id = ?`, userID).Scan(&remaining, &used)
	return remaining, used, err
}

func (r *recoveryCodesRepo) DeleteAllRecoveryCodes(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recovery_codes WHERE user_id = ?`, userID)
	return err
}
