package sqlite

import (
	"context"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
)

type loginChallengesRepo struct {
	db dbtx
}

func (r *loginChallengesRepo) CreateLoginChallenge(ctx context.Context, c domain.LoginChallenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_challenges (id, token_hash, user_id, first_factor, attempts, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TokenHash, c.UserID, c.FirstFactor, c.Attempts, clockx.Format(c.CreatedAt), clockx.Format(c.ExpiresAt))
	return mapConstraint(err)
}

func (r *loginChallengesRepo) GetLoginChallenge(ctx context.Context, tokenHash string, now time.Time) (domain.LoginChallenge, error) {
	var (
		c                    domain.LoginChallenge
		createdAt, expiresAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, first_factor, attempts, created_at, expires_at
		FROM login_challenges WHERE token_hash = ? AND expires_at > ?`,
		tokenHash, clockx.Format(now)).
		Scan(&c.ID, &c.TokenHash, &c.UserID, &c.FirstFactor, &c.Attempts, &createdAt, &expiresAt)
	if err != nil {
		return domain.LoginChallenge{}, mapNotFound(err)
	}
	if c.CreatedAt, err = clockx.Parse(createdAt); err != nil {
		return domain.LoginChallenge{}, err
	}
	if c.ExpiresAt, err = clockx.Parse(expiresAt); err != nil {
		return domain.LoginChallenge{}, err
	}
	return c, nil
}

func (r *loginChallengesRepo) IncrementAttempts(ctx context.Context, tokenHash string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE login_challenges SET attempts = attempts + 1
		WHERE token_hash = ? RETURNING attempts`, tokenHash).Scan(&n)
	return n, mapNotFound(err)
}

func (r *loginChallengesRepo) DeleteLoginChallenge(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM login_challenges WHERE token_hash = ?`, tokenHash)
	return err
}

func (r *loginChallengesRepo) DeleteUserLoginChallenges(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM login_challenges WHERE user_id = ?`, userID)
	return err
}

func (r *loginChallengesRepo) DeleteExpiredLoginChallenges(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM login_challenges WHERE expires_at <= ?`, clockx.Format(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
