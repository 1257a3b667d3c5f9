package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, name, role, password_hash, mfa_enabled, oauth_provider, oauth_id, created_at, updated_at`

func scanUser(row scanner) (domain.User, error) {
	var (
		u                  domain.User
		role               string
		mfa                int
		provider, oauthID  sql.NullString
		createdAt, updated string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &mfa,
		&provider, &oauthID, &createdAt, &updated); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Role = domain.Role(role)
	u.MFAEnabled = mfa != 0
	u.OAuthProvider = provider.String
	u.OAuthID = oauthID.String

	var err error
	if u.CreatedAt, err = clockx.Parse(createdAt); err != nil {
		return domain.User{}, err
	}
	if u.UpdatedAt, err = clockx.Parse(updated); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, strings.TrimSpace(email)))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, strings.ToLower(strings.TrimSpace(u.Email)), u.Name, string(u.Role), u.PasswordHash,
		boolInt(u.MFAEnabled), nullString(u.OAuthProvider), nullString(u.OAuthID),
		clockx.Format(u.CreatedAt), clockx.Format(u.UpdatedAt))
	return mapConstraint(err)
}

func (r *usersRepo) SetMFAEnabled(ctx context.Context, userID string, enabled bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_enabled = ?, updated_at = ? WHERE id = ?`,
		boolInt(enabled), clockx.Format(at), userID)
	return notFoundIfNoRows(res, err)
}

func (r *usersRepo) SetOAuthIdentity(ctx context.Context, userID, provider, oauthID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET oauth_provider = ?, oauth_id = ?, updated_at = ? WHERE id = ?`,
		nullString(provider), nullString(oauthID), clockx.Format(at), userID)
	return notFoundIfNoRows(res, mapConstraint(err))
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	return notFoundIfNoRows(res, err)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}
