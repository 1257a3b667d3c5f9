package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
)

type invitationsRepo struct {
	db dbtx
}

const invitationColumns = `id, email, role, status, token_hash, created_by, accepted_by,
	created_at, expires_at, accepted_at, revoked_at`

func scanInvitation(row scanner) (domain.Invitation, error) {
	var (
		inv                  domain.Invitation
		role, status         string
		acceptedBy           sql.NullString
		createdAt, expiresAt string
		acceptedAt, revoked  sql.NullString
	)
	if err := row.Scan(&inv.ID, &inv.Email, &role, &status, &inv.TokenHash, &inv.CreatedBy,
		&acceptedBy, &createdAt, &expiresAt, &acceptedAt, &revoked); err != nil {
		return domain.Invitation{}, mapNotFound(err)
	}
	inv.Role = domain.Role(role)
	inv.Status = domain.InvitationStatus(status)
	inv.AcceptedBy = acceptedBy.String

	var err error
	if inv.CreatedAt, err = clockx.Parse(createdAt); err != nil {
		return domain.Invitation{}, err
	}
	if inv.ExpiresAt, err = clockx.Parse(expiresAt); err != nil {
		return domain.Invitation{}, err
	}
	if inv.AcceptedAt, err = parseNullTime(acceptedAt); err != nil {
		return domain.Invitation{}, err
	}
	if inv.RevokedAt, err = parseNullTime(revoked); err != nil {
		return domain.Invitation{}, err
	}
	return inv, nil
}

func (r *invitationsRepo) CreateInvitation(ctx context.Context, inv domain.Invitation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invitations (`+invitationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Email, string(inv.Role), string(inv.Status), inv.TokenHash, inv.CreatedBy,
		nullString(inv.AcceptedBy), clockx.Format(inv.CreatedAt), clockx.Format(inv.ExpiresAt),
		nullTime(inv.AcceptedAt), nullTime(inv.RevokedAt))
	return mapConstraint(err)
}

func (r *invitationsRepo) GetInvitationByID(ctx context.Context, id string) (domain.Invitation, error) {
	return scanInvitation(r.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id))
}

func (r *invitationsRepo) GetInvitationByTokenHash(ctx context.Context, hash string) (domain.Invitation, error) {
	return scanInvitation(r.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token_hash = ?`, hash))
}

func (r *invitationsRepo) ListInvitations(ctx context.Context) ([]domain.Invitation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *invitationsRepo) AcceptInvitation(ctx context.Context, id, acceptedBy string, now time.Time) error {
	ts := clockx.Format(now)
	return requireOneRow(r.db.ExecContext(ctx, `
		UPDATE invitations
		SET status = 'ACCEPTED', accepted_by = ?, accepted_at = ?
		WHERE id = ? AND status = 'PENDING' AND expires_at > ?`,
		acceptedBy, ts, id, ts))
}

func (r *invitationsRepo) RevokeInvitation(ctx context.Context, id string, now time.Time) error {
	return requireOneRow(r.db.ExecContext(ctx, `
		UPDATE invitations
		SET status = 'REVOKED', revoked_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		clockx.Format(now), id))
}
