package sqlite

import (
	"context"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
)

type roleGrantsRepo struct {
	db dbtx
}

func (r *roleGrantsRepo) GrantRole(ctx context.Context, g domain.RoleGrant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO role_grants (user_id, name, source, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, name, source) DO NOTHING`,
		g.UserID, g.Name, string(g.Source), clockx.Format(g.CreatedAt))
	return err
}

func (r *roleGrantsRepo) ListRoleGrants(ctx context.Context, userID string) ([]domain.RoleGrant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, name, source, created_at FROM role_grants
		WHERE user_id = ? ORDER BY name, source`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RoleGrant
	for rows.Next() {
		var (
			g         domain.RoleGrant
			source    string
			createdAt string
		)
		if err := rows.Scan(&g.UserID, &g.Name, &source, &createdAt); err != nil {
			return nil, err
		}
		g.Source = domain.RoleSource(source)
		if g.CreatedAt, err = clockx.Parse(createdAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *roleGrantsRepo) RevokeRoleGrant(ctx context.Context, userID, name string, source domain.RoleSource) error {
	return notFoundIfNoRows(r.db.ExecContext(ctx,
		`DELETE FROM role_grants WHERE user_id = ? AND name = ? AND source = ?`,
		userID, name, string(source)))
}

func (r *roleGrantsRepo) DeleteAllRoleGrants(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM role_grants WHERE user_id = ?`, userID)
	return err
}
