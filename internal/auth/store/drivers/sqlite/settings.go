package sqlite

import (
	"context"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
)

type settingsRepo struct {
	db dbtx
}

func (r *settingsRepo) GetMFASettings(ctx context.Context) (domain.MFASettings, error) {
	var (
		s         domain.MFASettings
		required  int
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT required_for_admins, recovery_code_count, updated_by, updated_at
		FROM mfa_settings WHERE id = 1`).
		Scan(&required, &s.RecoveryCodeCount, &s.UpdatedBy, &updatedAt)
	if err != nil {
		return domain.MFASettings{}, mapNotFound(err)
	}
	s.RequiredForAdmins = required != 0
	if s.UpdatedAt, err = clockx.Parse(updatedAt); err != nil {
		return domain.MFASettings{}, err
	}
	return s, nil
}

func (r *settingsRepo) PutMFASettings(ctx context.Context, s domain.MFASettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mfa_settings (id, required_for_admins, recovery_code_count, updated_by, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			required_for_admins = excluded.required_for_admins,
			recovery_code_count = excluded.recovery_code_count,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`,
		boolInt(s.RequiredForAdmins), s.RecoveryCodeCount, s.UpdatedBy, clockx.Format(s.UpdatedAt))
	return err
}
