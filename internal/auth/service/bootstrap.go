package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"
)

var ErrBootstrapFailedToCreateAdmin = errors.New("failed to create admin user")

// BootstrapService creates the first administrator of an empty system.
type BootstrapService struct {
	Store store.Store
	Users *UserService
	Admin domain.BootstrapAdmin
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Run creates the configured admin if no users exist yet. It reports
// whether an admin was created.
func (s *BootstrapService) Run(ctx context.Context) (bool, error) {
	l := slogx.FromContext(ctx)

	if s.Admin.Email == "" {
		l.Debug("no bootstrap admin configured")
		return false, nil
	}
	bootstrapped, err := s.IsBootstrapped(ctx)
	if err != nil {
		return false, err
	}
	if bootstrapped {
		l.Debug("system already bootstrapped")
		return false, nil
	}

	name := s.Admin.Name
	if name == "" {
		name = "Administrator"
	}
	user, err := s.Users.AddUser(ctx, s.Admin.Email, name, domain.RoleAdmin, s.Admin.Password)
	if err != nil {
		l.Error("failed to create bootstrap admin", slog.Any("error", err))
		return false, errors.Join(ErrBootstrapFailedToCreateAdmin, err)
	}

	l.Info("successfully bootstrapped system", slog.String("admin_user_id", user.ID))
	return true, nil
}
