package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/notify"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/cryptox"
	"github.com/factstofaith/gigglefits-sub006/pkg/idx"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"
	"github.com/factstofaith/gigglefits-sub006/pkg/validate"
)

// InvitationService is the Invitation Store. Invitations are only ever
// status-transitioned, never deleted.
type InvitationService struct {
	Store    store.Store
	Clock    clockx.Clock
	Users    UserBridge
	Notifier *notify.Dispatcher

	// AcceptURL is the page invitees open; the token is appended as a query
	// parameter.
	AcceptURL string
}

// AcceptInput is the invitee's registration data.
type AcceptInput struct {
	Name     string
	Password string
}

// CreateInvitation stores a PENDING invitation and returns it with its
// token. Only the token's fingerprint is persisted.
func (s *InvitationService) CreateInvitation(ctx context.Context, email string, role domain.Role, ttlHours int, createdBy string) (domain.Invitation, string, error) {
	if ttlHours <= 0 {
		return domain.Invitation{}, "", ErrInvalidTTL
	}
	email = normalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return domain.Invitation{}, "", ErrInvalidEmail
	}
	role, ok := domain.ParseRole(string(role))
	if !ok {
		return domain.Invitation{}, "", ErrInvalidRole
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Invitation{}, "", err
	}
	now := s.Clock.Now()
	inv := domain.Invitation{
		ID:        idx.NewAt(now).String(),
		Email:     email,
		Role:      role,
		Status:    domain.InvitationPending,
		TokenHash: cryptox.FingerprintToken(token),
		CreatedBy: createdBy,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(ttlHours) * time.Hour),
	}
	if err := s.Store.Invitations().CreateInvitation(ctx, inv); err != nil {
		return domain.Invitation{}, "", err
	}

	slogx.FromContext(ctx).Info("invitation created",
		slog.String("invitation_id", inv.ID),
		slog.String("role", string(inv.Role)),
		slog.String("created_by", createdBy),
		slog.Time("expires_at", inv.ExpiresAt))

	s.Notifier.Dispatch(ctx, inv, token, s.acceptLink(token))
	return inv, token, nil
}

func (s *InvitationService) acceptLink(token string) string {
	if s.AcceptURL == "" {
		return ""
	}
	return s.AcceptURL + "?token=" + url.QueryEscape(token)
}

func (s *InvitationService) byToken(ctx context.Context, st store.Store, token string) (domain.Invitation, error) {
	if token == "" {
		return domain.Invitation{}, ErrInvitationNotFound
	}
	inv, err := st.Invitations().GetInvitationByTokenHash(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Invitation{}, ErrInvitationNotFound
	}
	return inv, err
}

// IsValid reports whether token names a PENDING, unexpired invitation.
func (s *InvitationService) IsValid(ctx context.Context, token string) (bool, error) {
	inv, err := s.byToken(ctx, s.Store, token)
	if errors.Is(err, ErrInvitationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return inv.IsValid(s.Clock.Now())
}

// VerifyInvitation returns the invitation if it can still be accepted.
func (s *InvitationService) VerifyInvitation(ctx context.Context, token string) (domain.Invitation, error) {
	inv, err := s.byToken(ctx, s.Store, token)
	if err != nil {
		return domain.Invitation{}, err
	}
	if err := checkAcceptable(inv, s.Clock.Now()); err != nil {
		return domain.Invitation{}, err
	}
	return inv, nil
}

// checkAcceptable maps a non-acceptable invitation to its typed error.
func checkAcceptable(inv domain.Invitation, now time.Time) error {
	status, err := inv.EffectiveStatus(now)
	if err != nil {
		return err
	}
	switch status {
	case domain.InvitationPending:
		return nil
	case domain.InvitationAccepted:
		return ErrInvitationAccepted
	case domain.InvitationRevoked:
		return ErrInvitationRevoked
	default:
		return ErrInvitationExpired
	}
}

// AcceptInvitation registers the invitee. An existing account with the
// invited email is linked when the supplied password matches it; otherwise
// a new user is created with the invitation's role. The status flip is a
// compare-and-swap so exactly one concurrent caller succeeds.
func (s *InvitationService) AcceptInvitation(ctx context.Context, token string, in AcceptInput) (domain.User, error) {
	log := slogx.FromContext(ctx)

	// Token faults win over input faults; the transaction re-checks.
	pre, err := s.byToken(ctx, s.Store, token)
	if err != nil {
		return domain.User{}, err
	}
	if err := checkAcceptable(pre, s.Clock.Now()); err != nil {
		return domain.User{}, err
	}
	if in.Password == "" {
		return domain.User{}, ErrPasswordRequired
	}
	// Hashing is slow; keep it out of the transaction.
	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	var user domain.User
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		inv, err := s.byToken(ctx, tx, token)
		if err != nil {
			return err
		}
		now := s.Clock.Now()
		if err := checkAcceptable(inv, now); err != nil {
			return err
		}

		existing, found, err := s.Users.FindUserByEmail(ctx, tx, inv.Email)
		if err != nil {
			return err
		}
		if found {
			if !existing.HasPassword() || cryptox.VerifyPassword(in.Password, existing.PasswordHash) != nil {
				return ErrEmailTaken
			}
			user = existing
		} else {
			name := in.Name
			if name == "" {
				name = inv.Email
			}
			user, err = s.Users.CreateUser(ctx, tx, NewUser{
				Email:        inv.Email,
				Name:         name,
				Role:         inv.Role,
				PasswordHash: hash,
			})
			if err != nil {
				return err
			}
		}

		return acceptInvitation(ctx, tx, inv, user.ID, now)
	})
	if err != nil {
		log.Warn("invitation accept failed", slog.Any("error", err))
		return domain.User{}, err
	}

	log.Info("invitation accepted", slog.String("user_id", user.ID))
	return user, nil
}

// acceptInvitation flips the invitation to ACCEPTED inside tx. A lost race
// is reported as the state that won it.
func acceptInvitation(ctx context.Context, tx store.Store, inv domain.Invitation, userID string, now time.Time) error {
	err := tx.Invitations().AcceptInvitation(ctx, inv.ID, userID, now)
	if !errors.Is(err, store.ErrConflict) {
		return err
	}
	cur, gerr := tx.Invitations().GetInvitationByID(ctx, inv.ID)
	if gerr != nil {
		return gerr
	}
	if cerr := checkAcceptable(cur, now); cerr != nil {
		return cerr
	}
	return ErrInvitationAccepted
}

// Revoke cancels a pending invitation by token.
func (s *InvitationService) Revoke(ctx context.Context, token string) error {
	inv, err := s.byToken(ctx, s.Store, token)
	if err != nil {
		return err
	}
	return s.revoke(ctx, inv.ID)
}

// RevokeByID cancels a pending invitation by id.
func (s *InvitationService) RevokeByID(ctx context.Context, id string) error {
	if _, err := s.Store.Invitations().GetInvitationByID(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvitationNotFound
		}
		return err
	}
	return s.revoke(ctx, id)
}

func (s *InvitationService) revoke(ctx context.Context, id string) error {
	err := s.Store.Invitations().RevokeInvitation(ctx, id, s.Clock.Now())
	if errors.Is(err, store.ErrConflict) {
		return ErrInvitationNotPending
	}
	if err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("invitation revoked", slog.String("invitation_id", id))
	return nil
}

// ListInvitations returns every invitation, newest first, with lapsed
// pending invitations reported as EXPIRED.
func (s *InvitationService) ListInvitations(ctx context.Context) ([]domain.Invitation, error) {
	invs, err := s.Store.Invitations().ListInvitations(ctx)
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	for i := range invs {
		invs[i].Status, err = invs[i].EffectiveStatus(now)
		if err != nil {
			return nil, err
		}
	}
	return invs, nil
}
