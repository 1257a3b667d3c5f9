package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/cryptox"
	"github.com/factstofaith/gigglefits-sub006/pkg/idx"
	"github.com/factstofaith/gigglefits-sub006/pkg/jwtx"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"
	"github.com/factstofaith/gigglefits-sub006/pkg/validate"
)

// DefaultLoginChallengeTTL bounds how long an mfa_token stays redeemable.
const DefaultLoginChallengeTTL = 5 * time.Minute

// UserBridge is the Auth/Session Bridge as seen by the invitation, MFA and
// OAuth services. Methods taking a store.Store run against that store so
// callers can include them in their own transaction.
type UserBridge interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	FindUserByEmail(ctx context.Context, st store.Store, email string) (domain.User, bool, error)
	CreateUser(ctx context.Context, st store.Store, in NewUser) (domain.User, error)
	LinkOAuth(ctx context.Context, st store.Store, userID, provider, oauthID string) (domain.User, error)
	StartChallenge(ctx context.Context, user domain.User, firstFactor string) (LoginResult, error)
	SetMFAEnabled(ctx context.Context, st store.Store, userID string, enabled bool) error
}

// MFAGate is the part of the MFA Store used during login and deletion.
type MFAGate interface {
	VerifyLoginCode(ctx context.Context, st store.Store, userID, method, code string) (Result, error)
	RemoveForUser(ctx context.Context, st store.Store, userID string) error
	Settings(ctx context.Context) (domain.MFASettings, error)
}

// NewUser describes a user to create. PasswordHash is already argon2id
// encoded; it is empty for OAuth-only users.
type NewUser struct {
	Email         string
	Name          string
	Role          domain.Role
	PasswordHash  string
	OAuthProvider string
	OAuthID       string
}

// UserService owns user records, role grants and sign-in.
type UserService struct {
	Store        store.Store
	Clock        clockx.Clock
	Tokens       *TokenService
	MFA          MFAGate
	ChallengeTTL time.Duration
}

var _ UserBridge = (*UserService)(nil)

func (s *UserService) on(st store.Store) store.Store {
	if st == nil {
		return s.Store
	}
	return st
}

func (s *UserService) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

func (s *UserService) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, found, err := s.FindUserByEmail(ctx, nil, email)
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, ErrUserNotFound
	}
	return u, nil
}

// FindUserByEmail looks a user up case-insensitively.
func (s *UserService) FindUserByEmail(ctx context.Context, st store.Store, email string) (domain.User, bool, error) {
	u, err := s.on(st).Users().GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return u, true, nil
}

// AddUser creates a user with a local password in its own transaction.
func (s *UserService) AddUser(ctx context.Context, email, name string, role domain.Role, password string) (domain.User, error) {
	if password == "" {
		return domain.User{}, ErrPasswordRequired
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	var user domain.User
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		user, err = s.CreateUser(ctx, tx, NewUser{Email: email, Name: name, Role: role, PasswordHash: hash})
		return err
	})
	return user, err
}

// CreateUser inserts the user and its role grants: USER as a DEFAULT grant
// and any other role as a LOCAL grant.
func (s *UserService) CreateUser(ctx context.Context, st store.Store, in NewUser) (domain.User, error) {
	st = s.on(st)
	email := normalizeEmail(in.Email)
	if err := validate.Var(email, "required,email"); err != nil {
		return domain.User{}, ErrInvalidEmail
	}
	role, ok := domain.ParseRole(string(in.Role))
	if !ok {
		return domain.User{}, ErrInvalidRole
	}
	if (in.OAuthProvider == "") != (in.OAuthID == "") {
		return domain.User{}, fmt.Errorf("%w: oauth provider and id must be set together", ErrValidation)
	}

	now := s.Clock.Now()
	user := domain.User{
		ID:            idx.New().String(),
		Email:         email,
		Name:          strings.TrimSpace(in.Name),
		Role:          role,
		PasswordHash:  in.PasswordHash,
		OAuthProvider: in.OAuthProvider,
		OAuthID:       in.OAuthID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := st.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	grants := []domain.RoleGrant{{UserID: user.ID, Name: string(domain.RoleUser), Source: domain.RoleSourceDefault, CreatedAt: now}}
	if user.Role != domain.RoleUser {
		grants = append(grants, domain.RoleGrant{UserID: user.ID, Name: string(user.Role), Source: domain.RoleSourceLocal, CreatedAt: now})
	}
	for _, g := range grants {
		if err := st.RoleGrants().GrantRole(ctx, g); err != nil {
			return domain.User{}, err
		}
	}

	slogx.FromContext(ctx).Info("user created",
		slog.String("user_id", user.ID), slog.String("role", string(user.Role)),
		slog.Bool("oauth", user.IsOAuthLinked()))
	return user, nil
}

// LinkOAuth attaches an OAuth identity to an existing user.
func (s *UserService) LinkOAuth(ctx context.Context, st store.Store, userID, provider, oauthID string) (domain.User, error) {
	st = s.on(st)
	if provider == "" || oauthID == "" {
		return domain.User{}, fmt.Errorf("%w: oauth provider and id are required", ErrValidation)
	}
	err := st.Users().SetOAuthIdentity(ctx, userID, provider, oauthID, s.Clock.Now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, ErrUserNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return domain.User{}, ErrOAuthIdentityTaken
	case err != nil:
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("oauth identity linked",
		slog.String("user_id", userID), slog.String("provider", provider))
	return st.Users().GetUserByID(ctx, userID)
}

// SetMFAEnabled is the only writer of User.MFAEnabled.
func (s *UserService) SetMFAEnabled(ctx context.Context, st store.Store, userID string, enabled bool) error {
	err := s.on(st).Users().SetMFAEnabled(ctx, userID, enabled, s.Clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// RoleGrants lists the user's role grants.
func (s *UserService) RoleGrants(ctx context.Context, userID string) ([]domain.RoleGrant, error) {
	return s.Store.RoleGrants().ListRoleGrants(ctx, userID)
}

// DeleteUser removes the user. MFA state, role grants and pending login
// challenges go with it in the same transaction.
func (s *UserService) DeleteUser(ctx context.Context, actorID, userID string) error {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Users().GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if err := s.MFA.RemoveForUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := tx.RoleGrants().DeleteAllRoleGrants(ctx, userID); err != nil {
			return err
		}
		if err := tx.LoginChallenges().DeleteUserLoginChallenges(ctx, userID); err != nil {
			return err
		}
		return tx.Users().DeleteUser(ctx, userID)
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("user deleted",
		slog.String("user_id", userID), slog.String("actor_id", actorID))
	return nil
}

// LoginResult is either a token or an MFA challenge.
type LoginResult struct {
	RequiresMFA           bool
	UserID                string
	MFAToken              string
	ChallengeExpiresAt    time.Time
	Token                 domain.AccessToken
	MFAEnrollmentRequired bool
}

// Login checks a password. Users with MFA enabled get a short-lived
// challenge instead of a token.
func (s *UserService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	log := slogx.FromContext(ctx)

	user, found, err := s.FindUserByEmail(ctx, nil, email)
	if err != nil {
		return LoginResult{}, err
	}
	if !found || !user.HasPassword() {
		log.Info("login rejected", slog.String("reason", "unknown user or no password"))
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		log.Info("login rejected", slog.String("user_id", user.ID), slog.String("reason", "bad password"))
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		return s.StartChallenge(ctx, user, jwtx.AMRPassword)
	}

	tok, err := s.Tokens.Issue(ctx, user, []string{jwtx.AMRPassword})
	if err != nil {
		return LoginResult{}, err
	}
	res := LoginResult{UserID: user.ID, Token: tok}

	if user.Role == domain.RoleAdmin {
		settings, err := s.MFA.Settings(ctx)
		if err != nil {
			return LoginResult{}, err
		}
		res.MFAEnrollmentRequired = settings.RequiredForAdmins
	}
	log.Info("login succeeded", slog.String("user_id", user.ID))
	return res, nil
}

// StartChallenge opens a short-lived MFA login challenge for user, who has
// already presented firstFactor (an AMR value).
func (s *UserService) StartChallenge(ctx context.Context, user domain.User, firstFactor string) (LoginResult, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return LoginResult{}, err
	}
	ttl := s.ChallengeTTL
	if ttl <= 0 {
		ttl = DefaultLoginChallengeTTL
	}
	now := s.Clock.Now()
	ch := domain.LoginChallenge{
		ID:          idx.New().String(),
		TokenHash:   cryptox.FingerprintToken(token),
		UserID:      user.ID,
		FirstFactor: firstFactor,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := s.Store.LoginChallenges().CreateLoginChallenge(ctx, ch); err != nil {
		return LoginResult{}, err
	}

	slogx.FromContext(ctx).Info("login requires mfa", slog.String("user_id", user.ID))
	return LoginResult{
		RequiresMFA:        true,
		UserID:             user.ID,
		MFAToken:           token,
		ChallengeExpiresAt: ch.ExpiresAt,
	}, nil
}

// MFALoginInput completes a challenged login.
type MFALoginInput struct {
	UserID   string
	MFAToken string
	Code     string
	Method   string // totp (default) or recovery_code
}

// CompleteMFALogin re-validates the second factor through the MFA Store and
// only then issues a token. A challenge is burned after
// domain.MaxLoginChallengeAttempts failures or one success.
func (s *UserService) CompleteMFALogin(ctx context.Context, in MFALoginInput) (domain.AccessToken, error) {
	method := in.Method
	if method == "" {
		method = domain.MFAMethodTOTP
	}
	if method != domain.MFAMethodTOTP && method != domain.MFAMethodRecoveryCode {
		return domain.AccessToken{}, fmt.Errorf("%w: unsupported method %q", ErrValidation, method)
	}

	log := slogx.FromContext(ctx)
	hash := cryptox.FingerprintToken(in.MFAToken)
	now := s.Clock.Now()

	var (
		user        domain.User
		firstFactor string
		outcome     error
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		ch, err := tx.LoginChallenges().GetLoginChallenge(ctx, hash, now)
		if errors.Is(err, store.ErrNotFound) {
			outcome = ErrInvalidMFAToken
			return nil
		}
		if err != nil {
			return err
		}
		if ch.UserID != in.UserID {
			outcome = ErrInvalidMFAToken
			return nil
		}
		if ch.Attempts >= domain.MaxLoginChallengeAttempts {
			outcome = ErrTooManyAttempts
			return tx.LoginChallenges().DeleteLoginChallenge(ctx, hash)
		}

		res, err := s.MFA.VerifyLoginCode(ctx, tx, ch.UserID, method, in.Code)
		if err != nil {
			return err
		}
		if !res.Success {
			n, err := tx.LoginChallenges().IncrementAttempts(ctx, hash)
			if err != nil {
				return err
			}
			outcome = ErrInvalidMFACode
			if n >= domain.MaxLoginChallengeAttempts {
				outcome = ErrTooManyAttempts
				return tx.LoginChallenges().DeleteLoginChallenge(ctx, hash)
			}
			return nil
		}

		if err := tx.LoginChallenges().DeleteLoginChallenge(ctx, hash); err != nil {
			return err
		}
		firstFactor = ch.FirstFactor
		user, err = tx.Users().GetUserByID(ctx, ch.UserID)
		return err
	})
	if err != nil {
		return domain.AccessToken{}, err
	}
	if outcome != nil {
		log.Info("mfa login rejected", slog.String("user_id", in.UserID), slog.Any("error", outcome))
		return domain.AccessToken{}, outcome
	}

	if firstFactor == "" {
		firstFactor = jwtx.AMRPassword
	}
	amr := []string{firstFactor, jwtx.AMRMFA}
	log.Info("mfa login succeeded", slog.String("user_id", user.ID), slog.String("method", method))
	return s.Tokens.Issue(ctx, user, amr)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
