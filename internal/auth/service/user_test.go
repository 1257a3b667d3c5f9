package service

import (
	"context"
	"testing"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
	"github.com/factstofaith/gigglefits-sub006/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestAddUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u := e.addUser(t, " Admin@Example.com", domain.RoleAdmin, "pw-123456")
	require.Equal(t, "admin@example.com", u.Email)
	require.True(t, u.HasPassword())

	got, err := e.users.GetUserByEmail(ctx, "ADMIN@EXAMPLE.COM")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	grants, err := e.users.RoleGrants(ctx, u.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"USER/DEFAULT", "ADMIN/LOCAL"}, grantKeys(grants))

	_, err = e.users.AddUser(ctx, "admin@example.com", "Dup", domain.RoleUser, "pw")
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = e.users.AddUser(ctx, "x@example.com", "X", domain.RoleUser, "")
	require.ErrorIs(t, err, ErrPasswordRequired)

	_, err = e.users.AddUser(ctx, "x@example.com", "X", "OWNER", "pw")
	require.ErrorIs(t, err, ErrInvalidRole)

	_, err = e.users.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
	_, err = e.users.GetUserByEmail(ctx, "missing@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUser_OAuthPairing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.users.CreateUser(ctx, nil, NewUser{Email: "a@example.com", Role: domain.RoleUser, OAuthProvider: "google"})
	require.ErrorIs(t, err, ErrValidation)

	u, err := e.users.CreateUser(ctx, nil, NewUser{Email: "a@example.com", Role: domain.RoleUser, OAuthProvider: "google", OAuthID: "g-1"})
	require.NoError(t, err)
	require.True(t, u.IsOAuthLinked())
	require.False(t, u.HasPassword())
}

func TestLinkOAuth(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.addUser(t, "a@example.com", domain.RoleUser, "pw-123456")
	b := e.addUser(t, "b@example.com", domain.RoleUser, "pw-123456")

	linked, err := e.users.LinkOAuth(ctx, nil, a.ID, "google", "g-1")
	require.NoError(t, err)
	require.Equal(t, "google", linked.OAuthProvider)
	require.Equal(t, "g-1", linked.OAuthID)

	_, err = e.users.LinkOAuth(ctx, nil, b.ID, "google", "g-1")
	require.ErrorIs(t, err, ErrOAuthIdentityTaken)

	_, err = e.users.LinkOAuth(ctx, nil, b.ID, "google", "")
	require.ErrorIs(t, err, ErrValidation)

	_, err = e.users.LinkOAuth(ctx, nil, "missing", "google", "g-2")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "a@example.com", domain.RoleUser, "pw-123456")

	res, err := e.users.Login(ctx, "A@example.com", "pw-123456")
	require.NoError(t, err)
	require.False(t, res.RequiresMFA)
	require.Equal(t, u.ID, res.UserID)
	require.Equal(t, []string{jwtx.AMRPassword}, res.Token.AMR)

	id, err := e.tokens.Validate(res.Token.Token)
	require.NoError(t, err)
	require.Equal(t, u.ID, id)

	for _, tc := range []struct{ email, password string }{
		{"a@example.com", "wrong"},
		{"nobody@example.com", "pw-123456"},
	} {
		_, err := e.users.Login(ctx, tc.email, tc.password)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	t.Run("oauth-only users have no password", func(t *testing.T) {
		_, err := e.users.CreateUser(ctx, nil, NewUser{Email: "o@example.com", Role: domain.RoleUser, OAuthProvider: "google", OAuthID: "g-9"})
		require.NoError(t, err)
		_, err = e.users.Login(ctx, "o@example.com", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLogin_AdminEnrollmentRequired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addUser(t, "admin@example.com", domain.RoleAdmin, "pw-123456")

	res, err := e.users.Login(ctx, "admin@example.com", "pw-123456")
	require.NoError(t, err)
	require.False(t, res.MFAEnrollmentRequired)

	_, err = e.mfa.UpdateSettings(ctx, "admin-1", true, 10)
	require.NoError(t, err)

	res, err = e.users.Login(ctx, "admin@example.com", "pw-123456")
	require.NoError(t, err)
	require.True(t, res.MFAEnrollmentRequired)
	require.NotEmpty(t, res.Token.Token)
}

func TestLogin_WithMFA(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "a@example.com", domain.RoleUser, "pw-123456")
	secret, codes := e.enableMFA(t, u.ID)

	res, err := e.users.Login(ctx, "a@example.com", "pw-123456")
	require.NoError(t, err)
	require.True(t, res.RequiresMFA)
	require.Equal(t, u.ID, res.UserID)
	require.NotEmpty(t, res.MFAToken)
	require.Empty(t, res.Token.Token)
	require.Equal(t, t0.Add(DefaultLoginChallengeTTL), res.ChallengeExpiresAt)

	t.Run("wrong user for token", func(t *testing.T) {
		_, err := e.users.CompleteMFALogin(ctx, MFALoginInput{UserID: "other", MFAToken: res.MFAToken, Code: e.totpCode(t, secret)})
		require.ErrorIs(t, err, ErrInvalidMFAToken)
	})

	tok, err := e.users.CompleteMFALogin(ctx, MFALoginInput{UserID: u.ID, MFAToken: res.MFAToken, Code: e.totpCode(t, secret)})
	require.NoError(t, err)
	require.Equal(t, []string{jwtx.AMRPassword, jwtx.AMRMFA}, tok.AMR)

	_, err = e.users.CompleteMFALogin(ctx, MFALoginInput{UserID: u.ID, MFAToken: res.MFAToken, Code: e.totpCode(t, secret)})
	require.ErrorIs(t, err, ErrInvalidMFAToken)

	t.Run("recovery code", func(t *testing.T) {
		res, err := e.users.Login(ctx, "a@example.com", "pw-123456")
		require.NoError(t, err)
		in := MFALoginInput{UserID: u.ID, MFAToken: res.MFAToken, Code: codes[0], Method: domain.MFAMethodRecoveryCode}
		_, err = e.users.CompleteMFALogin(ctx, in)
		require.NoError(t, err)

		res, err = e.users.Login(ctx, "a@example.com", "pw-123456")
		require.NoError(t, err)
		in.MFAToken = res.MFAToken
		_, err = e.users.CompleteMFALogin(ctx, in)
		require.ErrorIs(t, err, ErrInvalidMFACode)
	})

	t.Run("unsupported method", func(t *testing.T) {
		_, err := e.users.CompleteMFALogin(ctx, MFALoginInput{UserID: u.ID, MFAToken: "x", Code: "1", Method: "sms"})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("expired challenge", func(t *testing.T) {
		res, err := e.users.Login(ctx, "a@example.com", "pw-123456")
		require.NoError(t, err)
		e.clock.Advance(DefaultLoginChallengeTTL)
		defer e.clock.Set(t0)
		_, err = e.users.CompleteMFALogin(ctx, MFALoginInput{UserID: u.ID, MFAToken: res.MFAToken, Code: e.totpCode(t, secret)})
		require.ErrorIs(t, err, ErrInvalidMFAToken)
	})
}

func TestCompleteMFALogin_AttemptCap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "a@example.com", domain.RoleUser, "pw-123456")
	secret, _ := e.enableMFA(t, u.ID)

	res, err := e.users.Login(ctx, "a@example.com", "pw-123456")
	require.NoError(t, err)

	wrong := "000000"
	if e.totpCode(t, secret) == wrong {
		wrong = "111111"
	}
	in := MFALoginInput{UserID: u.ID, MFAToken: res.MFAToken, Code: wrong}
	for i := 1; i < domain.MaxLoginChallengeAttempts; i++ {
		_, err := e.users.CompleteMFALogin(ctx, in)
		require.ErrorIs(t, err, ErrInvalidMFACode, "attempt %d", i)
	}
	_, err = e.users.CompleteMFALogin(ctx, in)
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// The challenge is gone even for the right code.
	in.Code = e.totpCode(t, secret)
	_, err = e.users.CompleteMFALogin(ctx, in)
	require.ErrorIs(t, err, ErrInvalidMFAToken)
}

func TestCompleteMFALogin_AfterDisable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "a@example.com", domain.RoleUser, "pw-123456")
	secret, _ := e.enableMFA(t, u.ID)

	res, err := e.users.Login(ctx, "a@example.com", "pw-123456")
	require.NoError(t, err)

	_, err = e.mfa.DisableMFA(ctx, u.ID)
	require.NoError(t, err)

	_, err = e.users.CompleteMFALogin(ctx, MFALoginInput{UserID: u.ID, MFAToken: res.MFAToken, Code: e.totpCode(t, secret)})
	require.ErrorIs(t, err, ErrInvalidMFAToken)
}

func TestDeleteUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.addUser(t, "admin@example.com", domain.RoleAdmin, "pw-123456")
	u := e.addUser(t, "a@example.com", domain.RoleUser, "pw-123456")
	e.enableMFA(t, u.ID)
	_, err := e.users.Login(ctx, "a@example.com", "pw-123456")
	require.NoError(t, err)

	require.NoError(t, e.users.DeleteUser(ctx, admin.ID, u.ID))

	_, err = e.users.GetUserByID(ctx, u.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
	_, err = e.store.MFAConfigs().GetMFAConfig(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	grants, err := e.store.RoleGrants().ListRoleGrants(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, grants)
	remaining, used, err := e.store.RecoveryCodes().CountRecoveryCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, remaining+used)

	n, err := e.store.LoginChallenges().DeleteExpiredLoginChallenges(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)

	require.ErrorIs(t, e.users.DeleteUser(ctx, admin.ID, u.ID), ErrUserNotFound)

	t.Run("email can be reused", func(t *testing.T) {
		e.addUser(t, "a@example.com", domain.RoleUser, "pw-123456")
	})
}
