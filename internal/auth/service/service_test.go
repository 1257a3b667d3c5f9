package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/notify"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store/drivers/sqlite"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/cryptox"
	"github.com/factstofaith/gigglefits-sub006/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "service-pepper")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type sentInvitation struct {
	inv   domain.Invitation
	token string
	url   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentInvitation
	err  error
}

func (f *fakeNotifier) SendInvitation(_ context.Context, inv domain.Invitation, token, acceptURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentInvitation{inv, token, acceptURL})
	return f.err
}

type stubExchanger struct {
	info UserInfo
	err  error
	code string
}

func (s *stubExchanger) ExchangeCode(_ context.Context, _ ProviderConfig, code string) (UserInfo, error) {
	s.code = code
	return s.info, s.err
}

type testEnv struct {
	clock     *clockx.Fake
	store     store.Store
	tokens    *TokenService
	users     *UserService
	mfa       *MFAService
	invites   *InvitationService
	oauth     *OAuthService
	notifier  *fakeNotifier
	exchanger *stubExchanger
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	clock := clockx.NewFake(t0)
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:   "platform",
		Audience: []string{"platform-api"},
		NumKeys:  1,
		Now:      clock.Now,
	})
	require.NoError(t, err)

	tokens := &TokenService{KeyManager: km, Clock: clock, Issuer: "platform", Audience: []string{"platform-api"}}
	users := &UserService{Store: st, Clock: clock, Tokens: tokens}
	mfa := &MFAService{Store: st, Clock: clock, Users: users, Issuer: "Platform"}
	users.MFA = mfa

	notifier := &fakeNotifier{}
	exchanger := &stubExchanger{}
	return &testEnv{
		clock:  clock,
		store:  st,
		tokens: tokens,
		users:  users,
		mfa:    mfa,
		invites: &InvitationService{
			Store:     st,
			Clock:     clock,
			Users:     users,
			Notifier:  &notify.Dispatcher{Notifier: notifier},
			AcceptURL: "https://platform.example.com/invitations/accept",
		},
		oauth: &OAuthService{
			Store:  st,
			Clock:  clock,
			Users:  users,
			Tokens: tokens,
			Providers: map[string]ProviderConfig{
				"google": {
					Name:        "Google",
					ClientID:    "client-1",
					RedirectURI: "https://platform.example.com/invitations/oauth/google/callback",
					AuthURL:     "https://accounts.example.com/auth",
					TokenURL:    "https://accounts.example.com/token",
					Scopes:      []string{"openid", "email"},
				},
			},
			Exchanger: exchanger,
		},
		notifier:  notifier,
		exchanger: exchanger,
	}
}

func (e *testEnv) addUser(t *testing.T, email string, role domain.Role, password string) domain.User {
	t.Helper()
	u, err := e.users.AddUser(context.Background(), email, "Test User", role, password)
	require.NoError(t, err)
	return u
}

func (e *testEnv) invite(t *testing.T, email string, role domain.Role, ttlHours int) (domain.Invitation, string) {
	t.Helper()
	inv, token, err := e.invites.CreateInvitation(context.Background(), email, role, ttlHours, "admin-1")
	require.NoError(t, err)
	return inv, token
}

func (e *testEnv) totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, e.clock.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// enableMFA runs enrollment and verification and returns the secret and
// recovery codes.
func (e *testEnv) enableMFA(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()
	enr, err := e.mfa.InitiateEnrollment(ctx, userID)
	require.NoError(t, err)
	res, err := e.mfa.VerifyCode(ctx, userID, e.totpCode(t, enr.Secret), enr.Secret)
	require.NoError(t, err)
	require.True(t, res.Success)
	return enr.Secret, res.RecoveryCodes
}

func TestTokenService(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "a@example.com", domain.RoleAdmin, "pw-123456")

	tok, err := e.tokens.Issue(ctx, u, []string{jwtx.AMRPassword})
	require.NoError(t, err)
	require.Equal(t, t0.Add(jwtx.DefaultAccessTokenTTL), tok.ExpiresAt)

	id, err := e.tokens.Validate(tok.Token)
	require.NoError(t, err)
	require.Equal(t, u.ID, id)

	claims, err := e.tokens.KeyManager.Verifier.Verify(tok.Token)
	require.NoError(t, err)
	require.True(t, claims.HasScope(domain.ScopeAdminWrite))

	t.Run("tampered", func(t *testing.T) {
		bad := tok.Token[:len(tok.Token)-10] + strings.Repeat("A", 10)
		_, err := e.tokens.Validate(bad)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		e.clock.Advance(jwtx.DefaultAccessTokenTTL + time.Second)
		defer e.clock.Set(t0)
		_, err := e.tokens.Validate(tok.Token)
		require.ErrorIs(t, err, ErrInvalidToken)
		require.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestBootstrapService(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	t.Run("no admin configured", func(t *testing.T) {
		b := &BootstrapService{Store: e.store, Users: e.users}
		created, err := b.Run(ctx)
		require.NoError(t, err)
		require.False(t, created)
	})

	b := &BootstrapService{
		Store: e.store,
		Users: e.users,
		Admin: domain.BootstrapAdmin{Email: "root@example.com", Password: "bootstrap-pw"},
	}
	created, err := b.Run(ctx)
	require.NoError(t, err)
	require.True(t, created)

	admin, err := e.users.GetUserByEmail(ctx, "ROOT@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, admin.Role)

	created, err = b.Run(ctx)
	require.NoError(t, err)
	require.False(t, created)

	t.Run("missing password", func(t *testing.T) {
		e2 := newEnv(t)
		b := &BootstrapService{Store: e2.store, Users: e2.users, Admin: domain.BootstrapAdmin{Email: "root@example.com"}}
		_, err := b.Run(ctx)
		require.ErrorIs(t, err, ErrBootstrapFailedToCreateAdmin)
		require.ErrorIs(t, err, ErrPasswordRequired)
	})
}

func TestHousekeepingService(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "a@example.com", domain.RoleUser, "pw-123456")
	e.enableMFA(t, u.ID)

	_, err := e.users.Login(ctx, "a@example.com", "pw-123456")
	require.NoError(t, err)

	h := NewHousekeepingService(e.store, e.clock, slog.New(slog.DiscardHandler), time.Hour)
	require.Equal(t, int64(0), h.Cleanup(ctx))

	e.clock.Advance(DefaultLoginChallengeTTL + time.Second)
	require.Equal(t, int64(1), h.Cleanup(ctx))
}

func TestHousekeepingService_StartStop(t *testing.T) {
	e := newEnv(t)
	h := NewHousekeepingService(e.store, e.clock, slog.New(slog.DiscardHandler), 0)
	require.Equal(t, time.Hour, h.Interval)
	h.Start()
	h.Stop()
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{ErrInvalidState, ErrValidation},
		{ErrInvalidInvitationToken, ErrValidation},
		{ErrInvitationNotFound, ErrNotFound},
		{ErrInvitationRevoked, ErrExpired},
		{ErrInvitationAccepted, ErrAlreadyAccepted},
		{ErrMFAAlreadyEnabled, ErrAlreadyEnabled},
		{ErrMFANotEnrolling, ErrNotEnabled},
		{ErrEmailTaken, ErrConflict},
		{ErrTooManyAttempts, ErrUnauthorized},
	}
	for _, tt := range tests {
		require.True(t, errors.Is(tt.err, tt.kind), tt.err.Error())
	}
	require.Equal(t, "validation error: Invalid state parameter", ErrInvalidState.Error())
}
