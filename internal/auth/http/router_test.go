package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/notify"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/service"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store/drivers/sqlite"
	"github.com/factstofaith/gigglefits-sub006/pkg/authsdk"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/cryptox"
	"github.com/factstofaith/gigglefits-sub006/pkg/jwtx"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "http-pepper")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type stubExchanger struct {
	info service.UserInfo
	err  error
}

func (s *stubExchanger) ExchangeCode(context.Context, service.ProviderConfig, string) (service.UserInfo, error) {
	return s.info, s.err
}

type testServer struct {
	t         *testing.T
	clock     *clockx.Fake
	users     *service.UserService
	exchanger *stubExchanger
	router    *Router
}

func newServer(t *testing.T) *testServer {
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

	tokens := &service.TokenService{KeyManager: km, Clock: clock, Issuer: "platform", Audience: []string{"platform-api"}}
	users := &service.UserService{Store: st, Clock: clock, Tokens: tokens}
	mfa := &service.MFAService{Store: st, Clock: clock, Users: users, Issuer: "Platform"}
	users.MFA = mfa
	exchanger := &stubExchanger{}

	r := NewRouter(km.KeySet, km.Verifier, "test", st, clock, slogx.Discard())
	r.UserService = users
	r.MFAService = mfa
	r.InvitationService = &service.InvitationService{
		Store:    st,
		Clock:    clock,
		Users:    users,
		Notifier: &notify.Dispatcher{Notifier: &notify.LogNotifier{Logger: slogx.Discard()}},
	}
	r.OAuthService = &service.OAuthService{
		Store:  st,
		Clock:  clock,
		Users:  users,
		Tokens: tokens,
		Providers: map[string]service.ProviderConfig{
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
	}
	r.ApplyRoutes()

	return &testServer{t: t, clock: clock, users: users, exchanger: exchanger, router: r}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	require.Equal(t, code, decode[authsdk.ErrorResponse](t, rec).Error)
}

// login creates a user and returns an access token for it.
func (s *testServer) login(email string, role domain.Role) (domain.User, string) {
	s.t.Helper()
	u, err := s.users.AddUser(context.Background(), email, "Test User", role, "password-123")
	require.NoError(s.t, err)

	rec := s.do(http.MethodPost, "/auth/login", "", authsdk.LoginRequest{Email: email, Password: "password-123"})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[authsdk.LoginResponse](s.t, rec)
	require.False(s.t, resp.RequiresMFA)
	return u, resp.AccessToken
}

func (s *testServer) invite(adminToken, email string, ttlHours int) authsdk.CreateInvitationResponse {
	s.t.Helper()
	req := authsdk.CreateInvitationRequest{Email: email, Role: "user"}
	if ttlHours != 0 {
		req.TTLHours = &ttlHours
	}
	rec := s.do(http.MethodPost, "/invitations", adminToken, req)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[authsdk.CreateInvitationResponse](s.t, rec)
}

func (s *testServer) totpCode(secret string) string {
	s.t.Helper()
	code, err := totp.GenerateCodeCustom(secret, s.clock.Now(), totp.ValidateOpts{
		Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(s.t, err)
	return code
}

func TestInvitationLifecycle(t *testing.T) {
	s := newServer(t)
	_, admin := s.login("admin@example.com", domain.RoleAdmin)

	inv := s.invite(admin, "New.User@Example.com", 0)
	require.NotEmpty(t, inv.Token)
	require.Equal(t, "new.user@example.com", inv.Email)
	require.Equal(t, "USER", inv.Role)
	require.Equal(t, "PENDING", inv.Status)
	require.Equal(t, t0.Add(DefaultInvitationTTLHours*time.Hour), inv.ExpiresAt.UTC())

	rec := s.do(http.MethodGet, "/invitations/verify/"+inv.Token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[authsdk.VerifyInvitationResponse](t, rec)
	require.True(t, v.Valid)
	require.Equal(t, "new.user@example.com", v.Email)

	rec = s.do(http.MethodPost, "/invitations/accept", "", authsdk.AcceptInvitationRequest{
		Token: inv.Token, Name: "New User", Password: "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[authsdk.UserResponse](t, rec)
	require.Equal(t, "USER", user.Role)
	require.False(t, user.MFAEnabled)

	requireError(t, s.do(http.MethodGet, "/invitations/verify/"+inv.Token, "", nil), http.StatusConflict, authsdk.ErrorCodeConflict)
	requireError(t, s.do(http.MethodPost, "/invitations/accept", "", authsdk.AcceptInvitationRequest{
		Token: inv.Token, Password: "correct-horse",
	}), http.StatusConflict, authsdk.ErrorCodeConflict)

	rec = s.do(http.MethodGet, "/invitations", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[authsdk.ListInvitationsResponse](t, rec)
	require.Len(t, list.Invitations, 1)
	require.Equal(t, "ACCEPTED", list.Invitations[0].Status)
	require.Equal(t, user.ID, list.Invitations[0].AcceptedBy)

	rec = s.do(http.MethodPost, "/auth/login", "", authsdk.LoginRequest{Email: "new.user@example.com", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	me := s.do(http.MethodGet, "/users/me", decode[authsdk.LoginResponse](t, rec).AccessToken, nil)
	require.Equal(t, http.StatusOK, me.Code)
	require.Equal(t, user.ID, decode[authsdk.UserResponse](t, me).ID)
}

func TestInvitationErrors(t *testing.T) {
	s := newServer(t)
	_, admin := s.login("admin@example.com", domain.RoleAdmin)
	_, member := s.login("member@example.com", domain.RoleUser)

	t.Run("requires bearer", func(t *testing.T) {
		requireError(t, s.do(http.MethodPost, "/invitations", "", nil), http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	})

	t.Run("requires admin scope", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/invitations", member, authsdk.CreateInvitationRequest{Email: "x@example.com", Role: "USER"})
		requireError(t, rec, http.StatusForbidden, authsdk.ErrorCodeInsufficientScope)
	})

	t.Run("validation", func(t *testing.T) {
		hours := func(n int) *int { return &n }
		for name, req := range map[string]authsdk.CreateInvitationRequest{
			"bad email":    {Email: "not-an-email", Role: "USER"},
			"bad role":     {Email: "x@example.com", Role: "root"},
			"negative ttl": {Email: "x@example.com", Role: "USER", TTLHours: hours(-1)},
			"zero ttl":     {Email: "x@example.com", Role: "USER", TTLHours: hours(0)},
		} {
			t.Run(name, func(t *testing.T) {
				requireError(t, s.do(http.MethodPost, "/invitations", admin, req), http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
			})
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/invitations", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+admin)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})

	t.Run("unknown token", func(t *testing.T) {
		requireError(t, s.do(http.MethodGet, "/invitations/verify/nope", "", nil), http.StatusNotFound, authsdk.ErrorCodeNotFound)
	})

	t.Run("expired is gone", func(t *testing.T) {
		inv := s.invite(admin, "late@example.com", 1)
		s.clock.Advance(2 * time.Hour)
		defer s.clock.Set(t0)

		requireError(t, s.do(http.MethodGet, "/invitations/verify/"+inv.Token, "", nil), http.StatusGone, authsdk.ErrorCodeGone)
		requireError(t, s.do(http.MethodPost, "/invitations/accept", "", authsdk.AcceptInvitationRequest{
			Token: inv.Token, Password: "correct-horse",
		}), http.StatusGone, authsdk.ErrorCodeGone)
	})

	t.Run("revoke", func(t *testing.T) {
		inv := s.invite(admin, "revoked@example.com", 24)
		rec := s.do(http.MethodDelete, "/invitations/"+inv.ID, admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, decode[authsdk.ResultResponse](t, rec).Success)

		requireError(t, s.do(http.MethodGet, "/invitations/verify/"+inv.Token, "", nil), http.StatusGone, authsdk.ErrorCodeGone)
		requireError(t, s.do(http.MethodDelete, "/invitations/"+inv.ID, admin, nil), http.StatusConflict, authsdk.ErrorCodeConflict)
		requireError(t, s.do(http.MethodDelete, "/invitations/missing", admin, nil), http.StatusNotFound, authsdk.ErrorCodeNotFound)
	})

	t.Run("short password", func(t *testing.T) {
		inv := s.invite(admin, "short@example.com", 24)
		rec := s.do(http.MethodPost, "/invitations/accept", "", authsdk.AcceptInvitationRequest{Token: inv.Token, Password: "x"})
		requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})
}

func TestMFAEndpoints(t *testing.T) {
	s := newServer(t)
	user, token := s.login("mfa@example.com", domain.RoleUser)

	rec := s.do(http.MethodGet, "/users/mfa/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "NONE", decode[authsdk.MFAStatusResponse](t, rec).State)

	rec = s.do(http.MethodPost, "/users/mfa/enroll", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	enr := decode[authsdk.MFAEnrollResponse](t, rec)
	require.NotEmpty(t, enr.Secret)
	require.NotEmpty(t, enr.QRCodePNG)
	require.Contains(t, enr.QRPayload, "otpauth://totp/")

	rec = s.do(http.MethodPost, "/users/mfa/verify", token, authsdk.MFAVerifyRequest{Code: "000000"})
	require.Equal(t, http.StatusOK, rec.Code)
	bad := decode[authsdk.MFAVerifyResponse](t, rec)
	if !bad.Success {
		require.Equal(t, "invalid code", bad.Error)
		require.Empty(t, bad.RecoveryCodes)

		rec = s.do(http.MethodPost, "/users/mfa/verify", token, authsdk.MFAVerifyRequest{Code: s.totpCode(enr.Secret), Secret: enr.Secret})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	ok := decode[authsdk.MFAVerifyResponse](t, rec)
	require.True(t, ok.Success)
	require.Len(t, ok.RecoveryCodes, domain.DefaultRecoveryCodes)

	rec = s.do(http.MethodPost, "/users/mfa/enroll", token, nil)
	requireError(t, rec, http.StatusConflict, authsdk.ErrorCodeConflict)

	rec = s.do(http.MethodGet, "/users/mfa/status", token, nil)
	st := decode[authsdk.MFAStatusResponse](t, rec)
	require.Equal(t, "VERIFIED", st.State)
	require.True(t, st.Enabled)
	require.Equal(t, domain.DefaultRecoveryCodes, st.RemainingRecoveryCodes)

	t.Run("recovery code once", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/users/mfa/recovery-codes/verify", token, authsdk.RecoveryCodeVerifyRequest{Code: ok.RecoveryCodes[0]})
		require.True(t, decode[authsdk.ResultResponse](t, rec).Success)
		rec = s.do(http.MethodPost, "/users/mfa/recovery-codes/verify", token, authsdk.RecoveryCodeVerifyRequest{Code: ok.RecoveryCodes[0]})
		require.Equal(t, http.StatusOK, rec.Code)
		require.False(t, decode[authsdk.ResultResponse](t, rec).Success)

		rec = s.do(http.MethodGet, "/users/mfa/recovery-codes", token, nil)
		counts := decode[authsdk.RecoveryCodeStatusResponse](t, rec)
		require.Equal(t, domain.DefaultRecoveryCodes-1, counts.Remaining)
		require.Equal(t, 1, counts.Used)
	})

	t.Run("login needs second factor", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/auth/login", "", authsdk.LoginRequest{Email: user.Email, Password: "password-123"})
		require.Equal(t, http.StatusOK, rec.Code)
		lr := decode[authsdk.LoginResponse](t, rec)
		require.True(t, lr.RequiresMFA)
		require.Empty(t, lr.AccessToken)
		require.NotEmpty(t, lr.MFAToken)

		s.clock.Advance(30 * time.Second)
		rec = s.do(http.MethodPost, "/auth/login/mfa", "", authsdk.MFALoginRequest{
			UserID: lr.UserID, MFAToken: lr.MFAToken, Code: s.totpCode(enr.Secret),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		tr := decode[authsdk.TokenResponse](t, rec)
		require.Equal(t, "Bearer", tr.TokenType)
		require.Positive(t, tr.ExpiresIn)

		// The challenge is spent.
		rec = s.do(http.MethodPost, "/auth/login/mfa", "", authsdk.MFALoginRequest{
			UserID: lr.UserID, MFAToken: lr.MFAToken, Code: s.totpCode(enr.Secret),
		})
		requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeUnauthorized)
	})

	t.Run("regenerate", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/users/mfa/recovery-codes/regenerate", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		fresh := decode[authsdk.RecoveryCodesResponse](t, rec).RecoveryCodes
		require.Len(t, fresh, domain.DefaultRecoveryCodes)

		rec = s.do(http.MethodPost, "/users/mfa/recovery-codes/verify", token, authsdk.RecoveryCodeVerifyRequest{Code: ok.RecoveryCodes[1]})
		require.False(t, decode[authsdk.ResultResponse](t, rec).Success)
	})

	t.Run("disable", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/users/mfa/disable", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, decode[authsdk.ResultResponse](t, rec).Success)

		requireError(t, s.do(http.MethodPost, "/users/mfa/disable", token, nil), http.StatusConflict, authsdk.ErrorCodeConflict)
		requireError(t, s.do(http.MethodGet, "/users/mfa/recovery-codes", token, nil), http.StatusConflict, authsdk.ErrorCodeConflict)
	})
}

func TestVerifyWithoutEnrollment(t *testing.T) {
	s := newServer(t)
	_, token := s.login("plain@example.com", domain.RoleUser)

	rec := s.do(http.MethodPost, "/users/mfa/verify", token, authsdk.MFAVerifyRequest{Code: "123456"})
	requireError(t, rec, http.StatusConflict, authsdk.ErrorCodeConflict)
}

func TestAdminEndpoints(t *testing.T) {
	s := newServer(t)
	admin, adminToken := s.login("admin@example.com", domain.RoleAdmin)
	member, memberToken := s.login("member@example.com", domain.RoleUser)

	t.Run("settings", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/admin/mfa/settings", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[authsdk.MFASettingsResponse](t, rec)
		require.Equal(t, domain.DefaultRecoveryCodes, got.RecoveryCodeCount)
		require.Nil(t, got.UpdatedAt)

		rec = s.do(http.MethodPut, "/admin/mfa/settings", adminToken, authsdk.MFASettingsRequest{RecoveryCodeCount: 7})
		requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)

		rec = s.do(http.MethodPut, "/admin/mfa/settings", adminToken, authsdk.MFASettingsRequest{RequiredForAdmins: true, RecoveryCodeCount: 12})
		require.Equal(t, http.StatusOK, rec.Code)

		got = decode[authsdk.MFASettingsResponse](t, s.do(http.MethodGet, "/admin/mfa/settings", adminToken, nil))
		require.True(t, got.RequiredForAdmins)
		require.Equal(t, 12, got.RecoveryCodeCount)
		require.Equal(t, admin.ID, got.UpdatedBy)

		requireError(t, s.do(http.MethodGet, "/admin/mfa/settings", memberToken, nil), http.StatusForbidden, authsdk.ErrorCodeInsufficientScope)
	})

	t.Run("reset mfa", func(t *testing.T) {
		requireError(t, s.do(http.MethodPost, "/admin/users/"+member.ID+"/mfa/reset", adminToken, nil), http.StatusConflict, authsdk.ErrorCodeConflict)

		enr := decode[authsdk.MFAEnrollResponse](t, s.do(http.MethodPost, "/users/mfa/enroll", memberToken, nil))
		rec := s.do(http.MethodPost, "/users/mfa/verify", memberToken, authsdk.MFAVerifyRequest{Code: s.totpCode(enr.Secret)})
		res := decode[authsdk.MFAVerifyResponse](t, rec)
		require.True(t, res.Success)
		require.Len(t, res.RecoveryCodes, 12)

		rec = s.do(http.MethodPost, "/admin/users/"+member.ID+"/mfa/reset", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		st := decode[authsdk.MFAStatusResponse](t, s.do(http.MethodGet, "/users/mfa/status", memberToken, nil))
		require.Equal(t, "NONE", st.State)
		require.False(t, st.Enabled)
	})

	t.Run("delete user", func(t *testing.T) {
		requireError(t, s.do(http.MethodDelete, "/admin/users/"+admin.ID, adminToken, nil), http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)

		rec := s.do(http.MethodDelete, "/admin/users/"+member.ID, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		requireError(t, s.do(http.MethodGet, "/users/me", memberToken, nil), http.StatusNotFound, authsdk.ErrorCodeNotFound)
		requireError(t, s.do(http.MethodDelete, "/admin/users/"+member.ID, adminToken, nil), http.StatusNotFound, authsdk.ErrorCodeNotFound)
	})
}

func TestLoginRejected(t *testing.T) {
	s := newServer(t)
	s.login("user@example.com", domain.RoleUser)

	rec := s.do(http.MethodPost, "/auth/login", "", authsdk.LoginRequest{Email: "user@example.com", Password: "wrong"})
	requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeUnauthorized)

	rec = s.do(http.MethodPost, "/auth/login", "", authsdk.LoginRequest{Email: "nobody@example.com", Password: "wrong"})
	requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeUnauthorized)

	rec = s.do(http.MethodPost, "/auth/login", "", authsdk.LoginRequest{Email: "not-an-email", Password: "x"})
	requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
}

func TestLoginRateLimited(t *testing.T) {
	s := newServer(t)
	var last int
	for range 10 {
		last = s.do(http.MethodPost, "/auth/login", "", authsdk.LoginRequest{Email: "x@example.com", Password: "wrong"}).Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}

func TestOAuthEndpoints(t *testing.T) {
	s := newServer(t)
	_, admin := s.login("admin@example.com", domain.RoleAdmin)
	inv := s.invite(admin, "oauth@example.com", 24)

	rec := s.do(http.MethodGet, "/invitations/oauth/google/authorize?token="+url.QueryEscape(inv.Token), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	auth := decode[authsdk.OAuthAuthorizeResponse](t, rec)
	require.True(t, strings.HasPrefix(auth.State, inv.Token+"_"))
	u, err := url.Parse(auth.AuthURL)
	require.NoError(t, err)
	require.Equal(t, "accounts.example.com", u.Host)
	require.Equal(t, "client-1", u.Query().Get("client_id"))
	require.Equal(t, auth.State, u.Query().Get("state"))

	requireError(t, s.do(http.MethodGet, "/invitations/oauth/myspace/authorize?token="+url.QueryEscape(inv.Token), "", nil),
		http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	requireError(t, s.do(http.MethodGet, "/invitations/oauth/google/authorize?token=nope", "", nil),
		http.StatusNotFound, authsdk.ErrorCodeNotFound)
	requireError(t, s.do(http.MethodGet, "/invitations/oauth/google/authorize", "", nil),
		http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)

	callback := func(state string) *httptest.ResponseRecorder {
		q := url.Values{"code": {"auth-code"}, "state": {state}}
		return s.do(http.MethodGet, "/invitations/oauth/google/callback?"+q.Encode(), "", nil)
	}

	t.Run("bad state", func(t *testing.T) {
		requireError(t, callback("no-separator"), http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})

	t.Run("provider error", func(t *testing.T) {
		requireError(t, s.do(http.MethodGet, "/invitations/oauth/google/callback?error=access_denied", "", nil),
			http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})

	t.Run("upstream failure", func(t *testing.T) {
		s.exchanger.err = fmt.Errorf("%w: token endpoint returned 500", service.ErrUpstream)
		defer func() { s.exchanger.err = nil }()
		requireError(t, callback(auth.State), http.StatusBadGateway, authsdk.ErrorCodeUpstream)
	})

	t.Run("success", func(t *testing.T) {
		s.exchanger.info = service.UserInfo{ID: "g-42", Email: "oauth@example.com", Name: "O. Auth", Roles: []string{"eng"}}
		rec := callback(auth.State)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res := decode[authsdk.OAuthCallbackResponse](t, rec)
		require.False(t, res.AccountLinked)
		require.Equal(t, "google", res.User.OAuthProvider)
		require.Equal(t, "USER", res.User.Role)
		require.NotEmpty(t, res.AccessToken)

		requireError(t, callback(auth.State), http.StatusConflict, authsdk.ErrorCodeConflict)

		rec = s.do(http.MethodPost, "/invitations/oauth/google/revocation", admin, authsdk.OAuthRevocationRequest{UserID: res.User.ID})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, []string{"eng"}, decode[authsdk.OAuthRevocationResponse](t, rec).Removed)

		rec = s.do(http.MethodPost, "/invitations/oauth/google/revocation", res.AccessToken, authsdk.OAuthRevocationRequest{UserID: res.User.ID})
		requireError(t, rec, http.StatusForbidden, authsdk.ErrorCodeInsufficientScope)
	})

	t.Run("mfa user gets challenge", func(t *testing.T) {
		member, memberToken := s.login("second@example.com", domain.RoleUser)
		enr := decode[authsdk.MFAEnrollResponse](t, s.do(http.MethodPost, "/users/mfa/enroll", memberToken, nil))
		rec := s.do(http.MethodPost, "/users/mfa/verify", memberToken, authsdk.MFAVerifyRequest{Code: s.totpCode(enr.Secret), Secret: enr.Secret})
		require.True(t, decode[authsdk.MFAVerifyResponse](t, rec).Success)

		inv := s.invite(admin, "second@example.com", 24)
		rec = s.do(http.MethodGet, "/invitations/oauth/google/authorize?token="+url.QueryEscape(inv.Token), "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		s.exchanger.info = service.UserInfo{ID: "g-43", Email: "second@example.com"}
		rec = callback(decode[authsdk.OAuthAuthorizeResponse](t, rec).State)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res := decode[authsdk.OAuthCallbackResponse](t, rec)
		require.True(t, res.AccountLinked)
		require.True(t, res.RequiresMFA)
		require.Empty(t, res.AccessToken)
		require.NotEmpty(t, res.MFAToken)

		rec = s.do(http.MethodPost, "/auth/login/mfa", "", authsdk.MFALoginRequest{
			UserID: member.ID, MFAToken: res.MFAToken, Code: s.totpCode(enr.Secret),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NotEmpty(t, decode[authsdk.TokenResponse](t, rec).AccessToken)
	})
}

func TestSystemEndpoints(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", decode[authsdk.HealthResponse](t, rec).Version)

	rec = s.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[authsdk.HealthResponse](t, rec)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)

	rec = s.do(http.MethodGet, "/.well-known/jwks.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[authsdk.JWKSResponse](t, rec).Keys, 1)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{service.ErrInvalidTTL, http.StatusBadRequest},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrInvitationNotFound, http.StatusNotFound},
		{service.ErrInvitationAccepted, http.StatusConflict},
		{service.ErrMFAAlreadyEnabled, http.StatusConflict},
		{service.ErrMFANotEnabled, http.StatusConflict},
		{service.ErrEmailTaken, http.StatusConflict},
		{service.ErrInvitationExpired, http.StatusGone},
		{service.ErrInvitationRevoked, http.StatusGone},
		{fmt.Errorf("wrapped: %w", service.ErrUpstream), http.StatusBadGateway},
		{clockx.ErrNaiveTimestamp, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: %q", clockx.ErrNaiveTimestamp, "2025-06-01T09:00:00"), http.StatusUnprocessableEntity},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, _ := statusFor(tt.err)
			require.Equal(t, tt.status, status)
		})
	}

	require.Equal(t, "ttl_hours must be positive", describe(service.ErrInvalidTTL))

	rec := httptest.NewRecorder()
	writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("load invitation: %w", clockx.ErrNaiveTimestamp), "verify invitation")
	requireError(t, rec, http.StatusUnprocessableEntity, authsdk.ErrorCodeInvalidRequest)
	require.Equal(t, "timestamp has no timezone", decode[authsdk.ErrorResponse](t, rec).ErrorDescription)
}
