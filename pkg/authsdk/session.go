package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Session holds an access token. Tokens are short lived and not
// refreshed; log in again once Expired reports true.
type Session struct {
	client      *Client
	accessToken string
	expiresAt   time.Time
}

func newSession(c *Client, accessToken string, expiresIn int) *Session {
	return &Session{
		client:      c,
		accessToken: accessToken,
		expiresAt:   time.Now().Add(time.Duration(expiresIn) * time.Second),
	}
}

// AccessToken returns the bearer token.
func (s *Session) AccessToken() string { return s.accessToken }

// Expired reports whether the token has passed its lifetime. Sessions built
// with Client.NewSession never report expiry.
func (s *Session) Expired() bool {
	return !s.expiresAt.IsZero() && time.Now().After(s.expiresAt)
}

func (s *Session) do(ctx context.Context, method, path string, body, out any, expectedStatus int) error {
	return s.client.do(ctx, method, path, s.accessToken, body, out, expectedStatus)
}

func (s *Session) Me(ctx context.Context) (*UserResponse, error) {
	var out UserResponse
	if err := s.do(ctx, http.MethodGet, "/users/me", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- Invitations ----

func (s *Session) CreateInvitation(ctx context.Context, req CreateInvitationRequest) (*CreateInvitationResponse, error) {
	var out CreateInvitationResponse
	if err := s.do(ctx, http.MethodPost, "/invitations", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) ListInvitations(ctx context.Context) ([]InvitationResponse, error) {
	var out ListInvitationsResponse
	if err := s.do(ctx, http.MethodGet, "/invitations", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Invitations, nil
}

func (s *Session) RevokeInvitation(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/invitations/"+url.PathEscape(id), nil, nil, http.StatusOK)
}

// OAuthRevocation drops the OAUTH role grants no longer reported by the
// provider for userID.
func (s *Session) OAuthRevocation(ctx context.Context, provider string, req OAuthRevocationRequest) ([]string, error) {
	var out OAuthRevocationResponse
	path := "/invitations/oauth/" + url.PathEscape(provider) + "/revocation"
	if err := s.do(ctx, http.MethodPost, path, req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Removed, nil
}

// ---- MFA ----

func (s *Session) EnrollMFA(ctx context.Context) (*MFAEnrollResponse, error) {
	var out MFAEnrollResponse
	if err := s.do(ctx, http.MethodPost, "/users/mfa/enroll", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) VerifyMFA(ctx context.Context, req MFAVerifyRequest) (*MFAVerifyResponse, error) {
	var out MFAVerifyResponse
	if err := s.do(ctx, http.MethodPost, "/users/mfa/verify", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) MFAStatus(ctx context.Context) (*MFAStatusResponse, error) {
	var out MFAStatusResponse
	if err := s.do(ctx, http.MethodGet, "/users/mfa/status", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) DisableMFA(ctx context.Context) error {
	return s.do(ctx, http.MethodPost, "/users/mfa/disable", nil, nil, http.StatusOK)
}

func (s *Session) RecoveryCodeStatus(ctx context.Context) (*RecoveryCodeStatusResponse, error) {
	var out RecoveryCodeStatusResponse
	if err := s.do(ctx, http.MethodGet, "/users/mfa/recovery-codes", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) RegenerateRecoveryCodes(ctx context.Context) ([]string, error) {
	var out RecoveryCodesResponse
	if err := s.do(ctx, http.MethodPost, "/users/mfa/recovery-codes/regenerate", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.RecoveryCodes, nil
}

func (s *Session) VerifyRecoveryCode(ctx context.Context, code string) (*ResultResponse, error) {
	var out ResultResponse
	req := RecoveryCodeVerifyRequest{Code: code}
	if err := s.do(ctx, http.MethodPost, "/users/mfa/recovery-codes/verify", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- Admin ----

func (s *Session) AdminResetMFA(ctx context.Context, userID string) error {
	path := "/admin/users/" + url.PathEscape(userID) + "/mfa/reset"
	return s.do(ctx, http.MethodPost, path, nil, nil, http.StatusOK)
}

func (s *Session) DeleteUser(ctx context.Context, userID string) error {
	return s.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(userID), nil, nil, http.StatusOK)
}

func (s *Session) MFASettings(ctx context.Context) (*MFASettingsResponse, error) {
	var out MFASettingsResponse
	if err := s.do(ctx, http.MethodGet, "/admin/mfa/settings", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) UpdateMFASettings(ctx context.Context, req MFASettingsRequest) (*MFASettingsResponse, error) {
	var out MFASettingsResponse
	if err := s.do(ctx, http.MethodPut, "/admin/mfa/settings", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
