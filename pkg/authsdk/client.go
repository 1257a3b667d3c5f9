package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls the public endpoints of the identity service and creates
// authenticated Sessions.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewSession wraps an access token obtained elsewhere.
func (c *Client) NewSession(accessToken string) *Session {
	return &Session{client: c, accessToken: accessToken}
}

func (c *Client) Livez(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/livez", "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Readyz(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/readyz", "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JWKS(ctx context.Context) (*JWKSResponse, error) {
	var out JWKSResponse
	if err := c.do(ctx, http.MethodGet, "/.well-known/jwks.json", "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyInvitation(ctx context.Context, token string) (*VerifyInvitationResponse, error) {
	var out VerifyInvitationResponse
	path := "/invitations/verify/" + url.PathEscape(token)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptInvitation(ctx context.Context, req AcceptInvitationRequest) (*UserResponse, error) {
	var out UserResponse
	if err := c.do(ctx, http.MethodPost, "/invitations/accept", "", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// OAuthAuthorize returns the provider URL the invitee should be sent to.
func (c *Client) OAuthAuthorize(ctx context.Context, provider, invitationToken string) (*OAuthAuthorizeResponse, error) {
	var out OAuthAuthorizeResponse
	path := "/invitations/oauth/" + url.PathEscape(provider) + "/authorize?token=" + url.QueryEscape(invitationToken)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) OAuthCallback(ctx context.Context, provider, code, state string) (*OAuthCallbackResponse, error) {
	var out OAuthCallbackResponse
	q := url.Values{"code": {code}, "state": {state}}
	path := "/invitations/oauth/" + url.PathEscape(provider) + "/callback?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login signs in with a password. When the account has MFA enabled the
// returned error is *MFARequiredError.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var out LoginResponse
	req := LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	if out.RequiresMFA {
		return nil, &MFARequiredError{UserID: out.UserID, MFAToken: out.MFAToken}
	}
	return newSession(c, out.AccessToken, out.ExpiresIn), nil
}

func (c *Client) CompleteMFALogin(ctx context.Context, req MFALoginRequest) (*Session, error) {
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login/mfa", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return newSession(c, out.AccessToken, out.ExpiresIn), nil
}
