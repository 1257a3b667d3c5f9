package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ProviderConfig describes an upstream OAuth provider.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

func (p ProviderConfig) oauth2() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURI,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// UserInfo is the provider profile of the user completing a callback.
type UserInfo struct {
	ID    string
	Email string
	Name  string
	Roles []string // upstream roles or groups, granted with source OAUTH
}

// ProfileExchanger turns an authorization code into a profile.
type ProfileExchanger interface {
	ExchangeCode(ctx context.Context, provider ProviderConfig, code string) (UserInfo, error)
}

// HTTPExchanger redeems codes at the provider's token endpoint and reads
// the profile from its userinfo endpoint.
type HTTPExchanger struct {
	Client *http.Client
}

func (e HTTPExchanger) ExchangeCode(ctx context.Context, p ProviderConfig, code string) (UserInfo, error) {
	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	cfg := p.oauth2()
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return UserInfo{}, fmt.Errorf("%w: token exchange: %w", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return UserInfo{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("%w: profile request: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("%w: profile request returned %d", ErrUpstream, resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return UserInfo{}, fmt.Errorf("%w: decode profile: %w", ErrUpstream, err)
	}
	info := profileFromClaims(payload)
	if info.ID == "" || info.Email == "" {
		return UserInfo{}, fmt.Errorf("%w: profile is missing id or email", ErrUpstream)
	}
	return info, nil
}

// profileFromClaims reads OIDC style (sub) and GitHub style (numeric id,
// login) profiles.
func profileFromClaims(m map[string]any) UserInfo {
	info := UserInfo{
		ID:    firstString(m, "sub", "id"),
		Email: firstString(m, "email"),
		Name:  firstString(m, "name", "login", "email"),
	}
	for _, key := range []string{"roles", "groups"} {
		list, ok := m[key].([]any)
		if !ok {
			continue
		}
		for _, v := range list {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				info.Roles = append(info.Roles, s)
			}
		}
	}
	return info
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}
