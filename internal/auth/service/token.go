package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/jwtx"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"
)

// TokenService issues and validates EdDSA access tokens.
type TokenService struct {
	KeyManager *jwtx.KeyManager
	Clock      clockx.Clock
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
}

// Issue signs an access token for user carrying amr.
func (s *TokenService) Issue(ctx context.Context, user domain.User, amr []string) (domain.AccessToken, error) {
	signer := s.KeyManager.GetSigner()
	if signer == nil {
		return domain.AccessToken{}, errors.New("no signing key available")
	}

	ttl := s.AccessTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}
	now := s.Clock.Now()
	claims := jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
		Subject:  user.ID,
		Email:    user.Email,
		Role:     string(user.Role),
		Scopes:   user.Role.Scopes(),
		AMR:      amr,
		Issuer:   s.Issuer,
		Audience: s.Audience,
		TTL:      ttl,
		Now:      now,
	})

	tok, err := signer.Sign(claims)
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}

	slogx.FromContext(ctx).Debug("access token issued",
		slog.String("user_id", user.ID), slog.String("kid", signer.KID()), slog.Any("amr", amr))
	return domain.AccessToken{Token: tok, ExpiresAt: now.Add(ttl), AMR: amr}, nil
}

// Validate recovers the user id a token was issued for. Tampered, foreign
// or expired tokens fail with ErrInvalidToken.
func (s *TokenService) Validate(token string) (string, error) {
	claims, err := s.KeyManager.Verifier.Verify(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
