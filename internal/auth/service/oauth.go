package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/cryptox"
	"github.com/factstofaith/gigglefits-sub006/pkg/jwtx"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"
)

// stateNonceBytes is the size of the random suffix of the state parameter.
const stateNonceBytes = 16

// OAuthService is the OAuth Callback Processor: invitees accept by
// signing in with an upstream provider.
type OAuthService struct {
	Store     store.Store
	Clock     clockx.Clock
	Users     UserBridge
	Tokens    *TokenService
	Providers map[string]ProviderConfig
	Exchanger ProfileExchanger
}

// OAuthAuthURL is where the invitee is sent to sign in upstream.
type OAuthAuthURL struct {
	AuthURL string
	State   string
}

// OAuthCallbackResult is the outcome of a successful callback. When
// RequiresMFA is set Token is empty and the client finishes the sign-in
// with MFAToken, the same way a password login does.
type OAuthCallbackResult struct {
	User               domain.User
	Token              domain.AccessToken
	AccountLinked      bool
	RequiresMFA        bool
	MFAToken           string
	ChallengeExpiresAt time.Time
}

func (s *OAuthService) provider(name string) (ProviderConfig, error) {
	p, ok := s.Providers[strings.ToLower(name)]
	if !ok {
		return ProviderConfig{}, ErrUnknownProvider
	}
	return p, nil
}

// GetOAuthAuthURL builds the provider authorization URL. The state carries
// the invitation token followed by "_" and a random hex nonce.
func (s *OAuthService) GetOAuthAuthURL(ctx context.Context, invitationToken, providerName string) (OAuthAuthURL, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return OAuthAuthURL{}, err
	}

	inv, err := s.Store.Invitations().GetInvitationByTokenHash(ctx, cryptox.FingerprintToken(invitationToken))
	if errors.Is(err, store.ErrNotFound) || invitationToken == "" {
		return OAuthAuthURL{}, ErrInvitationNotFound
	}
	if err != nil {
		return OAuthAuthURL{}, err
	}
	ok, err := inv.IsValid(s.Clock.Now())
	if err != nil {
		return OAuthAuthURL{}, err
	}
	if !ok {
		return OAuthAuthURL{}, ErrInvitationNotFound
	}

	nonce, err := cryptox.GenerateHex(stateNonceBytes)
	if err != nil {
		return OAuthAuthURL{}, err
	}
	state := invitationToken + "_" + nonce
	return OAuthAuthURL{AuthURL: p.oauth2().AuthCodeURL(state), State: state}, nil
}

// parseState recovers the invitation token from a state parameter.
func parseState(state string) (string, error) {
	i := strings.LastIndex(state, "_")
	if i <= 0 || i == len(state)-1 {
		return "", ErrInvalidState
	}
	nonce := state[i+1:]
	if len(nonce) != 2*stateNonceBytes {
		return "", ErrInvalidState
	}
	if _, err := hex.DecodeString(nonce); err != nil {
		return "", ErrInvalidState
	}
	return state[:i], nil
}

// ProcessOAuthCallback accepts the invitation named by state. When info is
// nil the code is exchanged with the provider for a profile. A user with
// the profile's email is linked instead of duplicated, unless it already
// carries a different OAuth identity. Linking or creation, the invitation
// status flip and upstream role grants share one transaction. Users with
// MFA enabled get a login challenge instead of a token.
func (s *OAuthService) ProcessOAuthCallback(ctx context.Context, code, state, providerName string, info *UserInfo) (OAuthCallbackResult, error) {
	log := slogx.FromContext(ctx)
	providerName = strings.ToLower(providerName)

	p, err := s.provider(providerName)
	if err != nil {
		return OAuthCallbackResult{}, err
	}
	token, err := parseState(state)
	if err != nil {
		return OAuthCallbackResult{}, err
	}

	inv, err := s.Store.Invitations().GetInvitationByTokenHash(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return OAuthCallbackResult{}, ErrInvalidInvitationToken
	}
	if err != nil {
		return OAuthCallbackResult{}, err
	}
	if err := checkAcceptable(inv, s.Clock.Now()); err != nil {
		return OAuthCallbackResult{}, err
	}

	if info == nil {
		if code == "" {
			return OAuthCallbackResult{}, fmt.Errorf("%w: code is required", ErrValidation)
		}
		if s.Exchanger == nil {
			return OAuthCallbackResult{}, fmt.Errorf("%w: no profile exchanger configured", ErrUpstream)
		}
		got, err := s.Exchanger.ExchangeCode(ctx, p, code)
		if err != nil {
			log.Error("oauth code exchange failed", slog.String("provider", providerName), slog.Any("error", err))
			return OAuthCallbackResult{}, err
		}
		info = &got
	}
	if info.ID == "" || info.Email == "" {
		return OAuthCallbackResult{}, fmt.Errorf("%w: provider profile needs id and email", ErrValidation)
	}
	if !strings.EqualFold(strings.TrimSpace(info.Email), inv.Email) {
		log.Warn("oauth email differs from invitation",
			slog.String("invitation_id", inv.ID), slog.String("provider", providerName))
	}

	var res OAuthCallbackResult
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		cur, err := tx.Invitations().GetInvitationByID(ctx, inv.ID)
		if err != nil {
			return err
		}
		now := s.Clock.Now()
		if err := checkAcceptable(cur, now); err != nil {
			return err
		}

		existing, found, err := s.Users.FindUserByEmail(ctx, tx, info.Email)
		if err != nil {
			return err
		}
		if found {
			res.AccountLinked = true
			res.User = existing
			if existing.OAuthID != "" && (existing.OAuthProvider != providerName || existing.OAuthID != info.ID) {
				return ErrOAuthAlreadyLinked
			}
			if existing.OAuthID == "" {
				res.User, err = s.Users.LinkOAuth(ctx, tx, existing.ID, providerName, info.ID)
				if err != nil {
					return err
				}
			}
		} else {
			name := info.Name
			if name == "" {
				name = info.Email
			}
			res.User, err = s.Users.CreateUser(ctx, tx, NewUser{
				Email:         info.Email,
				Name:          name,
				Role:          cur.Role,
				OAuthProvider: providerName,
				OAuthID:       info.ID,
			})
			if err != nil {
				return err
			}
		}

		if err := acceptInvitation(ctx, tx, cur, res.User.ID, now); err != nil {
			return err
		}

		for _, role := range info.Roles {
			err := tx.RoleGrants().GrantRole(ctx, domain.RoleGrant{
				UserID:    res.User.ID,
				Name:      role,
				Source:    domain.RoleSourceOAuth,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Warn("oauth callback failed", slog.String("provider", providerName), slog.Any("error", err))
		return OAuthCallbackResult{}, err
	}

	if res.User.MFAEnabled {
		ch, err := s.Users.StartChallenge(ctx, res.User, jwtx.AMROAuth)
		if err != nil {
			return OAuthCallbackResult{}, err
		}
		res.RequiresMFA = true
		res.MFAToken = ch.MFAToken
		res.ChallengeExpiresAt = ch.ChallengeExpiresAt
	} else {
		res.Token, err = s.Tokens.Issue(ctx, res.User, []string{jwtx.AMROAuth})
		if err != nil {
			return OAuthCallbackResult{}, err
		}
	}

	log.Info("oauth invitation accepted",
		slog.String("user_id", res.User.ID),
		slog.String("invitation_id", inv.ID),
		slog.String("provider", providerName),
		slog.Bool("account_linked", res.AccountLinked),
		slog.Bool("requires_mfa", res.RequiresMFA))
	return res, nil
}

// ProcessOAuthRevocation drops OAUTH-sourced role grants that the provider
// no longer reports. Grants from other sources are kept. It returns the
// names of the removed roles.
func (s *OAuthService) ProcessOAuthRevocation(ctx context.Context, userID, providerName string, upstreamRoles []string) ([]string, error) {
	if _, err := s.provider(providerName); err != nil {
		return nil, err
	}
	if _, err := s.Users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	var removed []string
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		grants, err := tx.RoleGrants().ListRoleGrants(ctx, userID)
		if err != nil {
			return err
		}
		for _, g := range grants {
			if g.Source != domain.RoleSourceOAuth || slices.Contains(upstreamRoles, g.Name) {
				continue
			}
			if err := tx.RoleGrants().RevokeRoleGrant(ctx, userID, g.Name, g.Source); err != nil {
				return err
			}
			removed = append(removed, g.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("oauth roles reconciled",
		slog.String("user_id", userID),
		slog.String("provider", strings.ToLower(providerName)),
		slog.Any("removed", removed))
	return removed, nil
}
