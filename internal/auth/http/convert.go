package http

import (
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/pkg/authsdk"
)

const tokenTypeBearer = "Bearer"

func invitationResponse(inv domain.Invitation, now time.Time) authsdk.InvitationResponse {
	status, err := inv.EffectiveStatus(now)
	if err != nil {
		status = inv.Status
	}
	return authsdk.InvitationResponse{
		ID:         inv.ID,
		Email:      inv.Email,
		Role:       string(inv.Role),
		Status:     string(status),
		CreatedBy:  inv.CreatedBy,
		AcceptedBy: inv.AcceptedBy,
		CreatedAt:  inv.CreatedAt,
		ExpiresAt:  inv.ExpiresAt,
		AcceptedAt: inv.AcceptedAt,
	}
}

func userResponse(u domain.User) authsdk.UserResponse {
	return authsdk.UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          string(u.Role),
		MFAEnabled:    u.MFAEnabled,
		OAuthProvider: u.OAuthProvider,
	}
}

// expiresIn is the remaining token lifetime in whole seconds.
func expiresIn(tok domain.AccessToken, now time.Time) int {
	secs := int(tok.ExpiresAt.Sub(now).Seconds())
	return max(secs, 0)
}

func tokenResponse(tok domain.AccessToken, now time.Time) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken: tok.Token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   expiresIn(tok, now),
	}
}

func settingsResponse(s domain.MFASettings) authsdk.MFASettingsResponse {
	resp := authsdk.MFASettingsResponse{
		RequiredForAdmins: s.RequiredForAdmins,
		RecoveryCodeCount: s.RecoveryCodeCount,
		UpdatedBy:         s.UpdatedBy,
	}
	if !s.UpdatedAt.IsZero() {
		at := s.UpdatedAt
		resp.UpdatedAt = &at
	}
	return resp
}
