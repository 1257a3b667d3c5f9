package authsdk

import (
	"time"

	"github.com/factstofaith/gigglefits-sub006/pkg/jwtx"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error            string `json:"error" example:"invalid_request"`
	ErrorDescription string `json:"error_description,omitempty" example:"ttl_hours must be positive"`
}

// ResultResponse reports the outcome of a code check or state change.
// Wrong codes are a 200 with success false.
type ResultResponse struct {
	Success bool   `json:"success" example:"true"`
	Error   string `json:"error,omitempty" example:"invalid code"`
}

// ---- Invitations ----

type CreateInvitationRequest struct {
	Email    string `json:"email" validate:"required,email" example:"new.user@example.com"`
	Role     string `json:"role" validate:"required" example:"USER" enums:"ADMIN,USER,READ_ONLY"`
	TTLHours *int   `json:"ttl_hours,omitempty" example:"72"` // server default when omitted
}

type InvitationResponse struct {
	ID         string     `json:"id" example:"01JB4ZQ7R8D3V9N6K2X5T1W0AH"`
	Email      string     `json:"email" example:"new.user@example.com"`
	Role       string     `json:"role" example:"USER"`
	Status     string     `json:"status" example:"PENDING" enums:"PENDING,ACCEPTED,EXPIRED,REVOKED"`
	CreatedBy  string     `json:"created_by"`
	AcceptedBy string     `json:"accepted_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// CreateInvitationResponse carries the token once; only its fingerprint is
// kept by the server.
type CreateInvitationResponse struct {
	InvitationResponse
	Token string `json:"token"`
}

type ListInvitationsResponse struct {
	Invitations []InvitationResponse `json:"invitations"`
}

type VerifyInvitationResponse struct {
	Valid     bool      `json:"valid" example:"true"`
	Email     string    `json:"email" example:"new.user@example.com"`
	Role      string    `json:"role" example:"USER"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AcceptInvitationRequest struct {
	Token    string `json:"token" validate:"required"`
	Name     string `json:"name,omitempty" validate:"max=200" example:"New User"`
	Password string `json:"password" validate:"required,min=8,max=256"`
}

// ---- OAuth ----

type OAuthAuthorizeResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// OAuthCallbackResponse carries a token or, with RequiresMFA, a challenge
// redeemed through POST /auth/login/mfa.
type OAuthCallbackResponse struct {
	User          UserResponse `json:"user"`
	AccessToken   string       `json:"access_token,omitempty"`
	TokenType     string       `json:"token_type,omitempty" example:"Bearer"`
	ExpiresIn     int          `json:"expires_in,omitempty" example:"900"`
	AccountLinked bool         `json:"account_linked"`
	RequiresMFA   bool         `json:"requires_mfa"`
	MFAToken      string       `json:"mfa_token,omitempty"`
}

type OAuthRevocationRequest struct {
	UserID string   `json:"user_id" validate:"required"`
	Roles  []string `json:"roles"` // roles the provider still reports
}

type OAuthRevocationResponse struct {
	Removed []string `json:"removed"`
}

// ---- Users and sign-in ----

type UserResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email" example:"new.user@example.com"`
	Name          string `json:"name" example:"New User"`
	Role          string `json:"role" example:"USER"`
	MFAEnabled    bool   `json:"mfa_enabled"`
	OAuthProvider string `json:"oauth_provider,omitempty" example:"google"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is either a token or, with RequiresMFA, a challenge.
type LoginResponse struct {
	RequiresMFA           bool   `json:"requires_mfa"`
	UserID                string `json:"user_id"`
	MFAToken              string `json:"mfa_token,omitempty"`
	AccessToken           string `json:"access_token,omitempty"`
	TokenType             string `json:"token_type,omitempty" example:"Bearer"`
	ExpiresIn             int    `json:"expires_in,omitempty" example:"900"`
	MFAEnrollmentRequired bool   `json:"mfa_enrollment_required,omitempty"`
}

type MFALoginRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	MFAToken string `json:"mfa_token" validate:"required"`
	Code     string `json:"code" validate:"required"`
	Method   string `json:"method,omitempty" validate:"omitempty,oneof=totp recovery_code" example:"totp"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type" example:"Bearer"`
	ExpiresIn   int    `json:"expires_in" example:"900"`
}

// ---- MFA ----

type MFAEnrollResponse struct {
	Secret    string `json:"secret" example:"JBSWY3DPEHPK3PXP"`
	QRPayload string `json:"qr_payload" example:"otpauth://totp/Platform:new.user@example.com?secret=JBSWY3DPEHPK3PXP&issuer=Platform"`
	QRCodePNG string `json:"qr_code_png"` // base64 PNG
	Issuer    string `json:"issuer" example:"Platform"`
	Account   string `json:"account" example:"new.user@example.com"`
}

type MFAVerifyRequest struct {
	Code   string `json:"code" validate:"required,max=64" example:"123456"`
	Secret string `json:"secret,omitempty"`
}

type MFAVerifyResponse struct {
	ResultResponse
	RecoveryCodes []string `json:"recovery_codes,omitempty"`
}

type MFAStatusResponse struct {
	State                  string     `json:"state" example:"VERIFIED" enums:"NONE,ENROLLING,VERIFIED"`
	Enabled                bool       `json:"enabled"`
	VerifiedAt             *time.Time `json:"verified_at,omitempty"`
	RemainingRecoveryCodes int        `json:"remaining_recovery_codes"`
}

type RecoveryCodeStatusResponse struct {
	Remaining int `json:"remaining" example:"9"`
	Used      int `json:"used" example:"1"`
}

type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

type RecoveryCodeVerifyRequest struct {
	Code string `json:"code" validate:"required" example:"7K3QD-M2XPA"`
}

type MFASettingsRequest struct {
	RequiredForAdmins bool `json:"required_for_admins"`
	RecoveryCodeCount int  `json:"recovery_code_count" validate:"min=8,max=20" example:"10"`
}

type MFASettingsResponse struct {
	RequiredForAdmins bool       `json:"required_for_admins"`
	RecoveryCodeCount int        `json:"recovery_code_count" example:"10"`
	UpdatedBy         string     `json:"updated_by,omitempty"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// ---- System ----

type HealthResponse struct {
	Status  string        `json:"status" example:"ok"`
	Uptime  string        `json:"uptime" example:"1h2m3s"`
	Version string        `json:"version" example:"0.1.0"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database" example:"ok"`
	Signer   string `json:"signer" example:"ok"`
}

// JWKSResponse is the public key set used to verify access tokens.
type JWKSResponse jwtx.JWKS
