package http

import (
	"net/http"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/service"
	"github.com/factstofaith/gigglefits-sub006/pkg/authsdk"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/httpx"
)

// LoginHandler serves password sign-in and its MFA step.
type LoginHandler struct {
	Users *service.UserService
	Clock clockx.Clock
}

// HandleLogin handles POST /auth/login
//
//	@Summary		Password login
//	@Description	Checks an email and password. Accounts with MFA enabled receive an mfa_token to finish at /auth/login/mfa instead of an access token.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse	"Access token or MFA challenge"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Router			/auth/login [post].
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	res, err := h.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err, "login")
		return
	}

	resp := authsdk.LoginResponse{
		RequiresMFA:           res.RequiresMFA,
		UserID:                res.UserID,
		MFAToken:              res.MFAToken,
		MFAEnrollmentRequired: res.MFAEnrollmentRequired,
	}
	if !res.RequiresMFA {
		resp.AccessToken = res.Token.Token
		resp.TokenType = tokenTypeBearer
		resp.ExpiresIn = expiresIn(res.Token, h.Clock.Now())
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleMFA handles POST /auth/login/mfa
//
//	@Summary		Complete MFA login
//	@Description	Redeems an mfa_token with a TOTP or recovery code. A challenge allows five wrong codes.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFALoginRequest	true	"Challenge and code"
//	@Success		200		{object}	authsdk.TokenResponse	"Access token"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid code, token or too many attempts"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Router			/auth/login/mfa [post].
func (h *LoginHandler) HandleMFA(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFALoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	tok, err := h.Users.CompleteMFALogin(r.Context(), service.MFALoginInput{
		UserID:   req.UserID,
		MFAToken: req.MFAToken,
		Code:     req.Code,
		Method:   req.Method,
	})
	if err != nil {
		writeServiceError(w, r, err, "mfa login")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(tok, h.Clock.Now()))
}
