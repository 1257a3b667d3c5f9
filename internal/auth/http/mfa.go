package http

import (
	"encoding/base64"
	"net/http"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/service"
	"github.com/factstofaith/gigglefits-sub006/pkg/authsdk"
	"github.com/factstofaith/gigglefits-sub006/pkg/httpx"
)

// MFAHandler serves self-service MFA for the authenticated user. Wrong
// codes are answered with 200 and success false.
type MFAHandler struct {
	MFA *service.MFAService
}

// HandleEnroll handles POST /users/mfa/enroll
//
//	@Summary		Start TOTP enrollment
//	@Description	Generates a TOTP secret and QR code. Calling again before verification replaces the secret.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MFAEnrollResponse	"Secret and QR code"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid or missing access token"
//	@Failure		409	{object}	authsdk.ErrorResponse		"MFA already enabled"
//	@Router			/users/mfa/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	enr, err := h.MFA.InitiateEnrollment(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "mfa enroll")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAEnrollResponse{
		Secret:    enr.Secret,
		QRPayload: enr.QRPayload,
		QRCodePNG: base64.StdEncoding.EncodeToString(enr.QRPNG),
		Issuer:    enr.Issuer,
		Account:   enr.Account,
	})
}

// HandleVerify handles POST /users/mfa/verify
//
//	@Summary		Verify TOTP enrollment
//	@Description	Checks a code against the pending enrollment. On success MFA is enabled and a recovery code batch is returned once.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAVerifyRequest	true	"Code"
//	@Success		200		{object}	authsdk.MFAVerifyResponse	"Outcome and recovery codes"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Invalid request or secret mismatch"
//	@Failure		409		{object}	authsdk.ErrorResponse		"Not enrolling or already enabled"
//	@Failure		429		{object}	authsdk.ErrorResponse		"Rate limit exceeded"
//	@Router			/users/mfa/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req authsdk.MFAVerifyRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	res, err := h.MFA.VerifyCode(r.Context(), userID, req.Code, req.Secret)
	if err != nil {
		writeServiceError(w, r, err, "mfa verify")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAVerifyResponse{
		ResultResponse: resultResponse(res.Result),
		RecoveryCodes:  res.RecoveryCodes,
	})
}

// HandleDisable handles POST /users/mfa/disable
//
//	@Summary		Disable MFA
//	@Description	Removes the TOTP enrollment and retires every recovery code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ResultResponse	"Disabled"
//	@Failure		409	{object}	authsdk.ErrorResponse	"MFA not enabled"
//	@Router			/users/mfa/disable [post].
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	res, err := h.MFA.DisableMFA(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "mfa disable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resultResponse(res))
}

// HandleStatus handles GET /users/mfa/status
//
//	@Summary		MFA status
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MFAStatusResponse	"Enrollment state"
//	@Router			/users/mfa/status [get].
func (h *MFAHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	st, err := h.MFA.Status(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "mfa status")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAStatusResponse{
		State:                  string(st.State),
		Enabled:                st.Enabled,
		VerifiedAt:             st.VerifiedAt,
		RemainingRecoveryCodes: st.RemainingRecoveryCodes,
	})
}

// HandleRecoveryStatus handles GET /users/mfa/recovery-codes
//
//	@Summary		Recovery code counts
//	@Description	Reports how many codes of the current batch are left. The codes themselves are never shown again.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.RecoveryCodeStatusResponse	"Counts"
//	@Failure		409	{object}	authsdk.ErrorResponse				"MFA not enabled"
//	@Router			/users/mfa/recovery-codes [get].
func (h *MFAHandler) HandleRecoveryStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	st, err := h.MFA.RecoveryCodeStatus(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "recovery code status")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RecoveryCodeStatusResponse{Remaining: st.Remaining, Used: st.Used})
}

// HandleRegenerate handles POST /users/mfa/recovery-codes/regenerate
//
//	@Summary		Regenerate recovery codes
//	@Description	Retires the current batch and returns a fresh one.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.RecoveryCodesResponse	"New codes"
//	@Failure		409	{object}	authsdk.ErrorResponse			"MFA not enabled"
//	@Router			/users/mfa/recovery-codes/regenerate [post].
func (h *MFAHandler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	codes, err := h.MFA.RegenerateRecoveryCodes(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "regenerate recovery codes")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RecoveryCodesResponse{RecoveryCodes: codes})
}

// HandleRecoveryVerify handles POST /users/mfa/recovery-codes/verify
//
//	@Summary		Redeem recovery code
//	@Description	Consumes one recovery code. Each code succeeds once.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RecoveryCodeVerifyRequest	true	"Code"
//	@Success		200		{object}	authsdk.ResultResponse				"Outcome"
//	@Failure		429		{object}	authsdk.ErrorResponse				"Rate limit exceeded"
//	@Router			/users/mfa/recovery-codes/verify [post].
func (h *MFAHandler) HandleRecoveryVerify(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req authsdk.RecoveryCodeVerifyRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	res, err := h.MFA.VerifyRecoveryCode(r.Context(), userID, req.Code)
	if err != nil {
		writeServiceError(w, r, err, "verify recovery code")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resultResponse(res))
}

func resultResponse(res service.Result) authsdk.ResultResponse {
	return authsdk.ResultResponse{Success: res.Success, Error: res.Error}
}
