package http

import (
	"net/http"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/service"
	"github.com/factstofaith/gigglefits-sub006/pkg/authsdk"
	"github.com/factstofaith/gigglefits-sub006/pkg/httpx"
)

// AdminHandler serves user administration and the MFA policy.
type AdminHandler struct {
	Users *service.UserService
	MFA   *service.MFAService
}

// HandleResetMFA handles POST /admin/users/{id}/mfa/reset
//
//	@Summary		Reset a user's MFA
//	@Description	Removes the user's TOTP enrollment and recovery codes so they can enroll again.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string					true	"User ID"
//	@Success		200	{object}	authsdk.ResultResponse	"Reset"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Missing admin:write scope"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Unknown user"
//	@Failure		409	{object}	authsdk.ErrorResponse	"MFA not enabled"
//	@Router			/admin/users/{id}/mfa/reset [post].
func (h *AdminHandler) HandleResetMFA(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}

	res, err := h.MFA.AdminResetMFA(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "admin mfa reset")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resultResponse(res))
}

// HandleDeleteUser handles DELETE /admin/users/{id}
//
//	@Summary		Delete user
//	@Description	Deletes the user together with MFA state, recovery codes, role grants and login challenges.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string					true	"User ID"
//	@Success		200	{object}	authsdk.ResultResponse	"Deleted"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Cannot delete yourself"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Unknown user"
//	@Router			/admin/users/{id} [delete].
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	target := r.PathValue("id")
	if target == actorID {
		writeBadRequest(w, "cannot delete the calling user")
		return
	}

	if err := h.Users.DeleteUser(r.Context(), actorID, target); err != nil {
		writeServiceError(w, r, err, "delete user")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ResultResponse{Success: true})
}

// HandleGetSettings handles GET /admin/mfa/settings
//
//	@Summary		Get MFA settings
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MFASettingsResponse	"Settings"
//	@Failure		403	{object}	authsdk.ErrorResponse		"Missing admin:read scope"
//	@Router			/admin/mfa/settings [get].
func (h *AdminHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.MFA.Settings(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "get mfa settings")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, settingsResponse(s))
}

// HandlePutSettings handles PUT /admin/mfa/settings
//
//	@Summary		Update MFA settings
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFASettingsRequest	true	"Settings"
//	@Success		200		{object}	authsdk.MFASettingsResponse	"Saved settings"
//	@Failure		400		{object}	authsdk.ErrorResponse		"recovery_code_count out of range"
//	@Failure		403		{object}	authsdk.ErrorResponse		"Missing admin:write scope"
//	@Router			/admin/mfa/settings [put].
func (h *AdminHandler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req authsdk.MFASettingsRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	s, err := h.MFA.UpdateSettings(r.Context(), actorID, req.RequiredForAdmins, req.RecoveryCodeCount)
	if err != nil {
		writeServiceError(w, r, err, "update mfa settings")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, settingsResponse(s))
}
