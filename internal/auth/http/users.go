package http

import (
	"net/http"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/service"
	"github.com/factstofaith/gigglefits-sub006/pkg/httpx"
)

type UserInfoHandler struct {
	Users *service.UserService
}

// ServeHTTP handles GET /users/me
//
//	@Summary		Current user
//	@Description	Returns the authenticated user.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserResponse	"User"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		404	{object}	authsdk.ErrorResponse	"User no longer exists"
//	@Router			/users/me [get].
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	user, err := h.Users.GetUserByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "load user")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}
