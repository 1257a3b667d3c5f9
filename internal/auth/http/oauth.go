package http

import (
	"net/http"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/service"
	"github.com/factstofaith/gigglefits-sub006/pkg/authsdk"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/httpx"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"
)

// OAuthHandler serves invitation acceptance through an external provider.
type OAuthHandler struct {
	OAuth *service.OAuthService
	Clock clockx.Clock
}

// HandleAuthorize handles GET /invitations/oauth/{provider}/authorize
//
//	@Summary		Start OAuth acceptance
//	@Description	Returns the provider authorization URL for a pending invitation. The state carries the invitation token.
//	@Tags			OAuth
//	@Produce		json
//	@Param			provider	path		string							true	"Provider name"	example(google)
//	@Param			token		query		string							true	"Invitation token"
//	@Success		200			{object}	authsdk.OAuthAuthorizeResponse	"Authorization URL and state"
//	@Failure		400			{object}	authsdk.ErrorResponse			"Unknown provider"
//	@Failure		404			{object}	authsdk.ErrorResponse			"Invitation not found or no longer pending"
//	@Router			/invitations/oauth/{provider}/authorize [get].
func (h *OAuthHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeBadRequest(w, "token is required")
		return
	}

	out, err := h.OAuth.GetOAuthAuthURL(r.Context(), token, r.PathValue("provider"))
	if err != nil {
		writeServiceError(w, r, err, "oauth authorize")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.OAuthAuthorizeResponse{AuthURL: out.AuthURL, State: out.State})
}

// HandleCallback handles GET /invitations/oauth/{provider}/callback
//
//	@Summary		Complete OAuth acceptance
//	@Description	Exchanges the authorization code, links or creates the user and accepts the invitation. Returns an access token, or an MFA challenge for users with MFA enabled.
//	@Tags			OAuth
//	@Produce		json
//	@Param			provider	path		string							true	"Provider name"
//	@Param			code		query		string							true	"Authorization code"
//	@Param			state		query		string							true	"State from the authorize step"
//	@Success		200			{object}	authsdk.OAuthCallbackResponse	"User and access token or MFA challenge"
//	@Failure		400			{object}	authsdk.ErrorResponse			"Invalid state, token or provider"
//	@Failure		409			{object}	authsdk.ErrorResponse			"Invitation already accepted or account linked elsewhere"
//	@Failure		410			{object}	authsdk.ErrorResponse			"Invitation expired or revoked"
//	@Failure		502			{object}	authsdk.ErrorResponse			"Provider exchange failed"
//	@Router			/invitations/oauth/{provider}/callback [get].
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		slogx.FromContext(r.Context()).Warn("oauth provider returned error",
			"provider", r.PathValue("provider"), "error", e, "description", q.Get("error_description"))
		writeBadRequest(w, "authorization denied: "+e)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeBadRequest(w, "code and state are required")
		return
	}

	res, err := h.OAuth.ProcessOAuthCallback(r.Context(), code, state, r.PathValue("provider"), nil)
	if err != nil {
		writeServiceError(w, r, err, "oauth callback")
		return
	}

	resp := authsdk.OAuthCallbackResponse{
		User:          userResponse(res.User),
		AccountLinked: res.AccountLinked,
		RequiresMFA:   res.RequiresMFA,
		MFAToken:      res.MFAToken,
	}
	if !res.RequiresMFA {
		resp.AccessToken = res.Token.Token
		resp.TokenType = tokenTypeBearer
		resp.ExpiresIn = expiresIn(res.Token, h.Clock.Now())
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleRevocation handles POST /invitations/oauth/{provider}/revocation
//
//	@Summary		Reconcile OAuth roles
//	@Description	Removes role grants sourced from the provider that it no longer reports for the user.
//	@Tags			OAuth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			provider	path		string							true	"Provider name"
//	@Param			request		body		authsdk.OAuthRevocationRequest	true	"Roles still held upstream"
//	@Success		200			{object}	authsdk.OAuthRevocationResponse	"Removed roles"
//	@Failure		400			{object}	authsdk.ErrorResponse			"Unknown provider"
//	@Failure		404			{object}	authsdk.ErrorResponse			"Unknown user"
//	@Router			/invitations/oauth/{provider}/revocation [post].
func (h *OAuthHandler) HandleRevocation(w http.ResponseWriter, r *http.Request) {
	var req authsdk.OAuthRevocationRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	removed, err := h.OAuth.ProcessOAuthRevocation(r.Context(), req.UserID, r.PathValue("provider"), req.Roles)
	if err != nil {
		writeServiceError(w, r, err, "oauth revocation")
		return
	}
	if removed == nil {
		removed = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.OAuthRevocationResponse{Removed: removed})
}
