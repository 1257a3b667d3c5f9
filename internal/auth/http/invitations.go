package http

import (
	"net/http"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/service"
	"github.com/factstofaith/gigglefits-sub006/pkg/authsdk"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/httpx"
)

// DefaultInvitationTTLHours applies when a create request omits ttl_hours.
const DefaultInvitationTTLHours = 72

// InvitationsHandler serves the invitation lifecycle.
type InvitationsHandler struct {
	Invitations     *service.InvitationService
	Clock           clockx.Clock
	DefaultTTLHours int
}

// HandleCreate handles POST /invitations
//
//	@Summary		Create invitation
//	@Description	Creates a one-time invitation for an email and role. The token is returned once and only its fingerprint is stored.
//	@Tags			Invitations
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.CreateInvitationRequest		true	"Invitation"
//	@Success		201		{object}	authsdk.CreateInvitationResponse	"Invitation with token"
//	@Failure		400		{object}	authsdk.ErrorResponse				"Invalid email, role or ttl_hours"
//	@Failure		401		{object}	authsdk.ErrorResponse				"Invalid or missing access token"
//	@Failure		403		{object}	authsdk.ErrorResponse				"Missing admin:write scope"
//	@Router			/invitations [post].
func (h *InvitationsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req authsdk.CreateInvitationRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	ttl := h.DefaultTTLHours
	if req.TTLHours != nil {
		ttl = *req.TTLHours
	}

	inv, token, err := h.Invitations.CreateInvitation(r.Context(), req.Email, domain.Role(req.Role), ttl, actorID)
	if err != nil {
		writeServiceError(w, r, err, "create invitation")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.CreateInvitationResponse{
		InvitationResponse: invitationResponse(inv, h.Clock.Now()),
		Token:              token,
	})
}

// HandleList handles GET /invitations
//
//	@Summary		List invitations
//	@Description	Lists every invitation newest first. Lapsed pending invitations are reported as EXPIRED.
//	@Tags			Invitations
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ListInvitationsResponse	"Invitations"
//	@Failure		401	{object}	authsdk.ErrorResponse			"Invalid or missing access token"
//	@Failure		403	{object}	authsdk.ErrorResponse			"Missing admin:read scope"
//	@Router			/invitations [get].
func (h *InvitationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	invs, err := h.Invitations.ListInvitations(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "list invitations")
		return
	}

	now := h.Clock.Now()
	resp := authsdk.ListInvitationsResponse{Invitations: make([]authsdk.InvitationResponse, 0, len(invs))}
	for _, inv := range invs {
		resp.Invitations = append(resp.Invitations, invitationResponse(inv, now))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleRevoke handles DELETE /invitations/{id}
//
//	@Summary		Revoke invitation
//	@Description	Revokes a pending invitation.
//	@Tags			Invitations
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string					true	"Invitation ID"
//	@Success		200	{object}	authsdk.ResultResponse	"Revoked"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Unknown invitation"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Invitation is not pending"
//	@Router			/invitations/{id} [delete].
func (h *InvitationsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := h.Invitations.RevokeByID(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err, "revoke invitation")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ResultResponse{Success: true})
}

// HandleVerify handles GET /invitations/verify/{token}
//
//	@Summary		Verify invitation
//	@Description	Reports the email and role of an invitation that can still be accepted.
//	@Tags			Invitations
//	@Produce		json
//	@Param			token	path		string								true	"Invitation token"
//	@Success		200		{object}	authsdk.VerifyInvitationResponse	"Invitation details"
//	@Failure		404		{object}	authsdk.ErrorResponse				"Unknown token"
//	@Failure		409		{object}	authsdk.ErrorResponse				"Already accepted"
//	@Failure		410		{object}	authsdk.ErrorResponse				"Expired or revoked"
//	@Router			/invitations/verify/{token} [get].
func (h *InvitationsHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invitations.VerifyInvitation(r.Context(), r.PathValue("token"))
	if err != nil {
		writeServiceError(w, r, err, "verify invitation")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.VerifyInvitationResponse{
		Valid:     true,
		Email:     inv.Email,
		Role:      string(inv.Role),
		ExpiresAt: inv.ExpiresAt,
	})
}

// HandleAccept handles POST /invitations/accept
//
//	@Summary		Accept invitation
//	@Description	Registers the invitee with a password. An existing account with the invited email is linked when the password matches it.
//	@Tags			Invitations
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.AcceptInvitationRequest	true	"Acceptance"
//	@Success		201		{object}	authsdk.UserResponse			"Registered user"
//	@Failure		400		{object}	authsdk.ErrorResponse			"Invalid request"
//	@Failure		404		{object}	authsdk.ErrorResponse			"Unknown token"
//	@Failure		409		{object}	authsdk.ErrorResponse			"Already accepted or email taken"
//	@Failure		410		{object}	authsdk.ErrorResponse			"Expired or revoked"
//	@Failure		429		{object}	authsdk.ErrorResponse			"Rate limit exceeded"
//	@Router			/invitations/accept [post].
func (h *InvitationsHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AcceptInvitationRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	user, err := h.Invitations.AcceptInvitation(r.Context(), req.Token, service.AcceptInput{
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err, "accept invitation")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, userResponse(user))
}
