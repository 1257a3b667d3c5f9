package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/service"
	"github.com/factstofaith/gigglefits-sub006/pkg/authsdk"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/httpx"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"
	"github.com/factstofaith/gigglefits-sub006/pkg/validate"
)

// statusFor maps the service error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, validate.ErrInvalid):
		return http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, authsdk.ErrorCodeUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, authsdk.ErrorCodeNotFound
	case errors.Is(err, service.ErrAlreadyAccepted),
		errors.Is(err, service.ErrAlreadyEnabled),
		errors.Is(err, service.ErrNotEnabled),
		errors.Is(err, service.ErrConflict):
		return http.StatusConflict, authsdk.ErrorCodeConflict
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone, authsdk.ErrorCodeGone
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway, authsdk.ErrorCodeUpstream
	case errors.Is(err, clockx.ErrNaiveTimestamp):
		return http.StatusUnprocessableEntity, authsdk.ErrorCodeInvalidRequest
	}
	return http.StatusInternalServerError, authsdk.ErrorCodeServerError
}

// writeServiceError writes err using statusFor. Server and upstream faults
// are logged and answered with a generic description.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	log := slogx.FromContext(r.Context())
	status, code := statusFor(err)

	switch status {
	case http.StatusInternalServerError:
		log.Error(op+" failed", slog.Any("error", err))
		authsdk.ErrServerError.WriteError(w)
		return
	case http.StatusBadGateway:
		log.Error(op+" failed", slog.Any("error", err))
		authsdk.NewOAuth2Error(status, code, "OAuth provider request failed").WriteError(w)
		return
	}

	if status == http.StatusUnprocessableEntity {
		log.Warn(op+" rejected timestamp without timezone", "err", err)
		authsdk.NewOAuth2Error(status, code, "timestamp has no timezone").WriteError(w)
		return
	}

	log.Warn(op+" rejected", "status", status, "err", err)
	authsdk.NewOAuth2Error(status, code, describe(err)).WriteError(w)
}

// describe drops the taxonomy prefix, "validation error: invalid role"
// becomes "invalid role".
func describe(err error) string {
	msg := err.Error()
	for _, base := range []error{
		service.ErrValidation, service.ErrUnauthorized, service.ErrNotFound,
		service.ErrAlreadyAccepted, service.ErrAlreadyEnabled, service.ErrNotEnabled,
		service.ErrConflict, service.ErrExpired, validate.ErrInvalid,
	} {
		if rest, ok := strings.CutPrefix(msg, base.Error()+": "); ok {
			return rest
		}
	}
	return msg
}

func writeBadRequest(w http.ResponseWriter, desc string) {
	authsdk.NewOAuth2Error(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, desc).WriteError(w)
}

// decodeRequest reads a JSON body into dst and validates it, writing a 400
// on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeBadRequest(w, describe(err))
		return false
	}
	return true
}

// callerID returns the authenticated subject or writes a 401.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := httpx.UserIDFromCtx(r.Context())
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return "", false
	}
	return userID, true
}
