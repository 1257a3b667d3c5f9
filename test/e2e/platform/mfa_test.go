package platform_test

import (
	"errors"
	"testing"

	"github.com/factstofaith/gigglefits-sub006/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestMFAEnrollmentAndLogin covers enrollment, a TOTP login and a single-use
// recovery code login.
func TestMFAEnrollmentAndLogin(t *testing.T) {
	client := authsdk.NewClient(setupContainer(t))
	admin := loginAdmin(t, client)
	registerUser(t, client, admin, "mfa@example.com", "MFAUser123!")

	session, err := client.Login(t.Context(), "mfa@example.com", "MFAUser123!")
	require.NoError(t, err)

	enroll, err := session.EnrollMFA(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, enroll.Secret)
	require.Contains(t, enroll.QRPayload, "otpauth://totp/")

	status, err := session.MFAStatus(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ENROLLING", status.State)

	wrong, err := session.VerifyMFA(t.Context(), authsdk.MFAVerifyRequest{Code: "not-a-code"})
	require.NoError(t, err)
	require.False(t, wrong.Success)
	require.NotEmpty(t, wrong.Error)

	verified, err := session.VerifyMFA(t.Context(), authsdk.MFAVerifyRequest{Code: generateTOTP(t, enroll.Secret)})
	require.NoError(t, err)
	require.True(t, verified.Success)
	require.NotEmpty(t, verified.RecoveryCodes)
	recoveryCode := verified.RecoveryCodes[0]

	_, err = client.Login(t.Context(), "mfa@example.com", "MFAUser123!")
	var challenge *authsdk.MFARequiredError
	require.True(t, errors.As(err, &challenge), "expected MFA challenge, got %v", err)

	mfaSession, err := client.CompleteMFALogin(t.Context(), authsdk.MFALoginRequest{
		UserID:   challenge.UserID,
		MFAToken: challenge.MFAToken,
		Code:     generateTOTP(t, enroll.Secret),
	})
	require.NoError(t, err)
	me, err := mfaSession.Me(t.Context())
	require.NoError(t, err)
	require.True(t, me.MFAEnabled)

	_, err = client.Login(t.Context(), "mfa@example.com", "MFAUser123!")
	require.True(t, errors.As(err, &challenge))
	_, err = client.CompleteMFALogin(t.Context(), authsdk.MFALoginRequest{
		UserID:   challenge.UserID,
		MFAToken: challenge.MFAToken,
		Code:     recoveryCode,
		Method:   "recovery_code",
	})
	require.NoError(t, err)

	codes, err := mfaSession.RecoveryCodeStatus(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, codes.Used)

	_, err = client.Login(t.Context(), "mfa@example.com", "MFAUser123!")
	require.True(t, errors.As(err, &challenge))
	_, err = client.CompleteMFALogin(t.Context(), authsdk.MFALoginRequest{
		UserID:   challenge.UserID,
		MFAToken: challenge.MFAToken,
		Code:     recoveryCode,
		Method:   "recovery_code",
	})
	require.Error(t, err, "recovery codes are single use")
}

func TestMFARegenerateAndDisable(t *testing.T) {
	client := authsdk.NewClient(setupContainer(t))
	admin := loginAdmin(t, client)
	user := registerUser(t, client, admin, "regen@example.com", "Regen123!pass")

	session, err := client.Login(t.Context(), "regen@example.com", "Regen123!pass")
	require.NoError(t, err)
	enroll, err := session.EnrollMFA(t.Context())
	require.NoError(t, err)
	verified, err := session.VerifyMFA(t.Context(), authsdk.MFAVerifyRequest{Code: generateTOTP(t, enroll.Secret)})
	require.NoError(t, err)
	require.True(t, verified.Success)

	fresh, err := session.RegenerateRecoveryCodes(t.Context())
	require.NoError(t, err)
	require.Len(t, fresh, len(verified.RecoveryCodes))

	old, err := session.VerifyRecoveryCode(t.Context(), verified.RecoveryCodes[0])
	require.NoError(t, err)
	require.False(t, old.Success)

	ok, err := session.VerifyRecoveryCode(t.Context(), fresh[0])
	require.NoError(t, err)
	require.True(t, ok.Success)

	require.NoError(t, admin.AdminResetMFA(t.Context(), user.ID))

	status, err := session.MFAStatus(t.Context())
	require.NoError(t, err)
	require.Equal(t, "NONE", status.State)
	require.False(t, status.Enabled)

	_, err = client.Login(t.Context(), "regen@example.com", "Regen123!pass")
	require.NoError(t, err, "login no longer needs a second factor")
}
