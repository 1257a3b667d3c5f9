package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/cryptox"
	"github.com/factstofaith/gigglefits-sub006/pkg/idx"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpSkew   = 1
	qrSize     = 200

	// maxCodeAttempts bounds retries when a generated recovery code
	// collides with one the user held before.
	maxCodeAttempts = 5
)

// MFAService is the MFA Store: per-user TOTP enrollment and recovery codes.
type MFAService struct {
	Store  store.Store
	Clock  clockx.Clock
	Users  UserBridge
	Issuer string // shown in authenticator apps
}

var _ MFAGate = (*MFAService)(nil)

// VerifyResult is the outcome of a TOTP verification. RecoveryCodes is only
// set on the call that completes enrollment.
type VerifyResult struct {
	Result
	RecoveryCodes []string
}

// MFAStatus summarises a user's MFA state.
type MFAStatus struct {
	State                  domain.MFAState
	Enabled                bool
	VerifiedAt             *time.Time
	RemainingRecoveryCodes int
}

// RecoveryCodeStatus counts the current batch.
type RecoveryCodeStatus struct {
	Remaining int
	Used      int
}

func (s *MFAService) totpOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// InitiateEnrollment generates a fresh TOTP secret and moves the user to
// ENROLLING. Calling it again while ENROLLING replaces the secret.
func (s *MFAService) InitiateEnrollment(ctx context.Context, userID string) (domain.MFAEnrollment, error) {
	log := slogx.FromContext(ctx)

	user, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.MFAEnrollment{}, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	err = s.Store.MFAConfigs().UpsertEnrollment(ctx, userID, key.Secret(), s.Clock.Now())
	if errors.Is(err, store.ErrConflict) {
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	}
	if err != nil {
		return domain.MFAEnrollment{}, err
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("encode qr code: %w", err)
	}

	log.Info("mfa enrollment started", slog.String("user_id", userID))
	return domain.MFAEnrollment{
		Secret:    key.Secret(),
		QRPayload: key.URL(),
		QRPNG:     buf.Bytes(),
		Issuer:    s.Issuer,
		Account:   user.Email,
	}, nil
}

// VerifyCode checks a TOTP code against the pending enrollment. A non-empty
// secret must match the enrolled one. On success the user becomes VERIFIED,
// receives a recovery code batch and has mfa_enabled set, all in one
// transaction. A wrong code is a failed Result, not an error.
func (s *MFAService) VerifyCode(ctx context.Context, userID, code, secret string) (VerifyResult, error) {
	log := slogx.FromContext(ctx)

	cfg, err := s.Store.MFAConfigs().GetMFAConfig(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return VerifyResult{}, ErrMFANotEnrolling
	}
	if err != nil {
		return VerifyResult{}, err
	}
	if cfg.State == domain.MFAStateVerified {
		return VerifyResult{}, ErrMFAAlreadyEnabled
	}
	if secret != "" && secret != cfg.Secret {
		return VerifyResult{}, ErrSecretMismatch
	}

	now := s.Clock.Now()
	ok, err := totp.ValidateCustom(code, cfg.Secret, now, s.totpOpts())
	if err != nil || !ok {
		log.Warn("mfa verification failed", slog.String("user_id", userID))
		return VerifyResult{Result: failed(msgInvalidCode)}, nil
	}

	settings, err := s.Settings(ctx)
	if err != nil {
		return VerifyResult{}, err
	}

	var codes []string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.MFAConfigs().MarkVerified(ctx, userID, cfg.Secret, now); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: enrollment changed during verification", ErrConflict)
			}
			return err
		}
		if err := tx.RecoveryCodes().RetireBatch(ctx, userID, now); err != nil {
			return err
		}
		codes, err = s.insertBatch(ctx, tx, userID, settings.RecoveryCodeCount, now)
		if err != nil {
			return err
		}
		return s.Users.SetMFAEnabled(ctx, tx, userID, true)
	})
	if err != nil {
		return VerifyResult{}, err
	}

	log.Info("mfa enabled", slog.String("user_id", userID), slog.Int("recovery_codes", len(codes)))
	return VerifyResult{Result: succeeded, RecoveryCodes: codes}, nil
}

// insertBatch stores n fresh recovery codes and returns them in clear text.
// Codes the user held before are never reissued.
func (s *MFAService) insertBatch(ctx context.Context, st store.Store, userID string, n int, now time.Time) ([]string, error) {
	if n < domain.MinRecoveryCodes {
		n = domain.MinRecoveryCodes
	}
	codes := make([]string, 0, n)
	for len(codes) < n {
		code, err := s.insertCode(ctx, st, userID, now)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func (s *MFAService) insertCode(ctx context.Context, st store.Store, userID string, now time.Time) (string, error) {
	for range maxCodeAttempts {
		code, err := cryptox.GenerateRecoveryCode()
		if err != nil {
			return "", err
		}
		err = st.RecoveryCodes().InsertRecoveryCode(ctx, domain.RecoveryCode{
			ID:        idx.New().String(),
			UserID:    userID,
			CodeHash:  cryptox.FingerprintRecoveryCode(code),
			CreatedAt: now,
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}
	return "", errors.New("could not generate a unique recovery code")
}

// VerifyRecoveryCode redeems a recovery code. Each code succeeds at most
// once, including under concurrent callers.
func (s *MFAService) VerifyRecoveryCode(ctx context.Context, userID, code string) (Result, error) {
	res, err := s.redeem(ctx, s.Store, userID, code)
	if err != nil {
		return Result{}, err
	}
	if res.Success {
		slogx.FromContext(ctx).Info("recovery code used", slog.String("user_id", userID))
	} else {
		slogx.FromContext(ctx).Warn("recovery code rejected", slog.String("user_id", userID))
	}
	return res, nil
}

func (s *MFAService) redeem(ctx context.Context, st store.Store, userID, code string) (Result, error) {
	if cryptox.NormalizeRecoveryCode(code) == "" {
		return failed(msgInvalidCode), nil
	}
	err := st.RecoveryCodes().RedeemRecoveryCode(ctx, userID, cryptox.FingerprintRecoveryCode(code), s.Clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		return failed(msgInvalidCode), nil
	}
	if err != nil {
		return Result{}, err
	}
	return succeeded, nil
}

// RegenerateRecoveryCodes replaces the user's batch. The new codes are
// disjoint from every code the user held before.
func (s *MFAService) RegenerateRecoveryCodes(ctx context.Context, userID string) ([]string, error) {
	if err := s.requireVerified(ctx, s.Store, userID); err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	var codes []string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RecoveryCodes().RetireBatch(ctx, userID, now); err != nil {
			return err
		}
		codes, err = s.insertBatch(ctx, tx, userID, settings.RecoveryCodeCount, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("recovery codes regenerated", slog.String("user_id", userID))
	return codes, nil
}

func (s *MFAService) RecoveryCodeStatus(ctx context.Context, userID string) (RecoveryCodeStatus, error) {
	if err := s.requireVerified(ctx, s.Store, userID); err != nil {
		return RecoveryCodeStatus{}, err
	}
	remaining, used, err := s.Store.RecoveryCodes().CountRecoveryCodes(ctx, userID)
	if err != nil {
		return RecoveryCodeStatus{}, err
	}
	return RecoveryCodeStatus{Remaining: remaining, Used: used}, nil
}

func (s *MFAService) Status(ctx context.Context, userID string) (MFAStatus, error) {
	user, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return MFAStatus{}, err
	}
	st := MFAStatus{State: domain.MFAStateNone, Enabled: user.MFAEnabled}

	cfg, err := s.Store.MFAConfigs().GetMFAConfig(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return st, nil
	case err != nil:
		return MFAStatus{}, err
	}
	st.State = cfg.State
	st.VerifiedAt = cfg.VerifiedAt

	if cfg.State == domain.MFAStateVerified {
		st.RemainingRecoveryCodes, _, err = s.Store.RecoveryCodes().CountRecoveryCodes(ctx, userID)
		if err != nil {
			return MFAStatus{}, err
		}
	}
	return st, nil
}

// DisableMFA returns the user to NONE.
func (s *MFAService) DisableMFA(ctx context.Context, userID string) (Result, error) {
	if err := s.disable(ctx, userID); err != nil {
		return Result{}, err
	}
	slogx.FromContext(ctx).Info("mfa disabled", slog.String("user_id", userID))
	return succeeded, nil
}

// AdminResetMFA is DisableMFA on behalf of an administrator. Authorization
// is the caller's job; actorID is recorded in the audit log.
func (s *MFAService) AdminResetMFA(ctx context.Context, actorID, targetUserID string) (Result, error) {
	if err := s.disable(ctx, targetUserID); err != nil {
		return Result{}, err
	}
	slogx.FromContext(ctx).Info("mfa reset by admin",
		slog.String("user_id", targetUserID), slog.String("actor_id", actorID))
	return succeeded, nil
}

func (s *MFAService) disable(ctx context.Context, userID string) error {
	if _, err := s.Users.GetUserByID(ctx, userID); err != nil {
		return err
	}
	now := s.Clock.Now()
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.MFAConfigs().GetMFAConfig(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrMFANotEnabled
		}
		if err != nil {
			return err
		}
		if err := tx.MFAConfigs().DeleteMFAConfig(ctx, userID); err != nil {
			return err
		}
		if err := tx.RecoveryCodes().RetireBatch(ctx, userID, now); err != nil {
			return err
		}
		if err := tx.LoginChallenges().DeleteUserLoginChallenges(ctx, userID); err != nil {
			return err
		}
		return s.Users.SetMFAEnabled(ctx, tx, userID, false)
	})
}

// RemoveForUser drops all MFA state of a user that is being deleted.
func (s *MFAService) RemoveForUser(ctx context.Context, st store.Store, userID string) error {
	if st == nil {
		st = s.Store
	}
	if err := st.MFAConfigs().DeleteMFAConfig(ctx, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return st.RecoveryCodes().DeleteAllRecoveryCodes(ctx, userID)
}

// VerifyLoginCode checks the second factor of a login against st.
func (s *MFAService) VerifyLoginCode(ctx context.Context, st store.Store, userID, method, code string) (Result, error) {
	if st == nil {
		st = s.Store
	}
	if err := s.requireVerified(ctx, st, userID); err != nil {
		return Result{}, err
	}

	switch method {
	case domain.MFAMethodRecoveryCode:
		return s.redeem(ctx, st, userID, code)
	case domain.MFAMethodTOTP:
		cfg, err := st.MFAConfigs().GetMFAConfig(ctx, userID)
		if err != nil {
			return Result{}, err
		}
		ok, err := totp.ValidateCustom(code, cfg.Secret, s.Clock.Now(), s.totpOpts())
		if err != nil || !ok {
			return failed(msgInvalidCode), nil
		}
		return succeeded, nil
	default:
		return Result{}, fmt.Errorf("%w: unsupported method %q", ErrValidation, method)
	}
}

func (s *MFAService) requireVerified(ctx context.Context, st store.Store, userID string) error {
	cfg, err := st.MFAConfigs().GetMFAConfig(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMFANotEnabled
	}
	if err != nil {
		return err
	}
	if cfg.State != domain.MFAStateVerified {
		return ErrMFANotEnabled
	}
	return nil
}

// Settings returns the saved MFA policy or the defaults.
func (s *MFAService) Settings(ctx context.Context) (domain.MFASettings, error) {
	settings, err := s.Store.Settings().GetMFASettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return domain.DefaultMFASettings(), nil
	}
	return settings, err
}

// UpdateSettings saves the MFA policy.
func (s *MFAService) UpdateSettings(ctx context.Context, actorID string, requiredForAdmins bool, recoveryCodeCount int) (domain.MFASettings, error) {
	if recoveryCodeCount < domain.MinRecoveryCodes || recoveryCodeCount > domain.MaxRecoveryCodes {
		return domain.MFASettings{}, ErrInvalidRecoveryCount
	}
	settings := domain.MFASettings{
		RequiredForAdmins: requiredForAdmins,
		RecoveryCodeCount: recoveryCodeCount,
		UpdatedBy:         actorID,
		UpdatedAt:         s.Clock.Now(),
	}
	if err := s.Store.Settings().PutMFASettings(ctx, settings); err != nil {
		return domain.MFASettings{}, err
	}

	slogx.FromContext(ctx).Info("mfa settings updated",
		slog.String("actor_id", actorID),
		slog.Bool("required_for_admins", requiredForAdmins),
		slog.Int("recovery_code_count", recoveryCodeCount))
	return settings, nil
}
