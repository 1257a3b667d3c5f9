package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store/drivers/sqlite"
	"github.com/factstofaith/gigglefits-sub006/pkg/idx"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedUser(t *testing.T, st store.Store, email string) domain.User {
	t.Helper()
	u := domain.User{
		ID:        idx.New().String(),
		Email:     email,
		Name:      "Test",
		Role:      domain.RoleUser,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), u))
	return u
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	empty, err := st.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	u := seedUser(t, st, "Alice@Example.com")

	got, err := st.Users().GetUserByEmail(ctx, "ALICE@example.COM")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "alice@example.com", got.Email)
	require.Equal(t, t0, got.CreatedAt)

	dup := u
	dup.ID = idx.New().String()
	dup.Email = "alice@EXAMPLE.com"
	require.ErrorIs(t, st.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

	require.NoError(t, st.Users().SetMFAEnabled(ctx, u.ID, true, t0.Add(time.Minute)))
	require.NoError(t, st.Users().SetOAuthIdentity(ctx, u.ID, "google", "g-1", t0.Add(time.Minute)))
	got, err = st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.MFAEnabled)
	require.True(t, got.IsOAuthLinked())

	// Provider and id must be set together.
	err = st.Users().SetOAuthIdentity(ctx, u.ID, "google", "", t0)
	require.Error(t, err)

	require.ErrorIs(t, st.Users().SetMFAEnabled(ctx, "missing", true, t0), store.ErrNotFound)
	_, err = st.Users().GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestInvitationAcceptIsConditional(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	u := seedUser(t, st, "admin@example.com")

	inv := domain.Invitation{
		ID:        idx.New().String(),
		Email:     "a@example.com",
		Role:      domain.RoleUser,
		Status:    domain.InvitationPending,
		TokenHash: "hash-1",
		CreatedBy: u.ID,
		CreatedAt: t0,
		ExpiresAt: t0.Add(24 * time.Hour),
	}
	require.NoError(t, st.Invitations().CreateInvitation(ctx, inv))

	dup := inv
	dup.ID = idx.New().String()
	require.ErrorIs(t, st.Invitations().CreateInvitation(ctx, dup), store.ErrAlreadyExists)

	// Past expiry the guard rejects the swap.
	err := st.Invitations().AcceptInvitation(ctx, inv.ID, u.ID, t0.Add(24*time.Hour))
	require.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, st.Invitations().AcceptInvitation(ctx, inv.ID, u.ID, t0.Add(time.Hour)))
	err = st.Invitations().AcceptInvitation(ctx, inv.ID, u.ID, t0.Add(time.Hour))
	require.ErrorIs(t, err, store.ErrConflict)

	got, err := st.Invitations().GetInvitationByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Equal(t, domain.InvitationAccepted, got.Status)
	require.Equal(t, u.ID, got.AcceptedBy)
	require.NotNil(t, got.AcceptedAt)

	require.ErrorIs(t, st.Invitations().RevokeInvitation(ctx, inv.ID, t0), store.ErrConflict)
}

func TestInvitationRevokeAndList(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	for i, h := range []string{"h1", "h2"} {
		require.NoError(t, st.Invitations().CreateInvitation(ctx, domain.Invitation{
			ID:        h,
			Email:     h + "@example.com",
			Role:      domain.RoleReadOnly,
			Status:    domain.InvitationPending,
			TokenHash: h,
			CreatedBy: "admin",
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
			ExpiresAt: t0.Add(time.Hour),
		}))
	}

	require.NoError(t, st.Invitations().RevokeInvitation(ctx, "h1", t0))
	list, err := st.Invitations().ListInvitations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "h2", list[0].ID)
	require.Equal(t, domain.InvitationRevoked, list[1].Status)
	require.NotNil(t, list[1].RevokedAt)
}

func TestMFAConfigTransitions(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	u := seedUser(t, st, "m@example.com")

	_, err := st.MFAConfigs().GetMFAConfig(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.MFAConfigs().UpsertEnrollment(ctx, u.ID, "SECRET1", t0))
	require.NoError(t, st.MFAConfigs().UpsertEnrollment(ctx, u.ID, "SECRET2", t0.Add(time.Minute)))

	require.ErrorIs(t, st.MFAConfigs().MarkVerified(ctx, u.ID, "SECRET1", t0), store.ErrConflict)
	require.NoError(t, st.MFAConfigs().MarkVerified(ctx, u.ID, "SECRET2", t0.Add(2*time.Minute)))

	cfg, err := st.MFAConfigs().GetMFAConfig(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MFAStateVerified, cfg.State)
	require.NotNil(t, cfg.VerifiedAt)

	require.ErrorIs(t, st.MFAConfigs().UpsertEnrollment(ctx, u.ID, "SECRET3", t0), store.ErrConflict)

	require.NoError(t, st.MFAConfigs().DeleteMFAConfig(ctx, u.ID))
	require.NoError(t, st.MFAConfigs().UpsertEnrollment(ctx, u.ID, "SECRET3", t0))
}

func TestRecoveryCodes(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	u := seedUser(t, st, "r@example.com")
	codes := st.RecoveryCodes()

	for _, h := range []string{"a", "b", "c"} {
		require.NoError(t, codes.InsertRecoveryCode(ctx, domain.RecoveryCode{
			ID: idx.New().String(), UserID: u.ID, CodeHash: h, CreatedAt: t0,
		}))
	}

	require.NoError(t, codes.RedeemRecoveryCode(ctx, u.ID, "a", t0))
	require.ErrorIs(t, codes.RedeemRecoveryCode(ctx, u.ID, "a", t0), store.ErrNotFound)

	remaining, used, err := codes.CountRecoveryCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 2, remaining)
	require.Equal(t, 1, used)

	require.NoError(t, codes.RetireBatch(ctx, u.ID, t0))
	remaining, used, err = codes.CountRecoveryCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, remaining)
	require.Zero(t, used)
	require.ErrorIs(t, codes.RedeemRecoveryCode(ctx, u.ID, "b", t0), store.ErrNotFound)

	// Retired hashes still block reuse.
	err = codes.InsertRecoveryCode(ctx, domain.RecoveryCode{
		ID: idx.New().String(), UserID: u.ID, CodeHash: "b", CreatedAt: t0,
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestRoleGrants(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	u := seedUser(t, st, "g@example.com")
	grants := st.RoleGrants()

	for _, g := range []domain.RoleGrant{
		{UserID: u.ID, Name: "USER", Source: domain.RoleSourceDefault, CreatedAt: t0},
		{UserID: u.ID, Name: "editor", Source: domain.RoleSourceOAuth, CreatedAt: t0},
		{UserID: u.ID, Name: "editor", Source: domain.RoleSourceOAuth, CreatedAt: t0},
	} {
		require.NoError(t, grants.GrantRole(ctx, g))
	}

	list, err := grants.ListRoleGrants(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, grants.RevokeRoleGrant(ctx, u.ID, "editor", domain.RoleSourceOAuth))
	require.ErrorIs(t, grants.RevokeRoleGrant(ctx, u.ID, "editor", domain.RoleSourceOAuth), store.ErrNotFound)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	_, err := st.Settings().GetMFASettings(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	want := domain.MFASettings{RequiredForAdmins: true, RecoveryCodeCount: 12, UpdatedBy: "admin", UpdatedAt: t0}
	require.NoError(t, st.Settings().PutMFASettings(ctx, want))
	want.RecoveryCodeCount = 16
	require.NoError(t, st.Settings().PutMFASettings(ctx, want))

	got, err := st.Settings().GetMFASettings(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	bad := want
	bad.RecoveryCodeCount = 4
	require.Error(t, st.Settings().PutMFASettings(ctx, bad))
}

func TestLoginChallenges(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	u := seedUser(t, st, "c@example.com")
	lc := st.LoginChallenges()

	require.NoError(t, lc.CreateLoginChallenge(ctx, domain.LoginChallenge{
		ID: idx.New().String(), TokenHash: "t1", UserID: u.ID, FirstFactor: "oauth", CreatedAt: t0, ExpiresAt: t0.Add(5 * time.Minute),
	}))

	n, err := lc.IncrementAttempts(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := lc.GetLoginChallenge(ctx, "t1", t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, got.Attempts)
	require.Equal(t, "oauth", got.FirstFactor)

	_, err = lc.GetLoginChallenge(ctx, "t1", t0.Add(5*time.Minute))
	require.ErrorIs(t, err, store.ErrNotFound)

	removed, err := lc.DeleteExpiredLoginChallenges(ctx, t0.Add(10*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	u := seedUser(t, st, "d@example.com")

	require.NoError(t, st.MFAConfigs().UpsertEnrollment(ctx, u.ID, "S", t0))
	require.NoError(t, st.RecoveryCodes().InsertRecoveryCode(ctx, domain.RecoveryCode{
		ID: "rc", UserID: u.ID, CodeHash: "x", CreatedAt: t0,
	}))
	require.NoError(t, st.Users().DeleteUser(ctx, u.ID))

	_, err := st.MFAConfigs().GetMFAConfig(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, st.Users().DeleteUser(ctx, u.ID), store.ErrNotFound)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	err := st.WithTx(ctx, func(tx store.Tx) error {
		seedUser(t, tx, "tx@example.com")
		_, err := tx.Tx(ctx)
		require.Error(t, err)
		return store.ErrConflict
	})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = st.Users().GetUserByEmail(ctx, "tx@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}
