package recoverystore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"

	"github.com/hereafterlabs/guardian-middleware/pkg/migrations/recoverydb"
	"github.com/hereafterlabs/guardian-middleware/pkg/pgutil"
	"github.com/hereafterlabs/guardian-middleware/pkg/recovery"
	"github.com/hereafterlabs/guardian-middleware/pkg/recoverystore"
)

// store is the service-facing contract the postgres store must satisfy.
type store interface {
	CreateRecovery(ctx context.Context, rec *recovery.Recovery, keys []*recovery.Key) error
	GetRecovery(ctx context.Context, id string) (*recovery.Recovery, error)
	GetActiveRecoveryByWallet(ctx context.Context, walletAddress string) (*recovery.Recovery, error)
	GetLatestRecoveryByWallet(ctx context.Context, walletAddress string) (*recovery.Recovery, error)
	GetKeys(ctx context.Context, recoveryID string) ([]*recovery.Key, error)
	AttestKey(ctx context.Context, recoveryID, keyID string, now time.Time) (*recoverystore.AttestOutcome, error)
	CompleteRecovery(ctx context.Context, recoveryID string, now time.Time) error
	SetContractRecoveryID(ctx context.Context, recoveryID, contractRecoveryID string) error
}

func setupStore(t *testing.T) store {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	db := pgutil.SetupTestDB(t)

	migrator := migrate.NewMigrator(db, recoverydb.Migrations)
	ctx := context.Background()
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)

	return recoverystore.NewStore(db)
}

func newRecovery(wallet string) (*recovery.Recovery, []*recovery.Key) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := &recovery.Recovery{
		ID:               uuid.NewString(),
		OwnerID:          "owner-1",
		WalletAddress:    wallet,
		EncryptedPayload: "sealed-payload",
		Status:           recovery.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	keys := make([]*recovery.Key, recovery.GuardianCount)
	for i := range keys {
		keys[i] = &recovery.Key{
			ID:              uuid.NewString(),
			RecoveryID:      rec.ID,
			Email:           uuid.NewString() + "@example.com",
			Name:            "Guardian",
			WalletAddress:   "0x" + uuid.NewString()[:8] + "00000000000000000000000000000000",
			InviteToken:     uuid.NewString(),
			InviteExpiresAt: now.Add(recovery.InviteTTL),
		}
	}
	return rec, keys
}

func TestCreateAndGetRecovery(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	rec, keys := newRecovery("0x1111111111111111111111111111111111111111")
	require.NoError(t, s.CreateRecovery(ctx, rec, keys))

	got, err := s.GetRecovery(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, recovery.StatusActive, got.Status)
	assert.Equal(t, "sealed-payload", got.EncryptedPayload)

	gotKeys, err := s.GetKeys(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, gotKeys, recovery.GuardianCount)
	for _, k := range gotKeys {
		assert.False(t, k.HasAttested)
	}

	_, err = s.GetRecovery(ctx, uuid.NewString())
	assert.ErrorIs(t, err, recovery.ErrRecoveryNotFound)
}

func TestActiveRecoveryLookup(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	rec, keys := newRecovery("0xAbCd111111111111111111111111111111111111")
	require.NoError(t, s.CreateRecovery(ctx, rec, keys))

	t.Run("case insensitive wallet match", func(t *testing.T) {
		got, err := s.GetActiveRecoveryByWallet(ctx, "0xabcd111111111111111111111111111111111111")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
	})

	t.Run("unique active recovery enforced by index", func(t *testing.T) {
		dup, dupKeys := newRecovery("0xABCD111111111111111111111111111111111111")
		err := s.CreateRecovery(ctx, dup, dupKeys)
		assert.Error(t, err, "partial unique index must reject a second active recovery")
	})

	t.Run("not found for other wallet", func(t *testing.T) {
		_, err := s.GetActiveRecoveryByWallet(ctx, "0x2222222222222222222222222222222222222222")
		assert.ErrorIs(t, err, recovery.ErrRecoveryNotFound)
	})
}

func TestAttestKeyLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, keys := newRecovery("0x3333333333333333333333333333333333333333")
	require.NoError(t, s.CreateRecovery(ctx, rec, keys))

	outcome, err := s.AttestKey(ctx, rec.ID, keys[0].ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.AttestationCount)
	assert.False(t, outcome.Triggered)
	assert.Equal(t, recovery.StatusActive, outcome.Status)

	t.Run("duplicate attestation rejected", func(t *testing.T) {
		_, err := s.AttestKey(ctx, rec.ID, keys[0].ID, now)
		assert.ErrorIs(t, err, recovery.ErrAlreadyAttested)
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		_, err := s.AttestKey(ctx, rec.ID, uuid.NewString(), now)
		assert.ErrorIs(t, err, recovery.ErrKeyNotFound)
	})

	t.Run("second attestation triggers", func(t *testing.T) {
		outcome, err := s.AttestKey(ctx, rec.ID, keys[1].ID, now)
		require.NoError(t, err)
		assert.Equal(t, 2, outcome.AttestationCount)
		assert.True(t, outcome.Triggered)
		assert.Equal(t, recovery.StatusTriggered, outcome.Status)

		got, err := s.GetRecovery(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, recovery.StatusTriggered, got.Status)
		require.NotNil(t, got.TriggeredAt)
	})

	t.Run("late attestation counted without re-trigger", func(t *testing.T) {
		before, err := s.GetRecovery(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, before.TriggeredAt)

		outcome, err := s.AttestKey(ctx, rec.ID, keys[2].ID, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 3, outcome.AttestationCount)
		assert.False(t, outcome.Triggered)
		assert.Equal(t, recovery.StatusTriggered, outcome.Status)

		after, err := s.GetRecovery(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, after.TriggeredAt)
		assert.True(t, after.TriggeredAt.Equal(*before.TriggeredAt))
	})
}

func TestAttestKeyConcurrentTriggerOnce(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, keys := newRecovery("0x4444444444444444444444444444444444444444")
	require.NoError(t, s.CreateRecovery(ctx, rec, keys))

	_, err := s.AttestKey(ctx, rec.ID, keys[0].ID, now)
	require.NoError(t, err)

	// Guardians two and three race; the row lock serializes them and only
	// one observes the transition.
	var wg sync.WaitGroup
	outcomes := make([]*recoverystore.AttestOutcome, 2)
	errs := make([]error, 2)
	for i, key := range keys[1:] {
		wg.Add(1)
		go func(i int, keyID string) {
			defer wg.Done()
			outcomes[i], errs[i] = s.AttestKey(ctx, rec.ID, keyID, now)
		}(i, key.ID)
	}
	wg.Wait()

	triggered := 0
	for i := range outcomes {
		require.NoError(t, errs[i], "racing attestations must both be accepted")
		if outcomes[i].Triggered {
			triggered++
		}
	}
	assert.Equal(t, 1, triggered)

	got, err := s.GetRecovery(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, recovery.StatusTriggered, got.Status)

	gotKeys, err := s.GetKeys(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, recovery.AttestedCount(gotKeys))
}

func TestCompleteRecovery(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, keys := newRecovery("0x5555555555555555555555555555555555555555")
	require.NoError(t, s.CreateRecovery(ctx, rec, keys))

	t.Run("not triggered yet", func(t *testing.T) {
		err := s.CompleteRecovery(ctx, rec.ID, now)
		assert.ErrorIs(t, err, recovery.ErrRecoveryNotTriggered)
	})

	_, err := s.AttestKey(ctx, rec.ID, keys[0].ID, now)
	require.NoError(t, err)
	_, err = s.AttestKey(ctx, rec.ID, keys[1].ID, now)
	require.NoError(t, err)

	t.Run("completes once", func(t *testing.T) {
		require.NoError(t, s.CompleteRecovery(ctx, rec.ID, now))

		got, err := s.GetRecovery(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, recovery.StatusCompleted, got.Status)
		require.NotNil(t, got.CompletedAt)

		err = s.CompleteRecovery(ctx, rec.ID, now)
		assert.ErrorIs(t, err, recovery.ErrRecoveryNotTriggered)
	})

	t.Run("attestation after completion rejected", func(t *testing.T) {
		_, err := s.AttestKey(ctx, rec.ID, keys[2].ID, now)
		assert.ErrorIs(t, err, recovery.ErrRecoveryNotActive)
	})
}

func TestSetContractRecoveryID(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	rec, keys := newRecovery("0x6666666666666666666666666666666666666666")
	require.NoError(t, s.CreateRecovery(ctx, rec, keys))

	require.NoError(t, s.SetContractRecoveryID(ctx, rec.ID, "contract-42"))

	got, err := s.GetRecovery(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "contract-42", got.ContractRecoveryID)
}

func TestGetLatestRecoveryByWallet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	wallet := "0x7777777777777777777777777777777777777777"
	first, firstKeys := newRecovery(wallet)
	first.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, s.CreateRecovery(ctx, first, firstKeys))

	// Finish the first campaign so a second one may exist.
	_, err := s.AttestKey(ctx, first.ID, firstKeys[0].ID, now)
	require.NoError(t, err)
	_, err = s.AttestKey(ctx, first.ID, firstKeys[1].ID, now)
	require.NoError(t, err)
	require.NoError(t, s.CompleteRecovery(ctx, first.ID, now))

	second, secondKeys := newRecovery(wallet)
	require.NoError(t, s.CreateRecovery(ctx, second, secondKeys))

	got, err := s.GetLatestRecoveryByWallet(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}
