package invite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hereafterlabs/guardian-middleware/pkg/recovery"
)

func TestIssueToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	token, expiresAt, err := IssueToken(now)
	require.NoError(t, err)

	assert.Len(t, token, 64) // 32 random bytes hex-encoded
	assert.Equal(t, now.Add(recovery.InviteTTL), expiresAt)

	token2, _, err := IssueToken(now)
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestResolveAccess(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	keys := []*recovery.Key{
		{
			ID:              "k1",
			WalletAddress:   "0xAbCd000000000000000000000000000000000001",
			InviteToken:     "token-one",
			InviteExpiresAt: now.Add(time.Hour),
		},
		{
			ID:              "k2",
			WalletAddress:   "0xAbCd000000000000000000000000000000000002",
			InviteToken:     "token-two",
			InviteExpiresAt: now.Add(-time.Hour),
		},
	}

	t.Run("by address case insensitive", func(t *testing.T) {
		key, err := ResolveAccess(keys, recovery.AccessRequest{
			GuardianAddress: "0xabcd000000000000000000000000000000000001",
		}, now)
		require.NoError(t, err)
		assert.Equal(t, "k1", key.ID)
	})

	t.Run("by valid token", func(t *testing.T) {
		key, err := ResolveAccess(keys, recovery.AccessRequest{InviteToken: "token-one"}, now)
		require.NoError(t, err)
		assert.Equal(t, "k1", key.ID)
	})

	t.Run("expired token denied even when it matches", func(t *testing.T) {
		_, err := ResolveAccess(keys, recovery.AccessRequest{InviteToken: "token-two"}, now)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("expiry is absolute, not sliding", func(t *testing.T) {
		// A token valid a moment ago is denied the instant its original
		// expiry passes, regardless of how recently it was used.
		_, err := ResolveAccess(keys, recovery.AccessRequest{InviteToken: "token-one"}, now.Add(time.Hour))
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("unknown address denied", func(t *testing.T) {
		_, err := ResolveAccess(keys, recovery.AccessRequest{
			GuardianAddress: "0xabcd000000000000000000000000000000000099",
		}, now)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("unknown token denied", func(t *testing.T) {
		_, err := ResolveAccess(keys, recovery.AccessRequest{InviteToken: "nope"}, now)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("empty request denied", func(t *testing.T) {
		_, err := ResolveAccess(keys, recovery.AccessRequest{}, now)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})
}
