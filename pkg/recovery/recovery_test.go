package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttestedCount(t *testing.T) {
	keys := []*Key{
		{ID: "k1", HasAttested: true},
		{ID: "k2", HasAttested: false},
		{ID: "k3", HasAttested: true},
	}

	assert.Equal(t, 2, AttestedCount(keys))
	assert.Equal(t, 0, AttestedCount(nil))
}

func TestThresholdMet(t *testing.T) {
	tests := []struct {
		name     string
		attested int
		want     bool
	}{
		{"no attestations", 0, false},
		{"one attestation", 1, false},
		{"threshold reached", 2, true},
		{"all attested", 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := make([]*Key, GuardianCount)
			for i := range keys {
				keys[i] = &Key{HasAttested: i < tt.attested}
			}
			assert.Equal(t, tt.want, ThresholdMet(keys))
		})
	}
}

func TestFindKeyByAddress(t *testing.T) {
	keys := []*Key{
		{ID: "k1", WalletAddress: "0xAbCd000000000000000000000000000000000001"},
		{ID: "k2", WalletAddress: "0xabcd000000000000000000000000000000000002"},
	}

	t.Run("case insensitive match", func(t *testing.T) {
		key := FindKeyByAddress(keys, "0xABCD000000000000000000000000000000000002")
		require.NotNil(t, key)
		assert.Equal(t, "k2", key.ID)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Nil(t, FindKeyByAddress(keys, "0xabcd000000000000000000000000000000000099"))
	})
}

func TestTimeLock(t *testing.T) {
	triggeredAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	unlockAt := UnlockAt(triggeredAt)

	assert.Equal(t, triggeredAt.Add(7*24*time.Hour), unlockAt)

	t.Run("remaining before unlock", func(t *testing.T) {
		now := triggeredAt.Add(24 * time.Hour)
		assert.Equal(t, 6*24*time.Hour, Remaining(now, unlockAt))
		assert.False(t, TimeLockExpired(now, triggeredAt))
	})

	t.Run("remaining clamps at zero", func(t *testing.T) {
		now := unlockAt.Add(time.Hour)
		assert.Equal(t, time.Duration(0), Remaining(now, unlockAt))
		assert.True(t, TimeLockExpired(now, triggeredAt))
	})

	t.Run("exact unlock instant is expired", func(t *testing.T) {
		assert.True(t, TimeLockExpired(unlockAt, triggeredAt))
		assert.Equal(t, time.Duration(0), Remaining(unlockAt, unlockAt))
	})
}

func TestAttestationMessage(t *testing.T) {
	msg := AttestationMessage("rec-1", "0xAbCd000000000000000000000000000000000001")

	assert.Equal(t, "Hereafter Guardian Recovery\nRecovery-ID: rec-1\nWallet: 0xabcd000000000000000000000000000000000001", msg)

	// Mixed-case representations of the same address must sign the same bytes.
	assert.Equal(t, msg, AttestationMessage("rec-1", "0xABCD000000000000000000000000000000000001"))
}
