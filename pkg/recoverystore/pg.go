// Package recoverystore persists recoveries and their guardian keys in
// PostgreSQL. All multi-row writes run inside bun transactions; the
// attest path serializes racing guardians with a row lock on the
// recovery.
package recoverystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/hereafterlabs/guardian-middleware/pkg/recovery"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the recovery store.
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

// AttestOutcome reports the result of recording one attestation.
type AttestOutcome struct {
	// AttestationCount is the attested-key count after the write.
	AttestationCount int

	// Triggered is true only for the attestation that caused the
	// active -> triggered transition. A third attestation on an already
	// triggered recovery is counted but reports false here.
	Triggered bool

	Status recovery.Status
}

// CreateRecovery persists the recovery and its guardian keys as one
// atomic unit: either all rows exist afterwards or none do.
func (s *pgStore) CreateRecovery(ctx context.Context, rec *recovery.Recovery, keys []*recovery.Key) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(toRecoveryDao(rec)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert recovery: %w", err)
		}
		for _, k := range keys {
			if _, err := tx.NewInsert().Model(toKeyDao(k)).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert recovery key: %w", err)
			}
		}
		return nil
	})
}

// GetRecovery returns the recovery with the given id.
func (s *pgStore) GetRecovery(ctx context.Context, id string) (*recovery.Recovery, error) {
	dao := new(RecoveryDao)
	err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recovery.ErrRecoveryNotFound
		}
		return nil, fmt.Errorf("failed to get recovery: %w", err)
	}
	return toRecovery(dao), nil
}

// GetActiveRecoveryByWallet returns the active recovery for the wallet,
// or ErrRecoveryNotFound when none exists.
func (s *pgStore) GetActiveRecoveryByWallet(ctx context.Context, walletAddress string) (*recovery.Recovery, error) {
	dao := new(RecoveryDao)
	err := s.db.NewSelect().Model(dao).
		Where("LOWER(wallet_address) = LOWER(?)", walletAddress).
		Where("status = ?", string(recovery.StatusActive)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recovery.ErrRecoveryNotFound
		}
		return nil, fmt.Errorf("failed to get active recovery: %w", err)
	}
	return toRecovery(dao), nil
}

// GetLatestRecoveryByWallet returns the most recently created recovery
// for the wallet regardless of status.
func (s *pgStore) GetLatestRecoveryByWallet(ctx context.Context, walletAddress string) (*recovery.Recovery, error) {
	dao := new(RecoveryDao)
	err := s.db.NewSelect().Model(dao).
		Where("LOWER(wallet_address) = LOWER(?)", walletAddress).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recovery.ErrRecoveryNotFound
		}
		return nil, fmt.Errorf("failed to get latest recovery: %w", err)
	}
	return toRecovery(dao), nil
}

// GetKeys returns all guardian keys for a recovery.
func (s *pgStore) GetKeys(ctx context.Context, recoveryID string) ([]*recovery.Key, error) {
	var daos []RecoveryKeyDao
	err := s.db.NewSelect().Model(&daos).
		Where("recovery_id = ?", recoveryID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery keys: %w", err)
	}
	keys := make([]*recovery.Key, len(daos))
	for i := range daos {
		keys[i] = toKey(&daos[i])
	}
	return keys, nil
}

// AttestKey records one guardian attestation and, when the post-write
// count reaches the threshold, performs the active -> triggered
// transition. The lock-read-decide-write sequence runs in a single
// transaction with the recovery row locked FOR UPDATE, so two guardians
// racing to be the second attester serialize and exactly one of them
// observes the transition.
func (s *pgStore) AttestKey(ctx context.Context, recoveryID, keyID string, now time.Time) (*AttestOutcome, error) {
	var outcome *AttestOutcome

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		recDao := new(RecoveryDao)
		err := tx.NewSelect().Model(recDao).
			Where("id = ?", recoveryID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return recovery.ErrRecoveryNotFound
			}
			return fmt.Errorf("failed to lock recovery: %w", err)
		}

		// Attestations are accepted until the recovery is terminal: a third
		// guardian attesting after the trigger is still counted.
		if recovery.Status(recDao.Status) == recovery.StatusCompleted {
			return recovery.ErrRecoveryNotActive
		}

		// Guarded flip: has_attested never reverts, so the WHERE clause
		// makes a second attempt a no-op we can detect.
		res, err := tx.NewUpdate().Model((*RecoveryKeyDao)(nil)).
			Set("has_attested = TRUE").
			Set("attested_at = ?", now).
			Where("id = ?", keyID).
			Where("recovery_id = ?", recoveryID).
			Where("has_attested = FALSE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to record attestation: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			exists, err := tx.NewSelect().Model((*RecoveryKeyDao)(nil)).
				Where("id = ?", keyID).
				Where("recovery_id = ?", recoveryID).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("failed to check recovery key: %w", err)
			}
			if !exists {
				return recovery.ErrKeyNotFound
			}
			return recovery.ErrAlreadyAttested
		}

		// Re-read the full key set post-write; the threshold decision must
		// never act on a pre-fetched count.
		var keyDaos []RecoveryKeyDao
		if err := tx.NewSelect().Model(&keyDaos).
			Where("recovery_id = ?", recoveryID).
			Scan(ctx); err != nil {
			return fmt.Errorf("failed to re-read recovery keys: %w", err)
		}
		keys := make([]*recovery.Key, len(keyDaos))
		for i := range keyDaos {
			keys[i] = toKey(&keyDaos[i])
		}

		outcome = &AttestOutcome{
			AttestationCount: recovery.AttestedCount(keys),
			Status:           recovery.Status(recDao.Status),
		}

		if recovery.ThresholdMet(keys) {
			// The status guard keeps the transition at-most-once: an
			// attestation landing after the trigger matches zero rows,
			// is still counted, and never touches triggered_at.
			res, err := tx.NewUpdate().Model((*RecoveryDao)(nil)).
				Set("status = ?", string(recovery.StatusTriggered)).
				Set("triggered_at = ?", now).
				Set("updated_at = ?", now).
				Where("id = ?", recoveryID).
				Where("status = ?", string(recovery.StatusActive)).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to trigger recovery: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read affected rows: %w", err)
			}
			outcome.Triggered = affected == 1
			outcome.Status = recovery.StatusTriggered
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// CompleteRecovery performs the triggered -> completed transition.
// The guarded update makes completion idempotent-safe: a second call
// finds no triggered row and reports ErrRecoveryNotTriggered.
func (s *pgStore) CompleteRecovery(ctx context.Context, recoveryID string, now time.Time) error {
	res, err := s.db.NewUpdate().Model((*RecoveryDao)(nil)).
		Set("status = ?", string(recovery.StatusCompleted)).
		Set("completed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", recoveryID).
		Where("status = ?", string(recovery.StatusTriggered)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to complete recovery: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return recovery.ErrRecoveryNotTriggered
	}
	return nil
}

// SetContractRecoveryID records the ledger mirror's correlation id. The
// write is best-effort bookkeeping and never gates a state transition.
func (s *pgStore) SetContractRecoveryID(ctx context.Context, recoveryID, contractRecoveryID string) error {
	_, err := s.db.NewUpdate().Model((*RecoveryDao)(nil)).
		Set("contract_recovery_id = ?", contractRecoveryID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", recoveryID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set contract recovery id: %w", err)
	}
	return nil
}
