package recoverystore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/hereafterlabs/guardian-middleware/pkg/recovery"
)

// RecoveryDao maps directly to the 'recoveries' table in PostgreSQL.
type RecoveryDao struct {
	bun.BaseModel `bun:"table:recoveries,alias:r"`

	ID                 string     `bun:"id,pk,type:uuid"`
	OwnerID            string     `bun:"owner_id,notnull,type:varchar(64)"`
	WalletAddress      string     `bun:"wallet_address,notnull,type:varchar(42)"`
	EncryptedPayload   string     `bun:"encrypted_payload,notnull,type:text"`
	Status             string     `bun:"status,notnull,type:varchar(16)"`
	ContractRecoveryID *string    `bun:"contract_recovery_id,type:varchar(255)"`
	CreatedAt          time.Time  `bun:"created_at,notnull"`
	TriggeredAt        *time.Time `bun:"triggered_at"`
	CompletedAt        *time.Time `bun:"completed_at"`
	UpdatedAt          time.Time  `bun:"updated_at,notnull"`
}

// RecoveryKeyDao maps directly to the 'recovery_keys' table in PostgreSQL.
type RecoveryKeyDao struct {
	bun.BaseModel `bun:"table:recovery_keys,alias:rk"`

	ID              string     `bun:"id,pk,type:uuid"`
	RecoveryID      string     `bun:"recovery_id,notnull,type:uuid"`
	Email           string     `bun:"email,notnull,type:varchar(255)"`
	Name            string     `bun:"name,notnull,type:varchar(255)"`
	WalletAddress   string     `bun:"wallet_address,notnull,type:varchar(42)"`
	InviteToken     string     `bun:"invite_token,unique,notnull,type:varchar(64)"`
	InviteExpiresAt time.Time  `bun:"invite_expires_at,notnull"`
	HasAttested     bool       `bun:"has_attested,notnull,default:false"`
	AttestedAt      *time.Time `bun:"attested_at"`
}

func toRecoveryDao(rec *recovery.Recovery) *RecoveryDao {
	dao := &RecoveryDao{
		ID:               rec.ID,
		OwnerID:          rec.OwnerID,
		WalletAddress:    rec.WalletAddress,
		EncryptedPayload: rec.EncryptedPayload,
		Status:           string(rec.Status),
		CreatedAt:        rec.CreatedAt,
		TriggeredAt:      rec.TriggeredAt,
		CompletedAt:      rec.CompletedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
	if rec.ContractRecoveryID != "" {
		dao.ContractRecoveryID = &rec.ContractRecoveryID
	}
	return dao
}

func toRecovery(dao *RecoveryDao) *recovery.Recovery {
	rec := &recovery.Recovery{
		ID:               dao.ID,
		OwnerID:          dao.OwnerID,
		WalletAddress:    dao.WalletAddress,
		EncryptedPayload: dao.EncryptedPayload,
		Status:           recovery.Status(dao.Status),
		CreatedAt:        dao.CreatedAt,
		TriggeredAt:      dao.TriggeredAt,
		CompletedAt:      dao.CompletedAt,
		UpdatedAt:        dao.UpdatedAt,
	}
	if dao.ContractRecoveryID != nil {
		rec.ContractRecoveryID = *dao.ContractRecoveryID
	}
	return rec
}

func toKeyDao(k *recovery.Key) *RecoveryKeyDao {
	return &RecoveryKeyDao{
		ID:              k.ID,
		RecoveryID:      k.RecoveryID,
		Email:           k.Email,
		Name:            k.Name,
		WalletAddress:   k.WalletAddress,
		InviteToken:     k.InviteToken,
		InviteExpiresAt: k.InviteExpiresAt,
		HasAttested:     k.HasAttested,
		AttestedAt:      k.AttestedAt,
	}
}

func toKey(dao *RecoveryKeyDao) *recovery.Key {
	return &recovery.Key{
		ID:              dao.ID,
		RecoveryID:      dao.RecoveryID,
		Email:           dao.Email,
		Name:            dao.Name,
		WalletAddress:   dao.WalletAddress,
		InviteToken:     dao.InviteToken,
		InviteExpiresAt: dao.InviteExpiresAt,
		HasAttested:     dao.HasAttested,
		AttestedAt:      dao.AttestedAt,
	}
}
