// Package ledgermirror bridges recovery state to an external recovery
// contract ledger on a best-effort basis. The mirror owns no
// authoritative state: every call is optional, independently failable,
// and never a dependency for correctness of the recovery state machine.
package ledgermirror

import (
	"context"
	"time"
)

// InitiateRequest describes a newly created recovery to the ledger.
type InitiateRequest struct {
	RecoveryID       string   `json:"recovery_id"`
	WalletAddress    string   `json:"wallet_address"`
	GuardianAddrs    []string `json:"guardian_addresses"`
	EncryptedPayload string   `json:"encrypted_payload"`
}

// Status is the ledger's view of a mirrored recovery.
type Status struct {
	ContractRecoveryID string     `json:"contract_recovery_id"`
	State              string     `json:"state"`
	AttestationCount   int        `json:"attestation_count"`
	TriggeredAt        *time.Time `json:"triggered_at,omitzero"`
	EncryptedPayload   string     `json:"encrypted_payload,omitzero"`
}

// Mirror is the narrow contract the coordinator depends on. Implementations
// are injected at construction; Noop serves tests and mirror-disabled
// deployments.
type Mirror interface {
	// Initiate registers the recovery with the ledger and returns the
	// contract correlation id.
	Initiate(ctx context.Context, req *InitiateRequest) (string, error)

	// Attest mirrors a guardian attestation.
	Attest(ctx context.Context, contractRecoveryID, guardianAddress string) error

	// Complete mirrors the completion and returns the ledger's copy of the
	// encrypted payload, if it holds one.
	Complete(ctx context.Context, contractRecoveryID string) (string, error)

	// GetStatus returns the ledger's view of the recovery.
	GetStatus(ctx context.Context, contractRecoveryID string) (*Status, error)
}

// Noop is a Mirror that does nothing. Its Initiate returns an empty
// correlation id, which the coordinator already treats as "never mirrored".
type Noop struct{}

func (Noop) Initiate(context.Context, *InitiateRequest) (string, error) { return "", nil }
func (Noop) Attest(context.Context, string, string) error               { return nil }
func (Noop) Complete(context.Context, string) (string, error)           { return "", nil }
func (Noop) GetStatus(context.Context, string) (*Status, error)         { return nil, nil }
