// Package recovery holds the domain model for guardian-attested wallet
// recovery: a Recovery campaign, its three guardian Keys, and the pure
// threshold/time-lock computations the coordinator is built on.
package recovery

import "time"

// Lifecycle constants. These are system-wide and deliberately not
// configurable per request: the same values gate triggering, status
// display, and completion.
const (
	// GuardianCount is the number of recovery keys created with every recovery.
	GuardianCount = 3

	// Threshold is the number of guardian attestations required to trigger.
	Threshold = 2

	// TimeLockDelay is the mandatory window between triggering and
	// completion, giving the wallet owner time to contest.
	TimeLockDelay = 7 * 24 * time.Hour

	// InviteTTL is the absolute lifetime of a guardian invite token.
	// It is fixed at creation and never extended.
	InviteTTL = 30 * 24 * time.Hour
)

// Status is the recovery lifecycle state. Transitions are strictly
// forward: active -> triggered -> completed.
type Status string

const (
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusCompleted Status = "completed"
)

// Recovery represents one wallet-recovery campaign.
type Recovery struct {
	ID               string
	OwnerID          string
	WalletAddress    string
	EncryptedPayload string
	Status           Status

	// ContractRecoveryID correlates this recovery with the external ledger
	// mirror. Empty until (and unless) the mirror's initiate call succeeds;
	// its absence never blocks a state transition.
	ContractRecoveryID string

	CreatedAt   time.Time
	TriggeredAt *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// Key binds one guardian to one recovery. Exactly GuardianCount keys are
// created atomically with the recovery; keys are never added or removed
// afterwards.
type Key struct {
	ID         string
	RecoveryID string

	// Email and Name identify the guardian for invite delivery.
	Email string
	Name  string

	// WalletAddress is the guardian's authentication identity: the address
	// whose EIP-191 signature counts as this guardian's attestation.
	WalletAddress string

	InviteToken     string
	InviteExpiresAt time.Time

	// HasAttested flips to true exactly once and never reverts.
	HasAttested bool
	AttestedAt  *time.Time
}

// GuardianSpec describes one guardian in a setup request.
type GuardianSpec struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	WalletAddress string `json:"wallet_address" validate:"required,eth_addr"`
}

// SetupRequest is the payload for creating a recovery.
type SetupRequest struct {
	WalletAddress    string         `json:"wallet_address" validate:"required,eth_addr"`
	Guardians        []GuardianSpec `json:"guardians" validate:"required,len=3,dive"`
	EncryptedPayload string         `json:"encrypted_payload" validate:"required"`
}

// SetupResponse is returned after a successful setup.
type SetupResponse struct {
	RecoveryID string `json:"recovery_id"`
}

// AttestRequest carries a guardian's signed attestation.
type AttestRequest struct {
	Signature string `json:"signature"`
}

// AttestResponse reports the attestation count after the guardian's
// attestation was recorded, and whether this attestation triggered the
// time-lock.
type AttestResponse struct {
	AttestationCount int  `json:"attestation_count"`
	Triggered        bool `json:"triggered"`
}

// CompleteResponse releases the encrypted payload.
type CompleteResponse struct {
	EncryptedPayload string `json:"encrypted_payload"`
}

// StatusResponse is the read-only view of a wallet's recovery.
type StatusResponse struct {
	Exists           bool       `json:"exists"`
	Status           Status     `json:"status,omitzero"`
	AttestationCount int        `json:"attestation_count"`
	TriggeredAt      *time.Time `json:"triggered_at,omitzero"`
	TimeRemaining    *int64     `json:"time_remaining_seconds,omitzero"`
	CanComplete      bool       `json:"can_complete"`

	// MirrorStatus is the external ledger's view, included when the mirror
	// is reachable and a contract correlation exists. Advisory only.
	MirrorStatus string `json:"mirror_status,omitzero"`
}

// AccessRequest identifies a guardian at the key portal, either by their
// authenticating address or by their invite token.
type AccessRequest struct {
	GuardianAddress string `json:"guardian_address,omitzero"`
	InviteToken     string `json:"invite_token,omitzero"`
}

// AccessResponse tells a guardian where the recovery stands and whether
// their attestation would still be accepted.
type AccessResponse struct {
	Status      Status `json:"status"`
	HasAttested bool   `json:"has_attested"`
	CanAttest   bool   `json:"can_attest"`
}
