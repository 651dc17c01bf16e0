package recovery

import "errors"

// Sentinel errors shared by the coordinator and the store. The HTTP layer
// maps these onto response categories; none of them is retryable.
var (
	// ErrDuplicateActiveRecovery is returned by setup when an active
	// recovery already exists for the wallet.
	ErrDuplicateActiveRecovery = errors.New("active recovery already exists for wallet")

	// ErrRecoveryNotFound is returned when no recovery matches the id.
	ErrRecoveryNotFound = errors.New("recovery not found")

	// ErrRecoveryNotActive is returned when an attestation arrives after
	// the recovery has already triggered or completed.
	ErrRecoveryNotActive = errors.New("recovery no longer accepting attestations")

	// ErrRecoveryNotTriggered is returned by complete before the threshold
	// has been met.
	ErrRecoveryNotTriggered = errors.New("recovery not triggered")

	// ErrTimeLockNotExpired is returned by complete inside the contest window.
	ErrTimeLockNotExpired = errors.New("time-lock not expired")

	// ErrInvalidSignature is returned for malformed or unverifiable signatures.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnauthorizedSigner is returned when a signature verifies but the
	// recovered signer matches no registered guardian.
	ErrUnauthorizedSigner = errors.New("signer does not match any recovery key")

	// ErrAlreadyAttested is returned when a guardian's key has already
	// attested; the attestation count is left unchanged.
	ErrAlreadyAttested = errors.New("recovery key already attested")

	// ErrKeyNotFound is returned when a recovery key id matches no row.
	ErrKeyNotFound = errors.New("recovery key not found")
)
