// Package service implements the recovery coordinator: the single owner
// of the recovery state machine and its transaction boundaries.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hereafterlabs/guardian-middleware/internal/metrics"
	apperrors "github.com/hereafterlabs/guardian-middleware/pkg/app/errors"
	"github.com/hereafterlabs/guardian-middleware/pkg/auth"
	"github.com/hereafterlabs/guardian-middleware/pkg/invite"
	"github.com/hereafterlabs/guardian-middleware/pkg/keys"
	"github.com/hereafterlabs/guardian-middleware/pkg/ledgermirror"
	"github.com/hereafterlabs/guardian-middleware/pkg/notify"
	"github.com/hereafterlabs/guardian-middleware/pkg/recovery"
	"github.com/hereafterlabs/guardian-middleware/pkg/recoverystore"
)

// recoveryType labels the analytics sink; this engine only implements
// guardian-attested recovery.
const recoveryType = "guardian"

// Store is the narrow data-access interface for the coordinator. The
// store owns atomic execution of the multi-row writes; the coordinator
// owns every state-machine decision around them.
type Store interface {
	CreateRecovery(ctx context.Context, rec *recovery.Recovery, recKeys []*recovery.Key) error
	GetRecovery(ctx context.Context, id string) (*recovery.Recovery, error)
	GetActiveRecoveryByWallet(ctx context.Context, walletAddress string) (*recovery.Recovery, error)
	GetLatestRecoveryByWallet(ctx context.Context, walletAddress string) (*recovery.Recovery, error)
	GetKeys(ctx context.Context, recoveryID string) ([]*recovery.Key, error)
	AttestKey(ctx context.Context, recoveryID, keyID string, now time.Time) (*recoverystore.AttestOutcome, error)
	CompleteRecovery(ctx context.Context, recoveryID string, now time.Time) error
	SetContractRecoveryID(ctx context.Context, recoveryID, contractRecoveryID string) error
}

// Service defines the coordinator's public contract.
type Service interface {
	Setup(ctx context.Context, ownerID string, req *recovery.SetupRequest) (*recovery.SetupResponse, error)
	Attest(ctx context.Context, recoveryID string, req *recovery.AttestRequest) (*recovery.AttestResponse, error)
	Complete(ctx context.Context, recoveryID string) (*recovery.CompleteResponse, error)
	Status(ctx context.Context, walletAddress string) (*recovery.StatusResponse, error)
	Access(ctx context.Context, recoveryID string, req *recovery.AccessRequest) (*recovery.AccessResponse, error)
}

type coordinator struct {
	store    Store
	mirror   ledgermirror.Mirror
	notifier notify.Notifier
	cipher   keys.PayloadCipher
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures the coordinator.
type Option func(*coordinator)

// WithClock overrides the coordinator's time source. Tests only; the
// production clock is always the server's own.
func WithClock(now func() time.Time) Option {
	return func(c *coordinator) { c.now = now }
}

// NewService creates a new recovery coordinator. The mirror and notifier
// are best-effort collaborators; pass ledgermirror.Noop / notify.Noop
// when they are not deployed.
func NewService(
	store Store,
	mirror ledgermirror.Mirror,
	notifier notify.Notifier,
	cipher keys.PayloadCipher,
	logger *zap.Logger,
	opts ...Option,
) Service {
	c := &coordinator{
		store:    store,
		mirror:   mirror,
		notifier: notifier,
		cipher:   cipher,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Setup creates a recovery with its three guardian keys in one atomic
// unit, then dispatches invites and mirrors the initiation best-effort.
func (c *coordinator) Setup(ctx context.Context, ownerID string, req *recovery.SetupRequest) (*recovery.SetupResponse, error) {
	if err := validateSetup(req); err != nil {
		return nil, apperrors.BadRequestError(err, err.Error())
	}

	walletAddress := auth.NormalizeAddress(req.WalletAddress)

	_, err := c.store.GetActiveRecoveryByWallet(ctx, walletAddress)
	switch {
	case err == nil:
		return nil, apperrors.ConflictError(recovery.ErrDuplicateActiveRecovery, "active recovery already exists for this wallet")
	case !errors.Is(err, recovery.ErrRecoveryNotFound):
		return nil, fmt.Errorf("failed to check for active recovery: %w", err)
	}

	now := c.now()
	rec := &recovery.Recovery{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		WalletAddress: walletAddress,
		Status:        recovery.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	sealed, err := c.cipher.Seal(rec.ID, []byte(req.EncryptedPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to seal payload: %w", err)
	}
	rec.EncryptedPayload = sealed

	recKeys := make([]*recovery.Key, 0, recovery.GuardianCount)
	for _, g := range req.Guardians {
		token, expiresAt, err := invite.IssueToken(now)
		if err != nil {
			return nil, fmt.Errorf("failed to issue invite token: %w", err)
		}
		recKeys = append(recKeys, &recovery.Key{
			ID:              uuid.NewString(),
			RecoveryID:      rec.ID,
			Email:           g.Email,
			Name:            g.Name,
			WalletAddress:   auth.NormalizeAddress(g.WalletAddress),
			InviteToken:     token,
			InviteExpiresAt: expiresAt,
		})
	}

	if err := c.store.CreateRecovery(ctx, rec, recKeys); err != nil {
		metrics.RecoveryAttemptsTotal.WithLabelValues(recoveryType, "false").Inc()
		return nil, fmt.Errorf("failed to create recovery: %w", err)
	}
	metrics.RecoveryAttemptsTotal.WithLabelValues(recoveryType, "true").Inc()

	c.mirrorInitiate(ctx, rec, recKeys)
	c.dispatchInvites(ctx, rec, recKeys)

	return &recovery.SetupResponse{RecoveryID: rec.ID}, nil
}

// Attest authenticates a guardian's signed attestation and records it.
// The store serializes racing attesters; the trigger transition happens
// at most once regardless of arrival order.
func (c *coordinator) Attest(ctx context.Context, recoveryID string, req *recovery.AttestRequest) (*recovery.AttestResponse, error) {
	rec, err := c.store.GetRecovery(ctx, recoveryID)
	if err != nil {
		if errors.Is(err, recovery.ErrRecoveryNotFound) {
			metrics.AttestationsTotal.WithLabelValues("not_found").Inc()
			return nil, apperrors.ResourceNotFoundError(err, "recovery not found")
		}
		return nil, fmt.Errorf("failed to load recovery: %w", err)
	}

	// Late attestations on a triggered recovery are still counted; only a
	// completed recovery stops accepting them.
	if rec.Status == recovery.StatusCompleted {
		metrics.AttestationsTotal.WithLabelValues("not_active").Inc()
		return nil, apperrors.ConflictError(recovery.ErrRecoveryNotActive, "recovery is no longer accepting attestations")
	}

	if _, err := auth.ValidateSignatureFormat(req.Signature); err != nil {
		metrics.AttestationsTotal.WithLabelValues("invalid_signature").Inc()
		return nil, apperrors.BadRequestError(errors.Join(recovery.ErrInvalidSignature, err), "invalid signature")
	}

	message := recovery.AttestationMessage(rec.ID, rec.WalletAddress)
	signer, err := auth.VerifyEIP191Signature(message, req.Signature)
	if err != nil {
		metrics.AttestationsTotal.WithLabelValues("invalid_signature").Inc()
		return nil, apperrors.BadRequestError(errors.Join(recovery.ErrInvalidSignature, err), "invalid signature")
	}

	recKeys, err := c.store.GetKeys(ctx, recoveryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery keys: %w", err)
	}

	key := recovery.FindKeyByAddress(recKeys, signer.Hex())
	if key == nil {
		// The denial is deliberately uniform so callers cannot probe which
		// guardian addresses are registered.
		metrics.AttestationsTotal.WithLabelValues("unauthorized").Inc()
		return nil, apperrors.UnAuthorizedError(recovery.ErrUnauthorizedSigner, "signer is not authorized for this recovery")
	}

	outcome, err := c.store.AttestKey(ctx, recoveryID, key.ID, c.now())
	if err != nil {
		switch {
		case errors.Is(err, recovery.ErrAlreadyAttested):
			metrics.AttestationsTotal.WithLabelValues("duplicate").Inc()
			return nil, apperrors.ConflictError(err, "attestation already recorded for this guardian")
		case errors.Is(err, recovery.ErrRecoveryNotActive):
			metrics.AttestationsTotal.WithLabelValues("not_active").Inc()
			return nil, apperrors.ConflictError(err, "recovery is no longer accepting attestations")
		case errors.Is(err, recovery.ErrRecoveryNotFound), errors.Is(err, recovery.ErrKeyNotFound):
			metrics.AttestationsTotal.WithLabelValues("not_found").Inc()
			return nil, apperrors.ResourceNotFoundError(err, "recovery not found")
		}
		return nil, fmt.Errorf("failed to record attestation: %w", err)
	}

	metrics.AttestationsTotal.WithLabelValues("accepted").Inc()
	metrics.FragmentsProvided.WithLabelValues(recoveryType).Observe(float64(outcome.AttestationCount))

	if outcome.Triggered {
		c.logger.Info("recovery triggered",
			zap.String("recovery_id", rec.ID),
			zap.String("wallet_address", rec.WalletAddress),
			zap.Int("attestation_count", outcome.AttestationCount),
		)
	}

	c.mirrorAttest(ctx, rec, signer.Hex())

	return &recovery.AttestResponse{
		AttestationCount: outcome.AttestationCount,
		Triggered:        outcome.Triggered,
	}, nil
}

// Complete releases the payload once the recovery has triggered and the
// time-lock has expired. The database copy of the payload is
// authoritative; the mirror's copy is only cross-checked.
func (c *coordinator) Complete(ctx context.Context, recoveryID string) (*recovery.CompleteResponse, error) {
	rec, err := c.store.GetRecovery(ctx, recoveryID)
	if err != nil {
		if errors.Is(err, recovery.ErrRecoveryNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "recovery not found")
		}
		return nil, fmt.Errorf("failed to load recovery: %w", err)
	}

	if rec.Status != recovery.StatusTriggered || rec.TriggeredAt == nil {
		metrics.RecoveryAttemptsTotal.WithLabelValues(recoveryType, "false").Inc()
		return nil, apperrors.ConflictError(recovery.ErrRecoveryNotTriggered, "recovery not triggered")
	}

	now := c.now()
	unlockAt := recovery.UnlockAt(*rec.TriggeredAt)
	if remaining := recovery.Remaining(now, unlockAt); remaining > 0 {
		metrics.TimeLockRejectionsTotal.Inc()
		return nil, apperrors.LockedError(recovery.ErrTimeLockNotExpired, "time-lock not expired", map[string]any{
			"remaining_seconds": int64(remaining / time.Second),
			"unlock_at":         unlockAt.Format(time.RFC3339),
		})
	}

	// Unseal before the terminal transition commits. Unsealing is
	// read-only; if it fails the recovery stays triggered and the call
	// can be retried once the key problem is resolved.
	payload, err := c.cipher.Unseal(rec.ID, rec.EncryptedPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal payload: %w", err)
	}

	if err := c.store.CompleteRecovery(ctx, recoveryID, now); err != nil {
		if errors.Is(err, recovery.ErrRecoveryNotTriggered) {
			// Lost a race with another completion call.
			metrics.RecoveryAttemptsTotal.WithLabelValues(recoveryType, "false").Inc()
			return nil, apperrors.ConflictError(err, "recovery not triggered")
		}
		return nil, fmt.Errorf("failed to complete recovery: %w", err)
	}

	c.crossCheckMirrorPayload(ctx, rec)

	metrics.RecoveryAttemptsTotal.WithLabelValues(recoveryType, "true").Inc()
	c.logger.Info("recovery completed",
		zap.String("recovery_id", rec.ID),
		zap.String("wallet_address", rec.WalletAddress),
	)

	return &recovery.CompleteResponse{EncryptedPayload: string(payload)}, nil
}

// Status returns the read-only view of the wallet's most recent recovery.
func (c *coordinator) Status(ctx context.Context, walletAddress string) (*recovery.StatusResponse, error) {
	rec, err := c.store.GetLatestRecoveryByWallet(ctx, walletAddress)
	if err != nil {
		if errors.Is(err, recovery.ErrRecoveryNotFound) {
			return &recovery.StatusResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to load recovery: %w", err)
	}

	recKeys, err := c.store.GetKeys(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery keys: %w", err)
	}

	resp := &recovery.StatusResponse{
		Exists:           true,
		Status:           rec.Status,
		AttestationCount: recovery.AttestedCount(recKeys),
		TriggeredAt:      rec.TriggeredAt,
	}

	if rec.Status == recovery.StatusTriggered && rec.TriggeredAt != nil {
		remaining := recovery.Remaining(c.now(), recovery.UnlockAt(*rec.TriggeredAt))
		seconds := int64(remaining / time.Second)
		resp.TimeRemaining = &seconds
		resp.CanComplete = remaining == 0
	}

	if rec.ContractRecoveryID != "" {
		if st, err := c.mirror.GetStatus(ctx, rec.ContractRecoveryID); err != nil {
			metrics.MirrorCallsTotal.WithLabelValues("status", "error").Inc()
			c.logger.Warn("mirror status unavailable",
				zap.String("recovery_id", rec.ID),
				zap.Error(err),
			)
		} else if st != nil {
			metrics.MirrorCallsTotal.WithLabelValues("status", "ok").Inc()
			resp.MirrorStatus = st.State
		}
	}

	return resp, nil
}

// Access resolves a guardian at the key portal, by authenticating address
// or by unexpired invite token.
func (c *coordinator) Access(ctx context.Context, recoveryID string, req *recovery.AccessRequest) (*recovery.AccessResponse, error) {
	rec, err := c.store.GetRecovery(ctx, recoveryID)
	if err != nil {
		if errors.Is(err, recovery.ErrRecoveryNotFound) {
			return nil, apperrors.UnAuthorizedError(invite.ErrAccessDenied, "invalid or expired access")
		}
		return nil, fmt.Errorf("failed to load recovery: %w", err)
	}

	recKeys, err := c.store.GetKeys(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery keys: %w", err)
	}

	key, err := invite.ResolveAccess(recKeys, *req, c.now())
	if err != nil {
		return nil, apperrors.UnAuthorizedError(err, "invalid or expired access")
	}

	return &recovery.AccessResponse{
		Status:      rec.Status,
		HasAttested: key.HasAttested,
		CanAttest:   rec.Status != recovery.StatusCompleted && !key.HasAttested,
	}, nil
}

// validateSetup enforces the structural preconditions the coordinator
// owns: exactly three guardians, each with a distinct identity and a
// distinct authenticating address, none of them the recovered wallet.
func validateSetup(req *recovery.SetupRequest) error {
	if !auth.ValidateEVMAddress(req.WalletAddress) {
		return fmt.Errorf("invalid wallet address")
	}
	if len(req.Guardians) != recovery.GuardianCount {
		return fmt.Errorf("exactly %d guardians required, got %d", recovery.GuardianCount, len(req.Guardians))
	}
	if req.EncryptedPayload == "" {
		return fmt.Errorf("encrypted payload required")
	}

	seenAddrs := make(map[string]bool, recovery.GuardianCount)
	seenEmails := make(map[string]bool, recovery.GuardianCount)
	for i, g := range req.Guardians {
		if !auth.ValidateEVMAddress(g.WalletAddress) {
			return fmt.Errorf("guardian %d: invalid wallet address", i+1)
		}
		addr := strings.ToLower(g.WalletAddress)
		if addr == strings.ToLower(req.WalletAddress) {
			return fmt.Errorf("guardian %d: guardian address cannot be the recovered wallet", i+1)
		}
		if seenAddrs[addr] {
			return fmt.Errorf("guardian %d: duplicate guardian address", i+1)
		}
		seenAddrs[addr] = true

		email := strings.ToLower(g.Email)
		if email == "" {
			return fmt.Errorf("guardian %d: email required", i+1)
		}
		if seenEmails[email] {
			return fmt.Errorf("guardian %d: duplicate guardian email", i+1)
		}
		seenEmails[email] = true
	}
	return nil
}

// mirrorInitiate registers the new recovery with the external ledger.
// Failure is logged and swallowed: the database row is already committed
// and the mirror must never undo or block it.
func (c *coordinator) mirrorInitiate(ctx context.Context, rec *recovery.Recovery, recKeys []*recovery.Key) {
	guardians := make([]string, len(recKeys))
	for i, k := range recKeys {
		guardians[i] = k.WalletAddress
	}

	contractID, err := c.mirror.Initiate(ctx, &ledgermirror.InitiateRequest{
		RecoveryID:       rec.ID,
		WalletAddress:    rec.WalletAddress,
		GuardianAddrs:    guardians,
		EncryptedPayload: rec.EncryptedPayload,
	})
	if err != nil {
		metrics.MirrorCallsTotal.WithLabelValues("initiate", "error").Inc()
		c.logger.Warn("mirror initiate failed, proceeding with database-only state",
			zap.String("recovery_id", rec.ID),
			zap.Error(err),
		)
		return
	}
	metrics.MirrorCallsTotal.WithLabelValues("initiate", "ok").Inc()

	if contractID == "" {
		return
	}
	if err := c.store.SetContractRecoveryID(ctx, rec.ID, contractID); err != nil {
		c.logger.Warn("failed to record contract recovery id",
			zap.String("recovery_id", rec.ID),
			zap.Error(err),
		)
	}
}

// mirrorAttest mirrors an accepted attestation. Failure is logged and
// swallowed; the attestation is already committed.
func (c *coordinator) mirrorAttest(ctx context.Context, rec *recovery.Recovery, guardianAddress string) {
	if rec.ContractRecoveryID == "" {
		return
	}
	if err := c.mirror.Attest(ctx, rec.ContractRecoveryID, guardianAddress); err != nil {
		metrics.MirrorCallsTotal.WithLabelValues("attest", "error").Inc()
		c.logger.Warn("mirror attest failed, proceeding with database-only state",
			zap.String("recovery_id", rec.ID),
			zap.Error(err),
		)
		return
	}
	metrics.MirrorCallsTotal.WithLabelValues("attest", "ok").Inc()
}

// dispatchInvites fires guardian invites through the notification
// service. Invite delivery failure must not undo the committed setup, so
// errors are logged and swallowed.
func (c *coordinator) dispatchInvites(ctx context.Context, rec *recovery.Recovery, recKeys []*recovery.Key) {
	for _, k := range recKeys {
		err := c.notifier.SendGuardianInvite(ctx, &notify.Invite{
			RecoveryID:    rec.ID,
			WalletAddress: rec.WalletAddress,
			GuardianName:  k.Name,
			GuardianEmail: k.Email,
			InviteToken:   k.InviteToken,
			ExpiresAt:     k.InviteExpiresAt,
		})
		if err != nil {
			c.logger.Warn("guardian invite dispatch failed",
				zap.String("recovery_id", rec.ID),
				zap.String("guardian_email", k.Email),
				zap.Error(err),
			)
		}
	}
}

// crossCheckMirrorPayload compares the ledger's copy of the payload with
// the database copy. The mirror was handed the sealed blob at initiate
// time, so the comparison is sealed-to-sealed. The database is
// authoritative: a mismatch is logged and counted but the stored payload
// is always the one returned.
func (c *coordinator) crossCheckMirrorPayload(ctx context.Context, rec *recovery.Recovery) {
	if rec.ContractRecoveryID == "" {
		return
	}

	mirrored, err := c.mirror.Complete(ctx, rec.ContractRecoveryID)
	if err != nil {
		metrics.MirrorCallsTotal.WithLabelValues("complete", "error").Inc()
		c.logger.Warn("mirror complete failed, returning stored payload",
			zap.String("recovery_id", rec.ID),
			zap.Error(err),
		)
		return
	}
	metrics.MirrorCallsTotal.WithLabelValues("complete", "ok").Inc()

	if mirrored != "" && mirrored != rec.EncryptedPayload {
		metrics.MirrorPayloadMismatchTotal.Inc()
		c.logger.Warn("mirrored payload differs from stored payload, preferring database copy",
			zap.String("recovery_id", rec.ID),
			zap.String("contract_recovery_id", rec.ContractRecoveryID),
			zap.Int("stored_len", len(rec.EncryptedPayload)),
			zap.Int("mirrored_len", len(mirrored)),
		)
	}
}
