package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hereafterlabs/guardian-middleware/pkg/recovery"
)

const serviceName = "RecoveryCoordinator"

const signatureDisplaySize = 16

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the recovery Service.
// It logs method entry/exit, duration, errors, and redacts signatures
// and invite tokens.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) Setup(ctx context.Context, ownerID string, req *recovery.SetupRequest) (resp *recovery.SetupResponse, err error) {
	start := time.Now()
	ls.logger.Info("Setup started",
		zap.String("service", serviceName),
		zap.String("method", "Setup"),
		zap.String("owner_id", ownerID),
		zap.String("wallet_address", req.WalletAddress),
		zap.Int("guardians", len(req.Guardians)),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("Setup failed",
				zap.String("service", serviceName),
				zap.String("method", "Setup"),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("Setup completed",
				zap.String("service", serviceName),
				zap.String("method", "Setup"),
				zap.String("recovery_id", resp.RecoveryID),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.Setup(ctx, ownerID, req)
}

func (ls *logService) Attest(ctx context.Context, recoveryID string, req *recovery.AttestRequest) (resp *recovery.AttestResponse, err error) {
	start := time.Now()
	ls.logger.Info("Attest started",
		zap.String("service", serviceName),
		zap.String("method", "Attest"),
		zap.String("recovery_id", recoveryID),
		zap.String("signature", redactSignature(req.Signature)),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("Attest failed",
				zap.String("service", serviceName),
				zap.String("method", "Attest"),
				zap.String("recovery_id", recoveryID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("Attest completed",
				zap.String("service", serviceName),
				zap.String("method", "Attest"),
				zap.String("recovery_id", recoveryID),
				zap.Int("attestation_count", resp.AttestationCount),
				zap.Bool("triggered", resp.Triggered),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.Attest(ctx, recoveryID, req)
}

func (ls *logService) Complete(ctx context.Context, recoveryID string) (resp *recovery.CompleteResponse, err error) {
	start := time.Now()
	ls.logger.Info("Complete started",
		zap.String("service", serviceName),
		zap.String("method", "Complete"),
		zap.String("recovery_id", recoveryID),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("Complete failed",
				zap.String("service", serviceName),
				zap.String("method", "Complete"),
				zap.String("recovery_id", recoveryID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			// Never log the payload itself, only its size.
			ls.logger.Info("Complete succeeded",
				zap.String("service", serviceName),
				zap.String("method", "Complete"),
				zap.String("recovery_id", recoveryID),
				zap.Int("payload_len", len(resp.EncryptedPayload)),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.Complete(ctx, recoveryID)
}

func (ls *logService) Status(ctx context.Context, walletAddress string) (resp *recovery.StatusResponse, err error) {
	start := time.Now()

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("Status failed",
				zap.String("service", serviceName),
				zap.String("method", "Status"),
				zap.String("wallet_address", walletAddress),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Debug("Status served",
				zap.String("service", serviceName),
				zap.String("method", "Status"),
				zap.String("wallet_address", walletAddress),
				zap.Bool("exists", resp.Exists),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.Status(ctx, walletAddress)
}

func (ls *logService) Access(ctx context.Context, recoveryID string, req *recovery.AccessRequest) (resp *recovery.AccessResponse, err error) {
	start := time.Now()
	ls.logger.Info("Access started",
		zap.String("service", serviceName),
		zap.String("method", "Access"),
		zap.String("recovery_id", recoveryID),
		zap.Bool("by_token", req.InviteToken != ""),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Warn("Access denied",
				zap.String("service", serviceName),
				zap.String("method", "Access"),
				zap.String("recovery_id", recoveryID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("Access granted",
				zap.String("service", serviceName),
				zap.String("method", "Access"),
				zap.String("recovery_id", recoveryID),
				zap.Bool("has_attested", resp.HasAttested),
				zap.Bool("can_attest", resp.CanAttest),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.Access(ctx, recoveryID, req)
}

// redactSignature redacts signature data to show only metadata.
// Signatures are sensitive and should not be logged in full.
func redactSignature(sig string) string {
	if sig == "" {
		return "<empty>"
	}
	sigLen := len(sig)
	if sigLen > signatureDisplaySize {
		return fmt.Sprintf("%s...%s (%d bytes)", sig[:8], sig[sigLen-4:], sigLen)
	}
	return fmt.Sprintf("<%d bytes>", sigLen)
}
