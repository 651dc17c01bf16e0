// Package notify delivers guardian invites through the outbound
// notification service. Delivery is fire-and-forget: the coordinator
// logs failures and never rolls back committed state over them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Invite carries everything the mail service needs to reach a guardian.
type Invite struct {
	RecoveryID    string    `json:"recovery_id"`
	WalletAddress string    `json:"wallet_address"`
	GuardianName  string    `json:"guardian_name"`
	GuardianEmail string    `json:"guardian_email"`
	InviteToken   string    `json:"invite_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Notifier sends guardian invites.
type Notifier interface {
	SendGuardianInvite(ctx context.Context, inv *Invite) error
}

// Noop is a Notifier that drops invites. Used in tests and when no
// notification service is configured.
type Noop struct{}

func (Noop) SendGuardianInvite(context.Context, *Invite) error { return nil }

// Webhook posts invites to the notification service's webhook endpoint.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// SendGuardianInvite posts the invite to the webhook.
func (w *Webhook) SendGuardianInvite(ctx context.Context, inv *Invite) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invite: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send invite: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}

	w.logger.Debug("guardian invite dispatched",
		zap.String("recovery_id", inv.RecoveryID),
		zap.String("guardian_email", inv.GuardianEmail),
	)
	return nil
}
