package ledgermirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Client implements Mirror against the recovery-contract gateway's HTTP
// JSON API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a new mirror client for the given gateway base URL.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("empty mirror base url")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid mirror base url: %w", err)
	}

	s := applyOptions(opts)
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: s.httpClient,
		logger:     s.logger,
	}, nil
}

// Initiate registers the recovery on the ledger.
func (c *Client) Initiate(ctx context.Context, req *InitiateRequest) (string, error) {
	var resp struct {
		ContractRecoveryID string `json:"contract_recovery_id"`
	}
	err := c.call(ctx, http.MethodPost, "/v1/recoveries", req, &resp)
	if err != nil {
		return "", fmt.Errorf("mirror initiate: %w", err)
	}

	c.logger.Debug("mirrored recovery initiation",
		zap.String("recovery_id", req.RecoveryID),
		zap.String("contract_recovery_id", resp.ContractRecoveryID),
	)
	return resp.ContractRecoveryID, nil
}

// Attest mirrors a guardian attestation.
func (c *Client) Attest(ctx context.Context, contractRecoveryID, guardianAddress string) error {
	body := struct {
		GuardianAddress string `json:"guardian_address"`
	}{GuardianAddress: guardianAddress}

	path := fmt.Sprintf("/v1/recoveries/%s/attestations", url.PathEscape(contractRecoveryID))
	if err := c.call(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("mirror attest: %w", err)
	}
	return nil
}

// Complete mirrors the completion and returns the ledger-held payload, if any.
func (c *Client) Complete(ctx context.Context, contractRecoveryID string) (string, error) {
	var resp struct {
		EncryptedPayload string `json:"encrypted_payload"`
	}
	path := fmt.Sprintf("/v1/recoveries/%s/complete", url.PathEscape(contractRecoveryID))
	if err := c.call(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", fmt.Errorf("mirror complete: %w", err)
	}
	return resp.EncryptedPayload, nil
}

// GetStatus returns the ledger's view of the recovery.
func (c *Client) GetStatus(ctx context.Context, contractRecoveryID string) (*Status, error) {
	var resp Status
	path := fmt.Sprintf("/v1/recoveries/%s", url.PathEscape(contractRecoveryID))
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("mirror status: %w", err)
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
