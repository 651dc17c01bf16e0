package ledgermirror

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClientInitiate(t *testing.T) {
	var gotAuth string
	var gotBody InitiateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/recoveries", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]string{"contract_recovery_id": "contract-42"})
	}))
	defer srv.Close()

	client, err := New(srv.URL, "secret", WithLogger(zap.NewNop()))
	require.NoError(t, err)

	contractID, err := client.Initiate(context.Background(), &InitiateRequest{
		RecoveryID:    "rec-1",
		WalletAddress: "0xabc",
		GuardianAddrs: []string{"0x1", "0x2", "0x3"},
	})
	require.NoError(t, err)

	assert.Equal(t, "contract-42", contractID)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "rec-1", gotBody.RecoveryID)
	assert.Len(t, gotBody.GuardianAddrs, 3)
}

func TestClientAttest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/recoveries/contract-42/attestations", r.URL.Path)

		var body struct {
			GuardianAddress string `json:"guardian_address"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xguardian", body.GuardianAddress)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := New(srv.URL, "", WithLogger(zap.NewNop()))
	require.NoError(t, err)

	require.NoError(t, client.Attest(context.Background(), "contract-42", "0xguardian"))
}

func TestClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/recoveries/contract-42/complete", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"encrypted_payload": "ledger-copy"})
	}))
	defer srv.Close()

	client, err := New(srv.URL, "", WithLogger(zap.NewNop()))
	require.NoError(t, err)

	payload, err := client.Complete(context.Background(), "contract-42")
	require.NoError(t, err)
	assert.Equal(t, "ledger-copy", payload)
}

func TestClientGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/recoveries/contract-42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Status{
			ContractRecoveryID: "contract-42",
			State:              "triggered",
			AttestationCount:   2,
		})
	}))
	defer srv.Close()

	client, err := New(srv.URL, "", WithLogger(zap.NewNop()))
	require.NoError(t, err)

	st, err := client.GetStatus(context.Background(), "contract-42")
	require.NoError(t, err)
	assert.Equal(t, "triggered", st.State)
	assert.Equal(t, 2, st.AttestationCount)
}

func TestClientGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "contract not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := New(srv.URL, "", WithLogger(zap.NewNop()))
	require.NoError(t, err)

	_, err = client.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNewRejectsEmptyBaseURL(t *testing.T) {
	_, err := New("", "key")
	assert.Error(t, err)
}
