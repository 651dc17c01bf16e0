package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hereafterlabs/guardian-middleware/pkg/recovery"
)

func newTestRouter(t *testing.T, f *fixture) http.Handler {
	t.Helper()

	r := chi.NewRouter()
	RegisterRoutes(r, f.svc, nil, zap.NewNop())
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHTTPSetup(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)

	t.Run("created", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/recovery/setup", f.setupRequest())
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp recovery.SetupResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.RecoveryID)
	})

	t.Run("duplicate active recovery conflicts", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/recovery/setup", f.setupRequest())
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/recovery/setup", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		req := f.setupRequest()
		req.Guardians = req.Guardians[:1]
		rec := doJSON(t, router, http.MethodPost, "/recovery/setup", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad wallet address", func(t *testing.T) {
		req := f.setupRequest()
		req.WalletAddress = "not-an-address"
		rec := doJSON(t, router, http.MethodPost, "/recovery/setup", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHTTPAttestAndComplete(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	recoveryID := f.setup(t)

	t.Run("missing signature", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/recovery/"+recoveryID+"/attest", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("signature via header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/recovery/"+recoveryID+"/attest", nil)
		req.Header.Set("X-Signature", f.guardians[0].sign(t, recoveryID, f.wallet))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp recovery.AttestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.AttestationCount)
		assert.False(t, resp.Triggered)
	})

	t.Run("signature via body triggers at threshold", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/recovery/"+recoveryID+"/attest", recovery.AttestRequest{
			Signature: f.guardians[1].sign(t, recoveryID, f.wallet),
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp recovery.AttestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Triggered)
	})

	t.Run("complete during time-lock returns 423 with remaining seconds", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/recovery/"+recoveryID+"/complete", nil)
		require.Equal(t, http.StatusLocked, rec.Code)

		var resp struct {
			Details map[string]any `json:"details"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		remaining, ok := resp.Details["remaining_seconds"].(float64)
		require.True(t, ok)
		assert.Equal(t, float64(recovery.TimeLockDelay/time.Second), remaining)
		assert.NotEmpty(t, resp.Details["unlock_at"])
	})

	t.Run("complete after time-lock releases payload", func(t *testing.T) {
		f.advance(recovery.TimeLockDelay)

		rec := doJSON(t, router, http.MethodPost, "/recovery/"+recoveryID+"/complete", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp recovery.CompleteResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "client-side-ciphertext", resp.EncryptedPayload)
	})

	t.Run("attest after completion conflicts", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/recovery/"+recoveryID+"/attest", recovery.AttestRequest{
			Signature: f.guardians[2].sign(t, recoveryID, f.wallet),
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHTTPStatus(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	f.setup(t)

	t.Run("existing recovery", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/recovery/status?wallet="+f.wallet, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp recovery.StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Exists)
		assert.Equal(t, recovery.StatusActive, resp.Status)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/recovery/status?wallet=0x9999999999999999999999999999999999999999", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp recovery.StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Exists)
	})

	t.Run("missing wallet param", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/recovery/status", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHTTPAccess(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	recoveryID := f.setup(t)

	t.Run("by address", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/recovery/"+recoveryID+"/access", recovery.AccessRequest{
			GuardianAddress: f.guardians[0].addr,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp recovery.AccessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.CanAttest)
	})

	t.Run("empty request", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/recovery/"+recoveryID+"/access", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown guardian", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/recovery/"+recoveryID+"/access", recovery.AccessRequest{
			GuardianAddress: "0x8888888888888888888888888888888888888888",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown recovery is indistinguishable", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost,
			fmt.Sprintf("/recovery/%s/access", "00000000-0000-0000-0000-000000000000"),
			recovery.AccessRequest{GuardianAddress: f.guardians[0].addr})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
