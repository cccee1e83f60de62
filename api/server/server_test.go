package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medauth/core/ledger"
	"medauth/core/registry"
	"medauth/core/signer"
	"medauth/core/storage"
	"medauth/core/verify"
	"medauth/types/ids"
)

const testAPIKey = "test-api-key"

func hashForTest(i int) ids.ID {
	return ids.NewID([]byte(fmt.Sprintf("record-%d", i)))
}

const testKeyName = "issuer.key"

// newTestServer wires a full node on in-memory dependencies plus a real
// encrypted store, and returns the server with the issuer's public key
// path. The private key is reachable as the named key testKeyName.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	prevAPIKey, prevJWT := apiKey, jwtSecret
	apiKey = testAPIKey
	jwtSecret = "test-jwt-secret"
	t.Cleanup(func() { apiKey, jwtSecret = prevAPIKey, prevJWT })

	dek := make([]byte, 32)
	t.Setenv("MEDAUTH_DEK", base64.StdEncoding.EncodeToString(dek))
	db, err := storage.NewStorage(t.TempDir() + "/db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	priv, err := signer.GenerateKeypair()
	require.NoError(t, err)
	keyDir := t.TempDir()
	privPath := keyDir + "/" + testKeyName
	pubPath := keyDir + "/issuer.pub"
	require.NoError(t, signer.SavePrivateKeyPEM(privPath, priv))
	require.NoError(t, signer.SavePublicKeyPEM(pubPath, &priv.PublicKey))
	t.Setenv("ISSUER_KEY_DIR", keyDir)

	reg := registry.NewMemoryRegistry()
	coord := ledger.NewCoordinator(ledger.NewMemoryLedger(), nil, 0)
	signSvc := signer.NewService(reg, coord, signer.AnchorSync)
	engine := verify.NewEngine(reg, coord, nil)

	srv := NewServer(db, reg, signSvc, engine, coord, nil, ":0")
	return srv, pubPath
}

func doJSON(t *testing.T, mux http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func authed() map[string]string {
	return map[string]string{"X-API-Key": testAPIKey}
}

func registerIssuer(t *testing.T, mux http.Handler, pubPath string) {
	t.Helper()
	pemBytes, err := os.ReadFile(pubPath)
	require.NoError(t, err)
	rr := doJSON(t, mux, http.MethodPost, "/api/issuer/register", map[string]string{
		"issuerId":     "S1",
		"publicKeyPem": string(pemBytes),
	}, authed())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func signPayload(t *testing.T, mux http.Handler) (qrRecord json.RawMessage, payloadHash string) {
	t.Helper()
	rr := doJSON(t, mux, http.MethodPost, "/api/qr/sign", map[string]any{
		"payload": map[string]string{
			"medicineId": "M1",
			"batchNo":    "B7",
			"mfgDate":    "2024-01-01",
			"expiryDate": "2026-01-01",
			"issuerId":   "S1",
		},
		"keyRef": testKeyName,
	}, authed())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		QRRecord    json.RawMessage `json:"qrRecord"`
		PayloadHash string          `json:"payloadHash"`
		AnchorRef   string          `json:"anchorRef"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.QRRecord)
	require.NotEmpty(t, resp.PayloadHash)
	return resp.QRRecord, resp.PayloadHash
}

func TestMutatingEndpointsRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	for _, path := range []string{
		"/api/qr/sign",
		"/api/issuer/register",
		"/api/issuer/revoke",
		"/api/anchor/flush",
	} {
		rr := doJSON(t, mux, http.MethodPost, path, map[string]string{}, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)

		rr = doJSON(t, mux, http.MethodPost, path, map[string]string{}, map[string]string{"X-API-Key": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestJWTAuthAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)

	rr := doJSON(t, mux, http.MethodPost, "/api/issuer/revoke", map[string]string{"issuerId": "S1"},
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, mux, http.MethodPost, "/api/issuer/revoke", map[string]string{"issuerId": "S1"},
		map[string]string{"Authorization": "Bearer not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestIssuanceAndVerificationFlow(t *testing.T) {
	srv, pubPath := newTestServer(t)
	mux := srv.Routes()

	registerIssuer(t, mux, pubPath)
	qrRecord, payloadHash := signPayload(t, mux)

	// Verification is public: no auth header.
	rr := doJSON(t, mux, http.MethodPost, "/api/qr/verify", map[string]any{
		"record": qrRecord,
		"asOf":   "2025-06-01T00:00:00Z",
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result verify.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, verify.OutcomeVerified, result.Outcome)
	assert.Equal(t, payloadHash, result.PayloadHash)
	assert.Equal(t, verify.AnchorAnchored, result.Evidence.AnchorStatus)
}

func TestVerifyAfterRevocation(t *testing.T) {
	srv, pubPath := newTestServer(t)
	mux := srv.Routes()

	registerIssuer(t, mux, pubPath)
	qrRecord, _ := signPayload(t, mux)

	rr := doJSON(t, mux, http.MethodPost, "/api/issuer/revoke", map[string]string{
		"issuerId": "S1",
		"reason":   "compromised key",
	}, authed())
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, mux, http.MethodPost, "/api/qr/verify", map[string]any{
		"record": qrRecord,
		"asOf":   time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var result verify.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, verify.OutcomeCounterfeit, result.Outcome)
}

func TestVerifyGarbageRecordClassifies(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	rr := doJSON(t, mux, http.MethodPost, "/api/qr/verify", map[string]any{
		"record": json.RawMessage(`"definitely not a QR envelope"`),
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code, "bad records classify, they do not error")

	var result verify.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, verify.OutcomeCounterfeit, result.Outcome)
}

func TestSignRejectsSchemaViolations(t *testing.T) {
	srv, pubPath := newTestServer(t)
	mux := srv.Routes()
	registerIssuer(t, mux, pubPath)

	for name, p := range map[string]map[string]string{
		"missing batchNo": {
			"medicineId": "M1", "mfgDate": "2024-01-01", "expiryDate": "2026-01-01", "issuerId": "S1",
		},
		"bad date": {
			"medicineId": "M1", "batchNo": "B7", "mfgDate": "01/01/2024", "expiryDate": "2026-01-01", "issuerId": "S1",
		},
	} {
		rr := doJSON(t, mux, http.MethodPost, "/api/qr/sign", map[string]any{
			"payload": p,
			"keyRef":  testKeyName,
		}, authed())
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
	}
}

func TestSignUnregisteredIssuerRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	rr := doJSON(t, mux, http.MethodPost, "/api/qr/sign", map[string]any{
		"payload": map[string]string{
			"medicineId": "M1",
			"batchNo":    "B7",
			"mfgDate":    "2024-01-01",
			"expiryDate": "2026-01-01",
			"issuerId":   "S1",
		},
		"keyRef": testKeyName,
	}, authed())
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestSignKeyRefConfinedToKeyDir(t *testing.T) {
	srv, pubPath := newTestServer(t)
	mux := srv.Routes()
	registerIssuer(t, mux, pubPath)

	payload := map[string]string{
		"medicineId": "M1",
		"batchNo":    "B7",
		"mfgDate":    "2024-01-01",
		"expiryDate": "2026-01-01",
		"issuerId":   "S1",
	}
	for name, keyRef := range map[string]string{
		"absolute path": "/etc/ssl/private/server.key",
		"traversal":     "../" + testKeyName,
		"nested path":   "sub/" + testKeyName,
		"dot dot":       "..",
	} {
		rr := doJSON(t, mux, http.MethodPost, "/api/qr/sign", map[string]any{
			"payload": payload,
			"keyRef":  keyRef,
		}, authed())
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
	}

	// Named keys stop resolving entirely when no key directory is set.
	t.Setenv("ISSUER_KEY_DIR", "")
	rr := doJSON(t, mux, http.MethodPost, "/api/qr/sign", map[string]any{
		"payload": payload,
		"keyRef":  testKeyName,
	}, authed())
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAnchorStatusEndpoint(t *testing.T) {
	srv, pubPath := newTestServer(t)
	mux := srv.Routes()

	registerIssuer(t, mux, pubPath)
	_, payloadHash := signPayload(t, mux)

	rr := doJSON(t, mux, http.MethodGet, "/api/anchor/status?hash="+payloadHash, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Anchored          bool `json:"anchored"`
		LedgerUnavailable bool `json:"ledgerUnavailable"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Anchored)
	assert.False(t, resp.LedgerUnavailable)

	rr = doJSON(t, mux, http.MethodGet, "/api/anchor/status?hash=zz", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAnchorFlushEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	for i := 0; i < 3; i++ {
		srv.anchors.Enqueue(hashForTest(i))
	}
	rr := doJSON(t, mux, http.MethodPost, "/api/anchor/flush", nil, authed())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Submitted int `json:"submitted"`
		Failed    int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Submitted)
	assert.Equal(t, 0, resp.Failed)
	assert.Equal(t, 0, srv.anchors.PendingCount())
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	rr := doJSON(t, mux, http.MethodGet, "/health/liveness", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var live LivenessResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &live))
	assert.True(t, live.Alive)

	rr = doJSON(t, mux, http.MethodGet, "/health/readiness", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ready))
	assert.True(t, ready.Ready, "store is open, node should be ready")

	rr = doJSON(t, mux, http.MethodGet, "/status", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, NodeVersion(), status.Version)
}
