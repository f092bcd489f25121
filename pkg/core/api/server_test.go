package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"

	"github.com/gimpelhq/gimpel/pkg/db"
	"github.com/gimpelhq/gimpel/pkg/deployments"
	"github.com/gimpelhq/gimpel/pkg/directory"
	"github.com/gimpelhq/gimpel/pkg/imagestore"
	"github.com/gimpelhq/gimpel/pkg/logger"
	"github.com/gimpelhq/gimpel/pkg/models"
	"github.com/gimpelhq/gimpel/pkg/pairing"
	"github.com/gimpelhq/gimpel/pkg/registry"
	"github.com/gimpelhq/gimpel/pkg/signing"
)

type testServer struct {
	server *httptest.Server
	key    *signing.KeyPair
	store  db.Service
}

func newTestServer(t *testing.T, options ...func(*APIServer)) *testServer {
	t.Helper()

	log := logger.NewTestLogger()

	store, err := db.New(&db.Config{Path: filepath.Join(t.TempDir(), "gimpel.db")}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	images, err := imagestore.New(t.TempDir(), log)
	require.NoError(t, err)

	key, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	opts := append([]func(*APIServer){
		WithModuleRegistry(registry.NewRegistry(store, images, signing.NewVerifier(key), log)),
		WithDirectory(directory.NewDirectory(store, log)),
		WithDeploymentManager(deployments.NewManager(store, log)),
		WithPairingService(pairing.NewManager(store, log)),
	}, options...)

	api := NewAPIServer(models.CORSConfig{}, opts...)

	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)

	return &testServer{
		server: srv,
		key:    key,
		store:  store,
	}
}

func (ts *testServer) uploadModule(t *testing.T, id, version string, payload []byte) ModuleUploadResponse {
	t.Helper()

	resp := ts.uploadModuleRaw(t, id, version, payload)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out ModuleUploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func (ts *testServer) uploadModuleRaw(t *testing.T, id, version string, payload []byte) *http.Response {
	t.Helper()

	sig, err := ts.key.SignDigest(digest.FromBytes(payload))
	require.NoError(t, err)

	return ts.postMultipart(t, map[string]string{
		"id":        id,
		"name":      id,
		"version":   version,
		"protocol":  "tcp",
		"signature": hex.EncodeToString(sig),
		"signed_by": ts.key.KeyID,
	}, payload)
}

func (ts *testServer) postMultipart(t *testing.T, fields map[string]string, payload []byte) *http.Response {
	t.Helper()

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}

	part, err := writer.CreateFormFile("image", "module.img")
	require.NoError(t, err)

	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := http.Post(ts.server.URL+"/api/v1/modules", writer.FormDataContentType(), &body)
	require.NoError(t, err)

	return resp
}

func (ts *testServer) doJSON(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, ts.server.URL+path, reader)
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.doJSON(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeBody[map[string]interface{}](t, resp)
	require.Equal(t, "ok", health["status"])
	require.EqualValues(t, 0, health["modules"])
	require.EqualValues(t, 0, health["satellites"])
}

func TestModuleUploadGetDownload(t *testing.T) {
	ts := newTestServer(t)
	payload := []byte("ssh trap image bytes")

	uploaded := ts.uploadModule(t, "ssh-trap", "1.0.0", payload)
	require.Equal(t, digest.FromBytes(payload).String(), uploaded.Digest)
	require.Equal(t, int64(len(payload)), uploaded.Size)

	resp := ts.doJSON(t, http.MethodGet, "/api/v1/modules/ssh-trap/1.0.0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	module := decodeBody[models.Module](t, resp)
	require.Equal(t, uploaded.Digest, module.Digest)
	require.Equal(t, "tcp", module.Protocol)

	resp = ts.doJSON(t, http.MethodGet, "/api/v1/modules/ssh-trap/1.0.0/download", nil)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, fmt.Sprint(len(payload)), resp.Header.Get("Content-Length"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestModuleListEnvelope(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.doJSON(t, http.MethodGet, "/api/v1/modules", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeBody[map[string][]models.Module](t, resp)
	require.NotNil(t, out["modules"])
	require.Empty(t, out["modules"])

	ts.uploadModule(t, "ssh-trap", "1.0.0", []byte("x"))

	resp = ts.doJSON(t, http.MethodGet, "/api/v1/modules", nil)
	out = decodeBody[map[string][]models.Module](t, resp)
	require.Len(t, out["modules"], 1)
}

func TestDuplicateUploadConflict(t *testing.T) {
	ts := newTestServer(t)
	payload := []byte("bytes")

	ts.uploadModule(t, "ssh-trap", "1.0.0", payload)

	resp := ts.uploadModuleRaw(t, "ssh-trap", "1.0.0", payload)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUploadBadSignature(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postMultipart(t, map[string]string{
		"id":        "ssh-trap",
		"version":   "1.0.0",
		"signature": hex.EncodeToString([]byte("not a real signature")),
		"signed_by": ts.key.KeyID,
	}, []byte("payload"))

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadNonHexSignature(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postMultipart(t, map[string]string{
		"id":        "ssh-trap",
		"version":   "1.0.0",
		"signature": "zzzz-not-hex",
	}, []byte("payload"))

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetModuleNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.doJSON(t, http.MethodGet, "/api/v1/modules/ghost/1.0.0", nil)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	errBody := decodeBody[models.ErrorResponse](t, resp)
	require.Equal(t, http.StatusNotFound, errBody.Status)
	require.NotEmpty(t, errBody.Message)
}

func TestDeleteModuleInUseConflict(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	ts.uploadModule(t, "ssh-trap", "1.0.0", []byte("bytes"))

	require.NoError(t, ts.store.CreateSatellite(ctx, &models.Satellite{ID: "sat-1", Status: models.SatelliteStatusOnline}))

	body := models.DeploymentRequest{
		Modules: []models.ModuleAssignmentRequest{
			{ModuleID: "ssh-trap", ModuleVersion: "1.0.0"},
		},
	}

	resp := ts.doJSON(t, http.MethodPost, "/api/v1/satellites/sat-1/deployments", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dep := decodeBody[models.Deployment](t, resp)
	require.Equal(t, int64(1), dep.Version)
	// Enabled defaults to true when omitted from the request.
	require.True(t, dep.Modules[0].Enabled)

	resp = ts.doJSON(t, http.MethodDelete, "/api/v1/modules/ssh-trap/1.0.0", nil)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.doJSON(t, http.MethodDelete, "/api/v1/satellites/sat-1/deployments", nil)
	out := decodeBody[map[string]string](t, resp)
	require.Equal(t, "deleted", out["status"])

	resp = ts.doJSON(t, http.MethodDelete, "/api/v1/modules/ssh-trap/1.0.0", nil)
	out = decodeBody[map[string]string](t, resp)
	require.Equal(t, "deleted", out["status"])
}

func TestCreateDeploymentValidation(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, ts.store.CreateSatellite(ctx, &models.Satellite{ID: "sat-1", Status: models.SatelliteStatusOnline}))

	// Unknown satellite.
	resp := ts.doJSON(t, http.MethodPost, "/api/v1/satellites/ghost/deployments", models.DeploymentRequest{})

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Unknown module reference.
	body := models.DeploymentRequest{
		Modules: []models.ModuleAssignmentRequest{
			{ModuleID: "ghost", ModuleVersion: "1.0.0"},
		},
	}

	resp = ts.doJSON(t, http.MethodPost, "/api/v1/satellites/sat-1/deployments", body)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Bad listener port.
	ts.uploadModule(t, "ssh-trap", "1.0.0", []byte("x"))

	body = models.DeploymentRequest{
		Modules: []models.ModuleAssignmentRequest{
			{
				ModuleID:      "ssh-trap",
				ModuleVersion: "1.0.0",
				Listeners:     []models.Listener{{ID: "a", Protocol: "tcp", Port: 0}},
			},
		},
	}

	resp = ts.doJSON(t, http.MethodPost, "/api/v1/satellites/sat-1/deployments", body)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListDeploymentsStatusFilter(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	ts.uploadModule(t, "ssh-trap", "1.0.0", []byte("x"))

	require.NoError(t, ts.store.CreateSatellite(ctx, &models.Satellite{ID: "sat-online", Status: models.SatelliteStatusOnline}))
	require.NoError(t, ts.store.CreateSatellite(ctx, &models.Satellite{ID: "sat-offline", Status: models.SatelliteStatusOffline}))

	body := models.DeploymentRequest{
		Modules: []models.ModuleAssignmentRequest{
			{ModuleID: "ssh-trap", ModuleVersion: "1.0.0"},
		},
	}

	for _, id := range []string{"sat-online", "sat-offline"} {
		resp := ts.doJSON(t, http.MethodPost, "/api/v1/satellites/"+id+"/deployments", body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}

	resp := ts.doJSON(t, http.MethodGet, "/api/v1/deployments", nil)
	all := decodeBody[map[string][]json.RawMessage](t, resp)
	require.Len(t, all["deployments"], 2)

	resp = ts.doJSON(t, http.MethodGet, "/api/v1/deployments?status=online", nil)
	online := decodeBody[map[string][]json.RawMessage](t, resp)
	require.Len(t, online["deployments"], 1)

	resp = ts.doJSON(t, http.MethodGet, "/api/v1/deployments?status=bogus", nil)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSatelliteEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, ts.store.CreateSatellite(ctx, &models.Satellite{
		ID:       "sat-1",
		Hostname: "edge-01",
		Status:   models.SatelliteStatusOnline,
	}))

	resp := ts.doJSON(t, http.MethodGet, "/api/v1/satellites", nil)
	out := decodeBody[map[string][]models.Satellite](t, resp)
	require.Len(t, out["satellites"], 1)

	resp = ts.doJSON(t, http.MethodGet, "/api/v1/satellites/sat-1", nil)
	sat := decodeBody[models.Satellite](t, resp)
	require.Equal(t, "edge-01", sat.Hostname)

	resp = ts.doJSON(t, http.MethodGet, "/api/v1/satellites/ghost", nil)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPairingLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.doJSON(t, http.MethodPost, "/api/v1/pairings", CreatePairingRequest{TTLSeconds: 600})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[PairingCreateResponse](t, resp)
	require.Len(t, created.Token, 8)
	require.Equal(t, created.Token[:4]+"-****", created.DisplayToken)
	require.InDelta(t, 600, created.ExpiresIn, 2)

	// Listings never expose the full token.
	resp = ts.doJSON(t, http.MethodGet, "/api/v1/pairings", nil)
	listed := decodeBody[map[string][]models.Pairing](t, resp)
	require.Len(t, listed["pairings"], 1)
	require.Empty(t, listed["pairings"][0].Token)

	resp = ts.doJSON(t, http.MethodGet, "/api/v1/pairings/active", nil)
	active := decodeBody[map[string][]models.Pairing](t, resp)
	require.Len(t, active["pairings"], 1)

	redeem := RedeemPairingRequest{
		Token:    created.Token,
		Hostname: "edge-01",
		IP:       "10.0.0.4",
		OS:       "linux",
		Arch:     "amd64",
	}

	resp = ts.doJSON(t, http.MethodPost, "/api/v1/pairings/redeem", redeem)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sat := decodeBody[models.Satellite](t, resp)
	require.Equal(t, "edge-01", sat.Hostname)
	require.Equal(t, models.SatelliteStatusRegistered, sat.Status)

	// Second redemption conflicts.
	resp = ts.doJSON(t, http.MethodPost, "/api/v1/pairings/redeem", redeem)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.doJSON(t, http.MethodGet, "/api/v1/pairings/active", nil)
	active = decodeBody[map[string][]models.Pairing](t, resp)
	require.Empty(t, active["pairings"])
}

func TestRedeemExpiredPairingGone(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.doJSON(t, http.MethodPost, "/api/v1/pairings", CreatePairingRequest{TTLSeconds: 1})
	created := decodeBody[PairingCreateResponse](t, resp)

	// Flip the stored expiry into the past instead of sleeping.
	p, err := ts.store.GetPairingByToken(context.Background(), created.Token)
	require.NoError(t, err)

	p.ExpiresAt = time.Now().Add(-time.Minute)
	p.Token = created.Token
	require.NoError(t, ts.store.CreatePairing(context.Background(), p))

	resp = ts.doJSON(t, http.MethodPost, "/api/v1/pairings/redeem", RedeemPairingRequest{Token: created.Token})

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestRedeemUnknownTokenNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.doJSON(t, http.MethodPost, "/api/v1/pairings/redeem", RedeemPairingRequest{Token: "ZZZZ9999"})

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIKeyProtection(t *testing.T) {
	ts := newTestServer(t, WithAPIKey("secret"))

	resp := ts.doJSON(t, http.MethodGet, "/api/v1/modules", nil)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.server.URL+"/api/v1/modules", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")

	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer func() { _ = authed.Body.Close() }()

	require.Equal(t, http.StatusOK, authed.StatusCode)
}
