package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/api/websocket"
	"github.com/KevinKickass/OpenMotionCore/internal/auth"
	"github.com/KevinKickass/OpenMotionCore/internal/config"
	"github.com/KevinKickass/OpenMotionCore/internal/cycle"
	"github.com/KevinKickass/OpenMotionCore/internal/devices"
	"github.com/KevinKickass/OpenMotionCore/internal/drive"
	"github.com/KevinKickass/OpenMotionCore/internal/interfaces"
	"github.com/KevinKickass/OpenMotionCore/internal/telemetry"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLifecycle struct {
	cfg          *config.Config
	registry     *devices.Registry
	streamer     *telemetry.Streamer
	stopRequests int
	scheduler    string
}

func (f *fakeLifecycle) Config() *config.Config             { return f.cfg }
func (f *fakeLifecycle) Registry() *devices.Registry        { return f.registry }
func (f *fakeLifecycle) Streamer() *telemetry.Streamer      { return f.streamer }
func (f *fakeLifecycle) RequestStop()                       { f.stopRequests++ }
func (f *fakeLifecycle) Shutdown(ctx context.Context) error { return nil }

func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	if f.scheduler == "" {
		return interfaces.SystemStatus{State: "OPERATIONAL", Scheduler: "running", Slaves: 2, Axes: 2}
	}
	return interfaces.SystemStatus{State: "ERROR", Scheduler: f.scheduler, Error: "bus fault"}
}

func (f *fakeLifecycle) Slaves() []interfaces.SlaveInfo {
	return []interfaces.SlaveInfo{
		{Name: "axis0", Address: types.BusAddress{Position: 0}, Identity: devices.EROBIdentity, Entries: 8, Active: true, Reference: true},
		{Name: "axis1", Address: types.BusAddress{Position: 1}, Identity: devices.EROBIdentity, Entries: 8, Active: true},
	}
}

func (f *fakeLifecycle) Stats() cycle.Stats {
	return cycle.Stats{State: cycle.StateRunning, Cycles: 1000, PeriodNs: 1_000_000}
}

func (f *fakeLifecycle) Axes() []drive.AxisState {
	return []drive.AxisState{{Name: "axis0", ActualPosition: 12345, TargetPosition: 12345}}
}

func (f *fakeLifecycle) Snapshot() telemetry.Snapshot {
	return telemetry.Snapshot{System: "OPERATIONAL", Axes: f.Axes(), Stats: f.Stats()}
}

const testSecretEnv = "OMC_REST_TEST_JWT_SECRET"

func newTestServer(t *testing.T, keys ...config.APIKeyConfig) (*Server, *fakeLifecycle, config.AuthConfig) {
	t.Helper()

	authCfg := config.AuthConfig{
		JWTSecretEnv:   testSecretEnv,
		AccessTokenTTL: time.Hour,
		APIKeys:        keys,
	}
	authService := auth.NewAuthService(authCfg, zap.NewNop())

	registry, err := devices.NewRegistry([]string{t.TempDir()}, zap.NewNop())
	require.NoError(t, err)

	lm := &fakeLifecycle{
		cfg:      &config.Config{},
		registry: registry,
		streamer: telemetry.NewStreamer(),
	}
	hub := websocket.NewHub(lm.streamer, authService, zap.NewNop())

	return NewServer(lm.cfg, lm, hub, authService, zap.NewNop()), lm, authCfg
}

func bearer(t *testing.T, cfg config.AuthConfig, role string) string {
	t.Helper()
	token, _, err := auth.NewJWTHandler(cfg.GetJWTSecret(), time.Hour).GenerateAccessToken("test", role)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(s *Server, method, path, authz string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthIsPublic(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestReadinessFollowsScheduler(t *testing.T) {
	s, lm, _ := newTestServer(t)

	w := do(s, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", decode(t, w)["scheduler"])

	lm.scheduler = "terminating"
	w = do(s, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "BUS_503", body["code"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, path := range []string{"/api/v1/system/status", "/api/v1/bus/slaves", "/api/v1/bus/stats", "/api/v1/bus/axes", "/api/v1/templates"} {
		w := do(s, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := do(s, http.MethodGet, "/api/v1/bus/stats", "Bearer garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBusEndpoints(t *testing.T) {
	s, _, cfg := newTestServer(t)
	authz := bearer(t, cfg, "operator")

	w := do(s, http.MethodGet, "/api/v1/bus/slaves", authz, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["count"])
	first := body["slaves"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "axis0", first["name"])
	assert.Equal(t, true, first["reference_clock"])

	w = do(s, http.MethodGet, "/api/v1/bus/stats", authz, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "running", body["state"])
	assert.EqualValues(t, 1000, body["cycles"])

	w = do(s, http.MethodGet, "/api/v1/bus/axes", authz, nil)
	require.Equal(t, http.StatusOK, w.Code)
	axes := decode(t, w)["axes"].([]interface{})
	assert.EqualValues(t, 12345, axes[0].(map[string]interface{})["actual_position"])

	w = do(s, http.MethodGet, "/api/v1/system/status", authz, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OPERATIONAL", decode(t, w)["state"])
}

func TestShutdownRequiresAdmin(t *testing.T) {
	s, lm, cfg := newTestServer(t)

	w := do(s, http.MethodPost, "/api/v1/system/shutdown", bearer(t, cfg, "operator"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, lm.stopRequests)

	w = do(s, http.MethodPost, "/api/v1/system/shutdown", bearer(t, cfg, "admin"), nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, lm.stopRequests)
}

func TestTemplates(t *testing.T) {
	s, _, cfg := newTestServer(t)
	authz := bearer(t, cfg, "operator")

	w := do(s, http.MethodGet, "/api/v1/templates", authz, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	builtin := body["builtin"].([]interface{})
	require.Len(t, builtin, 1)
	erob := builtin[0].(map[string]interface{})
	assert.Equal(t, devices.EROBTemplateID, erob["id"])
	assert.EqualValues(t, 8, erob["entries"])
	assert.Equal(t, true, erob["dc"])

	w = do(s, http.MethodGet, "/api/v1/templates/"+devices.EROBTemplateID, authz, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodGet, "/api/v1/templates/missing", authz, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueToken(t *testing.T) {
	key, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	hash, err := auth.NewHasher().Hash(key)
	require.NoError(t, err)

	s, _, _ := newTestServer(t, config.APIKeyConfig{Name: "hmi", Hash: hash, Role: "admin"})

	body, _ := json.Marshal(TokenRequest{APIKey: key})
	w := do(s, http.MethodPost, "/api/v1/auth/token", "", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "admin", resp.Role)
	assert.Greater(t, resp.ExpiresIn, 0)

	// the issued token opens the admin route
	w = do(s, http.MethodPost, "/api/v1/system/shutdown", "Bearer "+resp.AccessToken, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	wrong, _ := auth.GenerateAPIKey()
	body, _ = json.Marshal(TokenRequest{APIKey: wrong})
	w = do(s, http.MethodPost, "/api/v1/auth/token", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(s, http.MethodPost, "/api/v1/auth/token", "", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
