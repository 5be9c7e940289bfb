package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
bus:
  allow_partial: true
  reference: axis0
  realtime:
    lock_memory: false
slaves:
  - name: axis0
    position: 0
    template: erob-cia402
  - name: axis1
    position: 1
    vendor_id: 0x5a65726f
    product_code: 0x00029252
auth:
  api_keys:
    - name: hmi
      hash: "$argon2id$v=19$m=65536,t=1,p=1$c2FsdA$aGFzaA"
      role: operator
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "sim", cfg.Bus.Transport)
	assert.True(t, cfg.Bus.AllowPartial)
	assert.Equal(t, 10, cfg.Bus.MaxConsecutiveFaults)
	assert.False(t, cfg.Bus.Realtime.LockMemory)
	assert.Equal(t, -1, cfg.Bus.Realtime.CPU)
	assert.Equal(t, 100*time.Millisecond, cfg.Telemetry.Interval)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)

	require.Len(t, cfg.Slaves, 2)
	assert.Equal(t, uint16(1), cfg.Slaves[1].Position)
	assert.Equal(t, uint32(0x5a65726f), cfg.Slaves[1].VendorID)
	assert.Equal(t, "operator", cfg.Auth.APIKeys[0].Role)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("OMC_BUS_MAX_CONSECUTIVE_FAULTS", "3")
	t.Setenv("OMC_SERVER_HTTP_PORT", "9090")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Bus.MaxConsecutiveFaults)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	_, err := Load(writeConfig(t, "bus:\n  transport: sim\n"))
	assert.ErrorContains(t, err, "no slaves")

	_, err = Load(writeConfig(t, sample+"telemetry:\n  interval: 0s\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestJWTSecretFallback(t *testing.T) {
	a := AuthConfig{JWTSecretEnv: "OMC_TEST_SECRET"}
	assert.False(t, a.IsProductionReady())

	t.Setenv("OMC_TEST_SECRET", "0123456789abcdef0123456789abcdef")
	assert.True(t, a.IsProductionReady())
}
