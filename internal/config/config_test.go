package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.ClientTimeout)
	assert.Equal(t, time.Minute, cfg.JoinRateInterval)
	assert.Equal(t, time.Second, cfg.LeaveTimeout)
	assert.Equal(t, DefaultSecret, cfg.Secret)
	assert.True(t, cfg.Announce)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	body := "port: 9000\nheartbeat_interval: 2s\nclient_timeout: 7s\nannounce: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 7*time.Second, cfg.ClientTimeout)
	assert.False(t, cfg.Announce)
}

func TestLoadFileEnv(t *testing.T) {
	t.Setenv("RELAY_PORT", "9100")
	t.Setenv("RELAY_CLIENT_TIMEOUT", "30s")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ClientTimeout)
}

func TestValidateRejectsTimeoutNotAboveInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("heartbeat_interval: 10s\nclient_timeout: 10s\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_timeout")
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestReleaseModeWarnsOnDefaultSecret(t *testing.T) {
	buf := captureLog(t)
	t.Setenv("RELAY_MODE", "release")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultSecret, cfg.Secret)
	assert.Contains(t, buf.String(), "default cookie secret")
}

func TestReleaseModeWithSecretDoesNotWarn(t *testing.T) {
	buf := captureLog(t)
	t.Setenv("RELAY_MODE", "release")
	t.Setenv("RELAY_SECRET", "s3cr3t")

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.NotContains(t, buf.String(), "default cookie secret")
}

func TestValidateRejectsZeroLeaveTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("leave_timeout: 0s\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leave_timeout")
}
