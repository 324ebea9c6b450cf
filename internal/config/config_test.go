package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.HTTPPort)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "memory", cfg.QueueBackend)
	assert.EqualValues(t, 100_000_000, cfg.RelayMaxMessageBytes)
	assert.Equal(t, 2*time.Second, cfg.DashboardPollInterval)
	assert.False(t, cfg.Production())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("HTTP_PORT", "8088")
	t.Setenv("RELAY_MAX_MESSAGE_BYTES", "2048")
	t.Setenv("DASHBOARD_POLL_INTERVAL", "500ms")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "8088", cfg.HTTPPort)
	assert.EqualValues(t, 2048, cfg.RelayMaxMessageBytes)
	assert.Equal(t, 500*time.Millisecond, cfg.DashboardPollInterval)
	assert.True(t, cfg.Production())
}

func TestLoadConfigFileUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_port: \"7000\"\nevidence_dir: /srv/evidence\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/evidence", cfg.EvidenceDir)
	assert.Equal(t, "7001", cfg.HTTPPort, "environment wins over file")
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	_, err := Load()
	assert.Error(t, err)
}

func TestRelayURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:5000":  "ws://localhost:5000/ws",
		"https://proctor.school": "wss://proctor.school/ws",
	}
	for in, want := range cases {
		assert.Equal(t, want, App{DashboardAPIURL: in}.RelayURL())
	}
}
