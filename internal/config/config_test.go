package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", cfg.ServerURL)
	require.Equal(t, 60*time.Second, cfg.SyncInterval)
	require.Equal(t, 24*time.Hour, cfg.Retention)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("QUICKPIC_SERVER_URL", "https://relay.example.com")
	t.Setenv("QUICKPIC_SYNC_INTERVAL", "15s")
	t.Setenv("QUICKPIC_RETENTION", "48h")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://relay.example.com", cfg.ServerURL)
	require.Equal(t, 15*time.Second, cfg.SyncInterval)
	require.Equal(t, 48*time.Hour, cfg.Retention)
}
