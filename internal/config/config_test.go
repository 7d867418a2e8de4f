// Copyright (c) 2025 Justin Cranford

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REAUTH_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", cfg.Server.PublicURL)
	require.Equal(t, 300*time.Second, cfg.Auth.AccessTokenTTL)
	require.True(t, cfg.Auth.PKCERequiredPublicClients)
	require.Equal(t, 5, cfg.Auth.LockoutThreshold)
	require.Equal(t, 10, cfg.Outbox.ConsecutiveDisable)
}

func TestLoad_FileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reauth.toml")
	toml := "[server]\npublic_url = \"https://idp.example.com\"\n\n[auth]\nissuer = \"https://idp.example.com\"\nlockout_threshold = 3\n"
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o600))

	t.Setenv("REAUTH_CONFIG", path)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://idp.example.com", cfg.Server.PublicURL)
	require.Equal(t, "https://idp.example.com", cfg.Auth.Issuer)
	require.Equal(t, 3, cfg.Auth.LockoutThreshold)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("REAUTH_CONFIG", "")
	t.Setenv("REAUTH__AUTH__LOCKOUT_THRESHOLD", "9")
	t.Setenv("REAUTH__DATABASE__URL", "file:other.db")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Auth.LockoutThreshold)
	require.Equal(t, "file:other.db", cfg.Database.URL)
}
