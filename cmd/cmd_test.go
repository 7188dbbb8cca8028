package cmd

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Azure/btumor-intake/pkg/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVersion(t *testing.T) {
	assert.Contains(t, getVersion(), "dev")

	Version, GitCommit, BuildTime = "1.0.0", "abc123", "2026-01-01T00:00:00Z"
	defer func() { Version, GitCommit, BuildTime = "dev", "unknown", "unknown" }()

	assert.Equal(t, "v1.0.0 (commit: abc123, built: 2026-01-01T00:00:00Z)", getVersion())
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BTUMOR_STORAGE_ROOT", filepath.Join(dir, "from-env"))
	t.Setenv("BTUMOR_HTTP_PORT", "7000")

	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().AddFlagSet(serveCmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{
		"--storage-root", filepath.Join(dir, "from-flag"),
		"--log-level", "debug",
	}))
	t.Cleanup(func() {
		cmd.Flags().Set("storage-root", "")
		cmd.Flags().Set("log-level", "info")
	})

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "from-flag"), cfg.StorageRoot)
	assert.Equal(t, 7000, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.DirExists(t, cfg.StorageRoot)
}

func TestBuildServer(t *testing.T) {
	for _, backend := range []string{config.StoreBackendFile, config.StoreBackendBolt} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			cfg := config.DefaultConfig()
			cfg.StorageRoot = filepath.Join(dir, "uploads")
			cfg.StoreBackend = backend
			cfg.BoltPath = filepath.Join(dir, "sessions.db")
			require.NoError(t, cfg.Validate())

			server, cleanup, err := buildServer(*cfg, zerolog.Nop())
			require.NoError(t, err)
			defer cleanup()

			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/create", nil))
			assert.Equal(t, http.StatusOK, rec.Code)

			rec = httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}
