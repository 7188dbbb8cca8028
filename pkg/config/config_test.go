package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(500*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, []string{".nii", ".nii.gz"}, cfg.AllowedExtensions)
	assert.Equal(t, []string{"T1", "T1CE", "T2", "FLAIR"}, cfg.SequenceTypes)
	assert.Equal(t, "0.0.0.0:5001", cfg.ListenAddr())
}

func TestLoad_EnvOverrides(t *testing.T) {
	root := t.TempDir()
	t.Setenv("BTUMOR_STORAGE_ROOT", root)
	t.Setenv("BTUMOR_MAX_UPLOAD_BYTES", "1024")
	t.Setenv("BTUMOR_ALLOWED_EXTENSIONS", ".nii, .nii.gz ,.dcm")
	t.Setenv("BTUMOR_HTTP_PORT", "8088")
	t.Setenv("BTUMOR_LOG_LEVEL", "DEBUG")
	t.Setenv("BTUMOR_METRICS_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, root, cfg.StorageRoot)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, []string{".nii", ".nii.gz", ".dcm"}, cfg.AllowedExtensions)
	assert.Equal(t, 8088, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.MetricsEnabled)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "intake.env")
	content := "BTUMOR_SERVICE_NAME=intake-from-file\nBTUMOR_STORE_BACKEND=bolt\nBTUMOR_BOLT_PATH=" + filepath.Join(dir, "sessions.db") + "\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	t.Cleanup(func() {
		os.Unsetenv("BTUMOR_SERVICE_NAME")
		os.Unsetenv("BTUMOR_STORE_BACKEND")
		os.Unsetenv("BTUMOR_BOLT_PATH")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "intake-from-file", cfg.ServiceName)
	assert.Equal(t, StoreBackendBolt, cfg.StoreBackend)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoad_BadNumber(t *testing.T) {
	t.Setenv("BTUMOR_HTTP_PORT", "not-a-port")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BTUMOR_HTTP_PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty root", func(c *Config) { c.StorageRoot = "" }, "storage_root"},
		{"unknown backend", func(c *Config) { c.StoreBackend = "redis" }, "store_backend"},
		{"bolt without path", func(c *Config) { c.StoreBackend = StoreBackendBolt }, "bolt_path"},
		{"zero cap", func(c *Config) { c.MaxUploadBytes = 0 }, "max_upload_bytes"},
		{"no extensions", func(c *Config) { c.AllowedExtensions = nil }, "extension"},
		{"extension without dot", func(c *Config) { c.AllowedExtensions = []string{"nii"} }, "dot"},
		{"duplicate slot", func(c *Config) { c.SequenceTypes = []string{"T1", "T1"} }, "duplicate"},
		{"slot with separator", func(c *Config) { c.SequenceTypes = []string{"../T1"} }, "invalid sequence type"},
		{"bad port", func(c *Config) { c.HTTPPort = 70000 }, "http_port"},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"zero list concurrency", func(c *Config) { c.ListConcurrency = 0 }, "list_concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.StorageRoot = filepath.Join(dir, "uploads")
	cfg.StoreBackend = StoreBackendBolt
	cfg.BoltPath = filepath.Join(dir, "db", "sessions.db")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.StorageRoot)
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoad_MalformedImplicitEnvFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, os.Chdir(wd)) })

	require.NoError(t, os.WriteFile(".env", []byte("BTUMOR-LOG-LEVEL=debug\n"), 0o600))

	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load env file .env")
}
