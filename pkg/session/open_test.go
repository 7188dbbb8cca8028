package session

import (
	"path/filepath"
	"testing"

	"github.com/Azure/btumor-intake/pkg/config"
	"github.com/Azure/btumor-intake/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.StorageRoot = filepath.Join(dir, "uploads")
	cfg.BoltPath = filepath.Join(dir, "sessions.db")

	cfg.StoreBackend = config.StoreBackendFile
	store, err := Open(*cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	require.NoError(t, store.Close())

	cfg.StoreBackend = config.StoreBackendBolt
	store, err = Open(*cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, store)
	require.NoError(t, store.Close())

	cfg.StoreBackend = "postgres"
	_, err = Open(*cfg, zerolog.Nop())
	assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))
	assert.Contains(t, err.Error(), `unknown store backend "postgres"`)
}
