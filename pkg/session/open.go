package session

import (
	"github.com/Azure/btumor-intake/pkg/config"
	"github.com/Azure/btumor-intake/pkg/errors"
	"github.com/rs/zerolog"
)

// Open builds the store selected by cfg.StoreBackend
func Open(cfg config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendFile, "":
		return NewFileStore(FileStoreConfig{
			Root:            cfg.StorageRoot,
			ListConcurrency: cfg.ListConcurrency,
			Logger:          logger,
		})
	case config.StoreBackendBolt:
		return NewBoltStore(BoltStoreConfig{
			Path:            cfg.BoltPath,
			Root:            cfg.StorageRoot,
			ListConcurrency: cfg.ListConcurrency,
			Logger:          logger,
		})
	default:
		return nil, errors.Validationf(module, "unknown store backend %q", cfg.StoreBackend)
	}
}
