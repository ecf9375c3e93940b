package backend

import (
	"context"
	"fmt"

	applog "github.com/Imaginaryverse/spending-habits/internal/log"
	"github.com/Imaginaryverse/spending-habits/internal/storage/memory"
	"github.com/Imaginaryverse/spending-habits/internal/storage/sqlstore"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct{}

func NewFactory() Factory {
	return &DefaultFactory{}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = applog.Discard()
	}
	logger := config.Logger.WithComponent(applog.ComponentBackend)

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLStore(ctx, config, sqlstore.SQLite, config.SQLiteDBPath, logger)
	case PostgresBackend:
		return f.createSQLStore(ctx, config, sqlstore.Postgres, config.PostgresDSN, logger)
	case MemoryBackend:
		return f.createMemoryBackend(config, logger)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLStore(ctx context.Context, config Config, dialect sqlstore.Dialect, dsn string, logger *applog.Logger) (*BackendResult, error) {
	store, err := sqlstore.Open(ctx, sqlstore.Options{
		Dialect: dialect,
		DSN:     dsn,
		Logger:  config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", dialect, err)
	}

	logger.Info("Initialized SQL backend", applog.FieldBackend, config.Type.String())

	return &BackendResult{
		Store:   store,
		Type:    config.Type,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config, logger *applog.Logger) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store := memory.NewFromFiles(dataDir)

	logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{
		Store:   store,
		Type:    MemoryBackend,
		Cleanup: store.Close,
	}, nil
}
