package backend

import (
	"context"

	applog "github.com/Imaginaryverse/spending-habits/internal/log"
	"github.com/Imaginaryverse/spending-habits/internal/storage"
)

// CleanupFunc releases resources held by a backend
type CleanupFunc func() error

// BackendResult contains the store and its cleanup function
type BackendResult struct {
	Store   storage.Store
	Type    BackendType
	Cleanup CleanupFunc
}

// Factory creates stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresDSN string

	// Memory backend specific; seed_categories.txt is read from here when present
	DataDirectory string

	Logger *applog.Logger
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// IsPersistent reports whether data survives a restart
func (bt BackendType) IsPersistent() bool {
	return bt == SQLiteBackend || bt == PostgresBackend
}
