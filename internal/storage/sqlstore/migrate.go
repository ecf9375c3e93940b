package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// RunMigrations applies every pending migration for the dialect.
//
// SQLite migrates through db itself so that ":memory:" databases see the
// schema. Postgres gets a dedicated connection from dsn, because the
// migrate driver pins a connection and closes its pool on Close.
func RunMigrations(db *sql.DB, d Dialect, dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+d.Name())
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	var (
		driver    database.Driver
		migrateDB *sql.DB
	)
	switch d {
	case SQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
		if err != nil {
			return fmt.Errorf("create sqlite driver: %w", err)
		}
	case Postgres:
		migrateDB, err = sql.Open(d.DriverName(), dsn)
		if err != nil {
			return fmt.Errorf("open migration database: %w", err)
		}
		driver, err = migratepgx.WithInstance(migrateDB, &migratepgx.Config{})
		if err != nil {
			migrateDB.Close()
			return fmt.Errorf("create pgx driver: %w", err)
		}
	default:
		return fmt.Errorf("unsupported dialect %q", d)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.Name(), driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if migrateDB != nil {
		defer m.Close()
	} else {
		defer src.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
