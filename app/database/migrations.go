package database

import (
	"embed"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies all pending migrations to the database and returns version info
func RunMigrations(db *DB) (uint, bool, error) {
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to create sqlite driver")
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to create iofs source")
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to create migrate instance")
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, errors.Wrap(err, "failed to run migrations")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to get migration version")
	}

	return version, dirty, nil
}
