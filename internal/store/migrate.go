package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// Migrate brings the schema up to date. Running it on an up-to-date
// database is a no-op.
func (s *Store) Migrate() error {
	driver, dir, err := s.migrationDriver(s.db)
	if err != nil {
		return fmt.Errorf("creating %s migration driver: %w", s.d.driver, err)
	}
	src, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	// m.Close would close s.db as well.
	m, err := migrate.NewWithInstance("iofs", src, s.d.driver, driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.log.Debug().Msg("no new database migrations to apply")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}
	version, _, _ := m.Version()
	s.log.Info().Uint("version", version).Msg("database migrations applied")
	return nil
}

func (s *Store) migrationDriver(db *sql.DB) (database.Driver, string, error) {
	switch s.d.driver {
	case DriverSQLite:
		drv, err := sqlite.WithInstance(db, &sqlite.Config{})
		return drv, "migrations/sqlite", err
	case DriverPgx:
		drv, err := migratepgx.WithInstance(db, &migratepgx.Config{})
		return drv, "migrations/postgres", err
	default:
		drv, err := postgres.WithInstance(db, &postgres.Config{})
		return drv, "migrations/postgres", err
	}
}
