// Package migrations embeds and applies the group registry's schema: the
// single statically-shaped table in a system whose rank tables are all
// dynamically named and shaped (spec §12.4).
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var MigrationFiles embed.FS

// Run executes all pending migrations against db. If autoMigrate is
// false, it only logs the current version and skips applying pending ones.
func Run(db *sql.DB, autoMigrate bool) error {
	sourceDriver, err := iofs.New(MigrationFiles, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	if dirty {
		slog.Warn("[migrations] database is in dirty state, attempting recovery", "version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to recover dirty migration state at version %d: %w", version, err)
		}
		slog.Info("[migrations] recovered dirty migration state", "version", version)
	}

	if !autoMigrate {
		slog.Info("[migrations] auto-migration disabled, skipping", "current_version", version, "dirty", dirty)
		return nil
	}

	slog.Info("[migrations] running database migrations", "current_version", version)
	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			slog.Info("[migrations] schema is up to date", "version", version)
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get updated migration version: %w", err)
	}
	slog.Info("[migrations] completed", "from_version", version, "to_version", newVersion)
	return nil
}
