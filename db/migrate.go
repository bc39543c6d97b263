package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// source driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationStatus reports the schema version of a database.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// MigrateUp applies every pending migration. An empty migrationsPath uses
// the migrations compiled into the binary; otherwise it is a golang-migrate
// source URL such as "file://db/migrations". No pending migrations is not
// an error.
func MigrateUp(dbPath, migrationsPath string) error {
	return withMigrator(dbPath, migrationsPath, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back steps migrations, or all of them when steps <= 0.
func MigrateDown(dbPath, migrationsPath string, steps int) error {
	return withMigrator(dbPath, migrationsPath, func(m *migrate.Migrate) error {
		var err error
		if steps <= 0 {
			err = m.Down()
		} else {
			err = m.Steps(-steps)
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}
		return nil
	})
}

// GetMigrationStatus returns the applied version. A fresh database reports
// version 0.
func GetMigrationStatus(dbPath, migrationsPath string) (MigrationStatus, error) {
	var status MigrationStatus
	err := withMigrator(dbPath, migrationsPath, func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get migration version: %w", err)
		}
		status = MigrationStatus{Version: version, Dirty: dirty}
		return nil
	})
	return status, err
}

// withMigrator runs fn against a migrator on its own connection.
// golang-migrate closes the connection it is given, so the caller's pool is
// never handed over.
func withMigrator(dbPath, migrationsPath string, fn func(*migrate.Migrate) error) error {
	conn, err := NewSQLiteConnection(DefaultConnectionConfig(dbPath))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	m, err := newMigrator(conn, migrationsPath)
	if err != nil {
		conn.Close()
		return err
	}
	defer m.Close()

	return fn(m)
}

func newMigrator(conn *sql.DB, migrationsPath string) (*migrate.Migrate, error) {
	driver, err := sqlite.WithInstance(conn, &sqlite.Config{DatabaseName: "main"})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	if migrationsPath == "" {
		src, err := iofs.New(embeddedMigrations, "migrations")
		if err != nil {
			return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to create migrate instance: %w", err)
		}
		return m, nil
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}
