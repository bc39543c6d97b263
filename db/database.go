package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DatabaseConfig holds configuration for Open.
type DatabaseConfig struct {
	// Path is the database file path
	Path string
	// MigrationsPath is a golang-migrate source URL; empty uses the
	// migrations compiled into the binary
	MigrationsPath string
	// SkipMigrations leaves the schema untouched (the migrate command
	// manages it explicitly)
	SkipMigrations bool
	// Connection overrides the default connection settings
	Connection *ConnectionConfig
}

// DefaultDatabaseConfig returns the configuration used by serve.
func DefaultDatabaseConfig(path string) DatabaseConfig {
	return DatabaseConfig{Path: path}
}

// Database owns the connection pool and its lifecycle.
//
// Usage:
//
//	database, err := db.Open(db.DefaultDatabaseConfig(cfg.DBPath))
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//	repo := db.NewRepository(database)
type Database struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open creates the parent directory, applies pending migrations and opens
// the connection pool.
func Open(config DatabaseConfig) (*Database, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	if !config.SkipMigrations {
		if err := MigrateUp(config.Path, config.MigrationsPath); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	connConfig := DefaultConnectionConfig(config.Path)
	if config.Connection != nil {
		connConfig = *config.Connection
		connConfig.Path = config.Path
	}

	conn, err := NewSQLiteConnection(connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	return &Database{db: conn, path: config.Path}, nil
}

// DB returns the pool, or nil after Close.
func (d *Database) DB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Ping verifies the connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	conn := d.DB()
	if conn == nil {
		return ErrClosed
	}
	return conn.PingContext(ctx)
}

// Close closes the pool. Later calls are no-ops.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
