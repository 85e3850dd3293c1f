// Package storage defines the unified Store interface over the agent and
// workflow configuration stores. Two backends are provided: an in-memory
// store (zero-config, tests) and a GORM store (SQLite default, PostgreSQL
// for production).
package storage

import (
	"context"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/workflow"
)

// Store is the unified persistence interface. Both backends implement it.
type Store interface {
	// Agents is the source of truth for registry population and reload.
	Agents() agent.Store

	// Workflows holds workflow definitions and the active-workflow marker.
	Workflows() workflow.Store

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name.
	Driver() string
}

// Config holds storage configuration for driver selection.
type Config struct {
	Driver   string         `json:"driver" yaml:"driver"`
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	JournalMode string `json:"journal_mode" yaml:"journal_mode"` // "wal" (default), "delete", "truncate", etc.
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"`
}

// DefaultDriver is the default storage driver.
const DefaultDriver = "sqlite"

// DriverMemory is the in-memory driver name.
const DriverMemory = "memory"

// DriverSQLite is the SQLite driver name.
const DriverSQLite = "sqlite"

// DriverPostgres is the PostgreSQL driver name.
const DriverPostgres = "postgres"
