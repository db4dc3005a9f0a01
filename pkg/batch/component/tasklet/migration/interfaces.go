package migration

import (
	"context"
	"io/fs"
)

// MigrationsTable is the table golang-migrate uses to track applied versions.
const MigrationsTable = "citibike_schema_migrations"

// Migrator applies versioned schema migrations to one database connection.
type Migrator interface {
	// Up applies all pending migrations found under path in migrationFS.
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Down rolls back all applied migrations.
	Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Version reports the current schema version and whether it is dirty.
	Version(ctx context.Context, migrationFS fs.FS, path string, tableName string) (version uint, dirty bool, err error)
}
