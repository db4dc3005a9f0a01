// Package database defines the connection abstractions the warehouse and the
// run history are built on. Concrete implementations live in the gorm subpackages.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/citibike/pkg/batch/adapter/database/config"
)

// DBExecutor defines the write and read operations shared by every connection.
type DBExecutor interface {
	// ExecuteUpdate performs CREATE, UPDATE or DELETE of an entity. query restricts UPDATE and DELETE.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteBatchInsert appends rows (a slice of entities) in batches of batchSize.
	ExecuteBatchInsert(ctx context.Context, tableName string, rows interface{}, batchSize int) (rowsAffected int64, err error)

	// ExecuteDeleteWhere deletes every row of tableName matching the SQL condition.
	ExecuteDeleteWhere(ctx context.Context, tableName string, where string, args ...interface{}) (rowsAffected int64, err error)

	// ExecuteQueryAdvanced executes a SELECT with optional sorting and limiting.
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error

	// CountWhere counts the rows of tableName matching the SQL condition. An empty condition counts all rows.
	CountWhere(ctx context.Context, tableName string, where string, args ...interface{}) (int64, error)

	// ScanAggregate evaluates selectExpr (e.g. "MIN(datetime)") over the matching rows into dest.
	ScanAggregate(ctx context.Context, dest interface{}, tableName string, selectExpr string, where string, args ...interface{}) error
}

// DBConnection represents an abstraction of a named database connection.
type DBConnection interface {
	DBExecutor

	// Type returns the database type, for example "sqlite".
	Type() string
	// Name returns the connection name under adapter.database.
	Name() string
	// Close closes the underlying pool.
	Close() error
	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves a connection by name.
type DBConnectionResolver interface {
	// ResolveDBConnection returns the connection named name, establishing it if necessary.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider provides connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider (e.g., "sqlite").
	Type() string
}

// DBProviderGroup is an Fx tag used to group all DBProvider implementations.
const DBProviderGroup = `group:"db_providers"`
