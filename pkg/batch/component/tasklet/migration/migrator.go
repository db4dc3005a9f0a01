package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// migratorImpl implements Migrator
type migratorImpl struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &migratorImpl{
		dbConn: dbConn,
		dbType: dbConn.Type(),
	}
}

// getDatabaseDriver retrieves a migrate/v4 Driver based on the database type.
func (m *migratorImpl) getDatabaseDriver(sqlDB *sql.DB, tableName string) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{
			MigrationsTable: tableName,
		})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{
			MigrationsTable: tableName,
		})
	case "sqlite":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{
			MigrationsTable: tableName,
		})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

// sharesPool reports whether migrations must run on the connection's own pool.
// Each connection to an in-memory sqlite database sees a different database.
func (m *migratorImpl) sharesPool() bool {
	return m.dbType == "sqlite" && gormadapter.IsInMemorySQLite(m.dbConn.Config().Database)
}

// migrationDB returns the *sql.DB to migrate through. Closing the migrate
// instance closes the database it was built on, so a dedicated pool is opened
// unless the database only exists inside the connection's pool.
func (m *migratorImpl) migrationDB() (*sql.DB, bool, error) {
	if m.sharesPool() {
		sqlDB, err := m.dbConn.GetSQLDB()
		return sqlDB, false, err
	}
	gormDB, err := gormadapter.Open(m.dbConn.Config(), "SILENT")
	if err != nil {
		return nil, false, err
	}
	sqlDB, err := gormDB.DB()
	return sqlDB, true, err
}

func (m *migratorImpl) withInstance(migrationFS fs.FS, path string, tableName string, fn func(*migrate.Migrate) error) error {
	sqlDB, owned, err := m.migrationDB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for migration: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		if owned {
			sqlDB.Close()
		}
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}

	dbDriver, err := m.getDatabaseDriver(sqlDB, tableName)
	if err != nil {
		sourceDriver.Close()
		if owned {
			sqlDB.Close()
		}
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		sourceDriver.Close()
		if owned {
			dbDriver.Close()
		}
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	runErr := fn(mInstance)
	if owned {
		if srcErr, dbErr := mInstance.Close(); srcErr != nil || dbErr != nil {
			logger.Warnf("Closing migrate instance for '%s': source=%v database=%v", m.dbConn.Name(), srcErr, dbErr)
		}
	} else if err := sourceDriver.Close(); err != nil {
		logger.Warnf("Closing migration source for '%s': %v", m.dbConn.Name(), err)
	}
	return runErr
}

func (m *migratorImpl) runMigration(ctx context.Context, migrationFS fs.FS, path string, command string, tableName string) error {
	logger.Infof("Executing migration '%s' (Path: %s, Table: %s)", command, path, tableName)

	return m.withInstance(migrationFS, path, tableName, func(mInstance *migrate.Migrate) error {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				mInstance.GracefulStop <- true
			case <-stop:
			}
		}()

		var migrateErr error
		switch command {
		case "up":
			migrateErr = mInstance.Up()
		case "down":
			migrateErr = mInstance.Down()
		default:
			return fmt.Errorf("unsupported migration command: %s", command)
		}

		if migrateErr != nil && !errors.Is(migrateErr, migrate.ErrNoChange) {
			m.logSchemaState(mInstance, migrateErr, tableName)
			return fmt.Errorf("migration failed for command '%s' (DB: %s, Path: %s): %w", command, m.dbType, path, migrateErr)
		}
		if errors.Is(migrateErr, migrate.ErrNoChange) {
			logger.Infof("Migration '%s': schema of '%s' is up to date.", command, m.dbConn.Name())
			return nil
		}
		logger.Infof("Migration '%s' completed successfully.", command)
		return nil
	})
}

// logSchemaState logs the schema version left behind by a failed migration.
// A failed write to the version table leaves the driver's transaction open,
// so the version is not read back in that case.
func (m *migratorImpl) logSchemaState(mInstance *migrate.Migrate, migrateErr error, tableName string) {
	var dirtyErr migrate.ErrDirty
	if errors.As(migrateErr, &dirtyErr) {
		logger.Errorf("Schema of '%s' is dirty at version %d.", m.dbConn.Name(), dirtyErr.Version)
		return
	}
	var dbErr *migratedb.Error
	if errors.As(migrateErr, &dbErr) && strings.Contains(string(dbErr.Query), tableName) {
		logger.Errorf("Migration failed while writing version table '%s' of '%s': %v", tableName, m.dbConn.Name(), dbErr.OrigErr)
		return
	}
	version, dirty, err := mInstance.Version()
	if err != nil {
		logger.Errorf("Migration failed and failed to retrieve version: %v", err)
		return
	}
	logger.Errorf("Migration failed. Schema of '%s' is at version %d (dirty: %v).", m.dbConn.Name(), version, dirty)
}

func (m *migratorImpl) Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.runMigration(ctx, migrationFS, path, "up", tableName)
}

func (m *migratorImpl) Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.runMigration(ctx, migrationFS, path, "down", tableName)
}

func (m *migratorImpl) Version(ctx context.Context, migrationFS fs.FS, path string, tableName string) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.withInstance(migrationFS, path, tableName, func(mInstance *migrate.Migrate) error {
		var verr error
		version, dirty, verr = mInstance.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		return verr
	})
	return version, dirty, err
}
