package migration

import (
	"context"
	"io/fs"
	"path"

	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

const taskletName = "migration_tasklet"

// MigrationTasklet applies the embedded schema migrations to a named connection.
// The migration directory is "<root>/<database type>".
type MigrationTasklet struct {
	dbResolver       database.DBConnectionResolver
	migrationFS      fs.FS
	root             string
	dbConnectionName string
	command          string
	newMigrator      func(database.DBConnection) Migrator
}

// NewMigrationTasklet creates a MigrationTasklet. An empty command means "up".
func NewMigrationTasklet(dbResolver database.DBConnectionResolver, migrationFS fs.FS, root, dbConnectionName, command string) (*MigrationTasklet, error) {
	if dbConnectionName == "" {
		return nil, exception.NewBatchErrorf(taskletName, "a database connection name is required for MigrationTasklet").WithKind(exception.KindConfig)
	}
	if migrationFS == nil {
		return nil, exception.NewBatchErrorf(taskletName, "a migration file system is required for MigrationTasklet").WithKind(exception.KindConfig)
	}
	if command == "" {
		command = "up"
	}
	if command != "up" && command != "down" {
		return nil, exception.NewBatchErrorf(taskletName, "unknown migration command: %s", command).WithKind(exception.KindConfig)
	}
	return &MigrationTasklet{
		dbResolver:       dbResolver,
		migrationFS:      migrationFS,
		root:             root,
		dbConnectionName: dbConnectionName,
		command:          command,
		newMigrator:      NewMigrator,
	}, nil
}

// Execute runs the configured migration command.
func (t *MigrationTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	dbConn, err := t.dbResolver.ResolveDBConnection(ctx, t.dbConnectionName)
	if err != nil {
		return model.ExitStatusFailed, exception.NewKindError(exception.KindWarehouseOperation, taskletName, "failed to resolve database connection '"+t.dbConnectionName+"'", err)
	}

	migrationDir := path.Join(t.root, dbConn.Type())
	logger.Infof("Starting database migration for DB connection '%s' using directory '%s' with command '%s'.",
		t.dbConnectionName, migrationDir, t.command)

	migrator := t.newMigrator(dbConn)
	switch t.command {
	case "up":
		err = migrator.Up(ctx, t.migrationFS, migrationDir, MigrationsTable)
	case "down":
		err = migrator.Down(ctx, t.migrationFS, migrationDir, MigrationsTable)
	}
	if err != nil {
		return model.ExitStatusFailed, exception.NewKindError(exception.KindWarehouseOperation, taskletName, "migration '"+t.command+"' failed", err)
	}

	if version, dirty, verr := migrator.Version(ctx, t.migrationFS, migrationDir, MigrationsTable); verr == nil && stepExecution != nil {
		stepExecution.ExecutionContext.Put("schema_version", int64(version))
		stepExecution.ExecutionContext.Put("schema_dirty", dirty)
	}
	return model.ExitStatusCompleted, nil
}

// Close releases nothing; connections belong to the resolver.
func (t *MigrationTasklet) Close(ctx context.Context) error {
	return nil
}
