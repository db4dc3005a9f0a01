package warehouse

import (
	"context"

	"github.com/tigerroll/citibike/internal/warehouse/migrations"
	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
	"github.com/tigerroll/citibike/pkg/batch/component/tasklet/migration"
)

// NewMigrationTasklet returns a tasklet applying the embedded warehouse
// migrations to dbRef. command is "up" or "down".
func NewMigrationTasklet(resolver database.DBConnectionResolver, dbRef, command string) (*migration.MigrationTasklet, error) {
	return migration.NewMigrationTasklet(resolver, migrations.ProvideMigrationsFS(), "", dbRef, command)
}

// EnsureSchema applies every pending migration to dbRef.
func EnsureSchema(ctx context.Context, resolver database.DBConnectionResolver, dbRef string) error {
	t, err := NewMigrationTasklet(resolver, dbRef, "up")
	if err != nil {
		return err
	}
	_, err = t.Execute(ctx, nil)
	return err
}
