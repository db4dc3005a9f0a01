package sql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/citibike/internal/warehouse/migrations"
	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/citibike/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/citibike/pkg/batch/component/tasklet/migration"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	"github.com/tigerroll/citibike/pkg/batch/core/domain/repository"
	sqlrepo "github.com/tigerroll/citibike/pkg/batch/infrastructure/repository/sql"
)

type staticResolver struct {
	conn database.DBConnection
}

func (r staticResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	return r.conn, nil
}

func newRepository(t *testing.T, migrate bool) *sqlrepo.SQLJobRepository {
	t.Helper()
	cfg := dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"}
	gdb, err := gormadapter.Open(cfg, "SILENT")
	require.NoError(t, err)
	conn, err := gormadapter.NewGormDBAdapter(gdb, cfg, "warehouse")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	resolver := staticResolver{conn}
	if migrate {
		tasklet, err := migration.NewMigrationTasklet(resolver, migrations.ProvideMigrationsFS(), "", "warehouse", "up")
		require.NoError(t, err)
		_, err = tasklet.Execute(context.Background(), nil)
		require.NoError(t, err)
	}
	return sqlrepo.NewSQLJobRepository(resolver, "warehouse")
}

func TestSQLJobRepositoryRecordsRunHistory(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, true)

	je := model.NewJobExecution("monthlyPipeline", model.JobParameters{"period": "2025-01"})
	je.MarkAsStarted()
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	se := model.NewStepExecution(je, "LoadTrips")
	se.MarkAsStarted()
	require.NoError(t, repo.SaveStepExecution(ctx, se))

	se.WriteCount = 42
	se.DeleteCount = 7
	se.MarkAsCompleted(model.ExitStatusCompleted)
	require.NoError(t, repo.UpdateStepExecution(ctx, se))

	je.CurrentStepName = "LoadTrips"
	je.MarkAsFailed(errors.New("transform failed"))
	require.NoError(t, repo.UpdateJobExecution(ctx, je))

	found, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, found.Status)
	assert.Equal(t, "2025-01", found.Parameters["period"])
	assert.Equal(t, model.FailureList{"transform failed"}, found.Failures)
	assert.Equal(t, "LoadTrips", found.CurrentStepName)
	require.NotNil(t, found.EndTime)
	require.Len(t, found.StepExecutions, 1)
	assert.Equal(t, int64(42), found.StepExecutions[0].WriteCount)
	assert.Equal(t, int64(7), found.StepExecutions[0].DeleteCount)
	assert.Same(t, found, found.StepExecutions[0].JobExecution)

	step, err := repo.FindStepExecutionByID(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, step.ExitStatus)
}

func TestSQLJobRepositoryFindRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, true)

	base := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	for i, p := range []string{"2025-01", "2025-02", "2025-03"} {
		je := model.NewJobExecution("monthlyPipeline", model.JobParameters{"period": p})
		je.StartTime = base.AddDate(0, i, 0)
		require.NoError(t, repo.SaveJobExecution(ctx, je))
	}
	other := model.NewJobExecution("backfill", model.NewJobParameters())
	require.NoError(t, repo.SaveJobExecution(ctx, other))

	recent, err := repo.FindRecentJobExecutions(ctx, "monthlyPipeline", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2025-03", recent[0].Parameters["period"])
	assert.Equal(t, "2025-02", recent[1].Parameters["period"])
}

func TestSQLJobRepositoryWithoutSchema(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, false)

	je := model.NewJobExecution("monthlyPipeline", model.NewJobParameters())
	assert.NoError(t, repo.SaveJobExecution(ctx, je), "history is skipped before migration")

	_, err := repo.FindJobExecutionByID(ctx, je.ID)
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)

	recent, err := repo.FindRecentJobExecutions(ctx, "monthlyPipeline", 5)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
