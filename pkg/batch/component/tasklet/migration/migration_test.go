package migration_test

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/citibike/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/citibike/pkg/batch/component/tasklet/migration"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
)

type staticResolver struct {
	conn database.DBConnection
}

func (r staticResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	return r.conn, nil
}

var testMigrations = fstest.MapFS{
	"sqlite/000001_create_things.up.sql":   {Data: []byte("CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT);")},
	"sqlite/000001_create_things.down.sql": {Data: []byte("DROP TABLE things;")},
	"sqlite/000002_create_others.up.sql":   {Data: []byte("CREATE TABLE others (id INTEGER PRIMARY KEY);")},
	"sqlite/000002_create_others.down.sql": {Data: []byte("DROP TABLE others;")},
}

func newMemoryConn(t *testing.T) database.DBConnection {
	t.Helper()
	cfg := dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"}
	gdb, err := gormadapter.Open(cfg, "SILENT")
	require.NoError(t, err)
	conn, err := gormadapter.NewGormDBAdapter(gdb, cfg, "warehouse")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// finishes fails the test when fn does not return within 10 seconds.
func finishes(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("migration did not return")
	}
}

func TestMigrationTaskletUpTwiceOnMemoryDatabase(t *testing.T) {
	ctx := context.Background()
	conn := newMemoryConn(t)
	tasklet, err := migration.NewMigrationTasklet(staticResolver{conn}, testMigrations, "", "warehouse", "up")
	require.NoError(t, err)

	var first, second error
	finishes(t, func() {
		_, first = tasklet.Execute(ctx, nil)
		_, second = tasklet.Execute(ctx, nil)
	})
	require.NoError(t, first)
	require.NoError(t, second)

	n, err := conn.CountWhere(ctx, "others", "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMigrationTaskletFailedScriptLeavesDirtySchema(t *testing.T) {
	ctx := context.Background()
	conn := newMemoryConn(t)
	broken := fstest.MapFS{
		"sqlite/000001_create_things.up.sql":   {Data: []byte("CREATE TABLE things (id INTEGER PRIMARY KEY);")},
		"sqlite/000001_create_things.down.sql": {Data: []byte("DROP TABLE things;")},
		"sqlite/000002_broken.up.sql":          {Data: []byte("CREATE TABLE broken (;")},
		"sqlite/000002_broken.down.sql":        {Data: []byte("DROP TABLE broken;")},
	}
	tasklet, err := migration.NewMigrationTasklet(staticResolver{conn}, broken, "", "warehouse", "up")
	require.NoError(t, err)

	var first, second error
	finishes(t, func() {
		_, first = tasklet.Execute(ctx, nil)
		_, second = tasklet.Execute(ctx, nil)
	})
	require.Error(t, first)
	assert.True(t, exception.IsKind(first, exception.KindWarehouseOperation))
	require.Error(t, second)
	assert.ErrorContains(t, second, "Dirty database version 2")
}

func TestMigrationTaskletUpIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn := newMemoryConn(t)

	tasklet, err := migration.NewMigrationTasklet(staticResolver{conn}, testMigrations, "", "warehouse", "")
	require.NoError(t, err)

	se := model.NewStepExecution(model.NewJobExecution("migrate", model.NewJobParameters()), "Init")
	status, err := tasklet.Execute(ctx, se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, status)

	version, ok := se.ExecutionContext.GetInt64("schema_version")
	require.True(t, ok)
	assert.Equal(t, int64(2), version)

	n, err := conn.CountWhere(ctx, "things", "")
	require.NoError(t, err)
	assert.Zero(t, n)

	// A second run finds nothing to apply.
	status, err = tasklet.Execute(ctx, se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, status)
}

func TestMigrationTaskletDown(t *testing.T) {
	ctx := context.Background()
	conn := newMemoryConn(t)

	up, err := migration.NewMigrationTasklet(staticResolver{conn}, testMigrations, "", "warehouse", "up")
	require.NoError(t, err)
	_, err = up.Execute(ctx, nil)
	require.NoError(t, err)

	down, err := migration.NewMigrationTasklet(staticResolver{conn}, testMigrations, "", "warehouse", "down")
	require.NoError(t, err)
	_, err = down.Execute(ctx, nil)
	require.NoError(t, err)

	_, err = conn.CountWhere(ctx, "things", "")
	require.Error(t, err)
	assert.True(t, conn.IsTableNotExistError(err))
}

func TestMigrationTaskletMissingDirectory(t *testing.T) {
	conn := newMemoryConn(t)
	tasklet, err := migration.NewMigrationTasklet(staticResolver{conn}, fstest.MapFS{}, "", "warehouse", "up")
	require.NoError(t, err)

	status, err := tasklet.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, model.ExitStatusFailed, status)
	assert.True(t, exception.IsKind(err, exception.KindWarehouseOperation))
}

func TestNewMigrationTaskletValidatesArguments(t *testing.T) {
	_, err := migration.NewMigrationTasklet(staticResolver{}, testMigrations, "", "", "up")
	assert.True(t, exception.IsKind(err, exception.KindConfig))

	_, err = migration.NewMigrationTasklet(staticResolver{}, testMigrations, "", "warehouse", "sideways")
	assert.True(t, exception.IsKind(err, exception.KindConfig))
}
