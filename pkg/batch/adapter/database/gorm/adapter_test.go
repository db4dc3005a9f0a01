package gorm_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/citibike/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm/sqlite"
)

type testRow struct {
	ID   int    `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name"`
}

func (testRow) TableName() string { return "test_rows" }

func newMockAdapter(t *testing.T) (*gormadapter.GormDBAdapter, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	a, err := gormadapter.NewGormDBAdapter(gdb, dbconfig.DatabaseConfig{Type: "mysql"}, "warehouse")
	require.NoError(t, err)
	return a, mock
}

func TestExecuteDeleteWhere(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `trips` WHERE ended_at >= ? AND ended_at < ?")).
		WithArgs("2025-01-01", "2025-02-01").
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := a.ExecuteDeleteWhere(context.Background(), "trips", "ended_at >= ? AND ended_at < ?", "2025-01-01", "2025-02-01")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteDeleteWhereRequiresCondition(t *testing.T) {
	a, mock := newMockAdapter(t)
	_, err := a.ExecuteDeleteWhere(context.Background(), "trips", "")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountWhereAndScanAggregate(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `weather` WHERE datetime >= ?")).
		WithArgs("2025-01-01").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(744))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MIN(datetime) FROM `weather`")).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow("2025-01-01 00:00:00"))

	n, err := a.CountWhere(context.Background(), "weather", "datetime >= ?", "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(744), n)

	var min sql.NullString
	require.NoError(t, a.ScanAggregate(context.Background(), &min, "weather", "MIN(datetime)", ""))
	assert.Equal(t, "2025-01-01 00:00:00", min.String)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteBatchInsertEdgeCases(t *testing.T) {
	a, mock := newMockAdapter(t)

	n, err := a.ExecuteBatchInsert(context.Background(), "test_rows", []testRow{}, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = a.ExecuteBatchInsert(context.Background(), "test_rows", testRow{ID: 1}, 10)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteUpdateRejectsUnknownOperation(t *testing.T) {
	a, _ := newMockAdapter(t)
	_, err := a.ExecuteUpdate(context.Background(), &testRow{}, "MERGE", "", nil)
	assert.ErrorContains(t, err, "unsupported update operation")
}

func TestIsTableNotExistError(t *testing.T) {
	a, _ := newMockAdapter(t)
	assert.True(t, a.IsTableNotExistError(errors.New("no such table: trips")))
	assert.True(t, a.IsTableNotExistError(errors.New(`ERROR: relation "trips" does not exist (SQLSTATE 42P01)`)))
	assert.True(t, a.IsTableNotExistError(errors.New("Error 1146 (42S02): Table 'citibike.trips' doesn't exist")))
	assert.False(t, a.IsTableNotExistError(errors.New("connection refused")))
	assert.False(t, a.IsTableNotExistError(nil))
}

func TestOpenSQLiteRoundTrip(t *testing.T) {
	gdb, err := gormadapter.Open(dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"}, "SILENT")
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&testRow{}))

	a, err := gormadapter.NewGormDBAdapter(gdb, dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"}, "warehouse")
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	n, err := a.ExecuteBatchInsert(ctx, "test_rows", []testRow{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}}, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var rows []testRow
	require.NoError(t, a.ExecuteQueryAdvanced(ctx, &rows, nil, "id desc", 2))
	require.Len(t, rows, 2)
	assert.Equal(t, 3, rows[0].ID)

	deleted, err := a.ExecuteDeleteWhere(ctx, "test_rows", "id >= ?", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := a.CountWhere(ctx, "test_rows", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = a.CountWhere(ctx, "missing_table", "")
	assert.True(t, a.IsTableNotExistError(err))
}

func TestOpenKeepsInMemorySQLiteBetweenStatements(t *testing.T) {
	cfg := dbconfig.DatabaseConfig{
		Type:     "sqlite",
		Database: ":memory:",
		Pool:     dbconfig.PoolConfig{MaxIdleConns: 0, ConnMaxLifetimeMinutes: 1},
	}
	gdb, err := gormadapter.Open(cfg, "SILENT")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	_, err = sqlDB.Exec("CREATE TABLE kept (id INTEGER)")
	require.NoError(t, err)
	_, err = sqlDB.Exec("INSERT INTO kept (id) VALUES (1)")
	require.NoError(t, err)

	var n int
	require.NoError(t, sqlDB.QueryRow("SELECT COUNT(*) FROM kept").Scan(&n))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, sqlDB.Stats().Idle)
}

func TestIsInMemorySQLite(t *testing.T) {
	assert.True(t, gormadapter.IsInMemorySQLite(":memory:"))
	assert.True(t, gormadapter.IsInMemorySQLite("file::memory:?cache=shared"))
	assert.True(t, gormadapter.IsInMemorySQLite("file:warehouse?mode=memory"))
	assert.False(t, gormadapter.IsInMemorySQLite("data/warehouse/citibike.db"))
}

func TestGetDialectorFactoryUnknownType(t *testing.T) {
	_, err := gormadapter.GetDialectorFactory("oracle")
	assert.Error(t, err)
}
