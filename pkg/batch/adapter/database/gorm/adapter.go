package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"

	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/citibike/pkg/batch/adapter/database/config"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// TableNamer represents a struct that has a TableName() string method.
type TableNamer interface {
	TableName() string
}

// applyTableName applies the table name to the GORM DB session if the model implements the TableNamer interface.
func applyTableName(db *gorm.DB, model interface{}) *gorm.DB {
	if namer, ok := model.(TableNamer); ok {
		return db.Table(namer.TableName())
	}

	val := reflect.ValueOf(model)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() == reflect.Slice || val.Kind() == reflect.Array {
		elemType := val.Type().Elem()
		if elemType.Kind() == reflect.Ptr {
			elemType = elemType.Elem()
		}
		if namer, ok := reflect.New(elemType).Interface().(TableNamer); ok {
			return db.Table(namer.TableName())
		}
	}

	// Let GORM infer the table name from the model.
	return db.Model(model)
}

// GormDBAdapter implements database.DBConnection.
type GormDBAdapter struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	cfg    dbconfig.DatabaseConfig
	dbType string
	name   string
}

// NewGormDBAdapter creates a new GormDBAdapter.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) (*GormDBAdapter, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	return &GormDBAdapter{
		db:     db,
		sqlDB:  sqlDB,
		cfg:    cfg,
		dbType: cfg.Type,
		name:   name,
	}, nil
}

// GetGormDB returns the underlying *gorm.DB instance.
func (a *GormDBAdapter) GetGormDB() *gorm.DB {
	return a.db
}

func (a *GormDBAdapter) Close() error {
	if a.sqlDB != nil {
		logger.Infof("Closing database connection '%s'...", a.name)
		return a.sqlDB.Close()
	}
	return nil
}

func (a *GormDBAdapter) Type() string {
	return a.dbType
}

func (a *GormDBAdapter) Name() string {
	return a.name
}

// Ping implements database.DBConnection.
func (a *GormDBAdapter) Ping(ctx context.Context) error {
	if a.sqlDB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	return a.sqlDB.PingContext(ctx)
}

// Config implements database.DBConnection.
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig {
	return a.cfg
}

// GetSQLDB implements database.DBConnection.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	if a.sqlDB == nil {
		return nil, fmt.Errorf("underlying sql.DB is nil")
	}
	return a.sqlDB, nil
}

// IsTableNotExistError recognises the missing-table errors of sqlite, postgres and mysql.
func (a *GormDBAdapter) IsTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) ||
		strings.Contains(msg, "error 1146") ||
		strings.Contains(msg, "doesn't exist")
}

// session returns a context-bound session that skips GORM's default transaction.
func (a *GormDBAdapter) session(ctx context.Context) *gorm.DB {
	return a.db.WithContext(ctx).Session(&gorm.Session{SkipDefaultTransaction: true})
}

// ExecuteQueryAdvanced implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error {
	db := applyTableName(a.db.WithContext(ctx), target)
	if query != nil {
		db = db.Where(query)
	}
	if orderBy != "" {
		db = db.Order(orderBy)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	return db.Find(target).Error
}

// CountWhere implements database.DBExecutor.
func (a *GormDBAdapter) CountWhere(ctx context.Context, tableName string, where string, args ...interface{}) (int64, error) {
	db := a.db.WithContext(ctx).Table(tableName)
	if where != "" {
		db = db.Where(where, args...)
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ScanAggregate implements database.DBExecutor.
func (a *GormDBAdapter) ScanAggregate(ctx context.Context, dest interface{}, tableName string, selectExpr string, where string, args ...interface{}) error {
	db := a.db.WithContext(ctx).Table(tableName).Select(selectExpr)
	if where != "" {
		db = db.Where(where, args...)
	}
	return db.Row().Scan(dest)
}

// ExecuteUpdate implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error) {
	db := a.session(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	var result *gorm.DB
	switch operation {
	case "CREATE":
		result = db.Create(model)
	case "UPDATE":
		// db.Model(model) uses the model's primary key as the WHERE condition.
		db = db.Model(model)
		if query != nil {
			db = db.Where(query)
		}
		result = db.Updates(model)
	case "DELETE":
		if query != nil {
			db = db.Where(query)
		}
		result = db.Delete(model)
	default:
		return 0, fmt.Errorf("unsupported update operation: %s", operation)
	}

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExecuteBatchInsert implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteBatchInsert(ctx context.Context, tableName string, rows interface{}, batchSize int) (int64, error) {
	val := reflect.ValueOf(rows)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Slice {
		return 0, fmt.Errorf("batch insert expects a slice, got %T", rows)
	}
	if val.Len() == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	db := a.session(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}
	result := db.CreateInBatches(rows, batchSize)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExecuteDeleteWhere implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteDeleteWhere(ctx context.Context, tableName string, where string, args ...interface{}) (int64, error) {
	if where == "" {
		return 0, fmt.Errorf("refusing to delete from %s without a condition", tableName)
	}
	sqlText := fmt.Sprintf("DELETE FROM %s WHERE %s", a.db.Statement.Quote(tableName), where)
	result := a.session(ctx).Exec(sqlText, args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

var _ database.DBConnection = (*GormDBAdapter)(nil)
