// Package warehouse implements the analytical warehouse operations the
// loaders depend on: delete by date predicate, append-only bulk insert and count.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

const module = "warehouse"

// DefaultBatchSize is the number of rows per INSERT statement.
const DefaultBatchSize = 1000

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Predicate selects the rows of Table whose Column falls on a date in Dates.
// An empty Dates range selects every row.
type Predicate struct {
	Table  string
	Column string
	Dates  period.DateRange
}

// ForPeriod selects the rows of table whose column falls within p.
func ForPeriod(table, column string, p period.Period) Predicate {
	return Predicate{Table: table, Column: column, Dates: p.DateRange()}
}

// ForRange selects the rows of table whose column falls within r.
func ForRange(table, column string, r period.DateRange) Predicate {
	return Predicate{Table: table, Column: column, Dates: r}
}

// All selects every row of table.
func All(table string) Predicate {
	return Predicate{Table: table}
}

// Where renders the predicate as a half-open timestamp range, which is
// equivalent to DATE(column) BETWEEN start AND end on every supported dialect.
func (p Predicate) Where() (string, []interface{}, error) {
	if !identifier.MatchString(p.Table) {
		return "", nil, fmt.Errorf("invalid table name '%s'", p.Table)
	}
	if p.Column == "" {
		return "", nil, nil
	}
	if !identifier.MatchString(p.Column) {
		return "", nil, fmt.Errorf("invalid column name '%s'", p.Column)
	}
	from := p.Dates.Start.UTC()
	to := p.Dates.End.UTC().AddDate(0, 0, 1)
	return fmt.Sprintf("%s >= ? AND %s < ?", p.Column, p.Column), []interface{}{from, to}, nil
}

func (p Predicate) String() string {
	if p.Column == "" {
		return p.Table
	}
	return fmt.Sprintf("%s where DATE(%s) between %s and %s", p.Table, p.Column,
		p.Dates.Start.Format(period.DateLayout), p.Dates.End.Format(period.DateLayout))
}

// Warehouse is the set of operations the loaders perform.
type Warehouse interface {
	// Delete removes every row matching the predicate and returns the count removed.
	Delete(ctx context.Context, pred Predicate) (int64, error)
	// AppendRows inserts rows, a slice of entities, into table.
	AppendRows(ctx context.Context, table string, rows any) (int64, error)
	// Count returns the number of rows matching the predicate.
	Count(ctx context.Context, pred Predicate) (int64, error)
}

// Inspector reports the extent of a timestamp column.
type Inspector interface {
	Extent(ctx context.Context, table, column string) (min, max string, err error)
}

// GormWarehouse runs warehouse operations on a named database connection.
type GormWarehouse struct {
	resolver  database.DBConnectionResolver
	dbRef     string
	batchSize int
}

// NewGormWarehouse creates a warehouse on the connection named dbRef.
func NewGormWarehouse(resolver database.DBConnectionResolver, dbRef string, batchSize int) *GormWarehouse {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &GormWarehouse{resolver: resolver, dbRef: dbRef, batchSize: batchSize}
}

func (w *GormWarehouse) conn(ctx context.Context) (database.DBConnection, error) {
	conn, err := w.resolver.ResolveDBConnection(ctx, w.dbRef)
	if err != nil {
		return nil, exception.NewKindError(exception.KindWarehouseOperation, module, fmt.Sprintf("failed to resolve connection '%s'", w.dbRef), err)
	}
	return conn, nil
}

func (w *GormWarehouse) Delete(ctx context.Context, pred Predicate) (int64, error) {
	where, args, err := pred.Where()
	if err != nil {
		return 0, exception.NewKindError(exception.KindWarehouseOperation, module, "invalid delete predicate", err)
	}
	if where == "" {
		return 0, exception.NewKindError(exception.KindWarehouseOperation, module, fmt.Sprintf("refusing to delete all rows of %s", pred.Table), nil)
	}
	conn, err := w.conn(ctx)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := conn.ExecuteDeleteWhere(ctx, pred.Table, where, args...)
	if err != nil {
		return 0, exception.NewKindError(exception.KindWarehouseOperation, module, fmt.Sprintf("delete from %s failed", pred), err)
	}
	logger.Debugf("Deleted %d rows from %s in %s", n, pred, time.Since(start).Round(time.Millisecond))
	return n, nil
}

func (w *GormWarehouse) AppendRows(ctx context.Context, table string, rows any) (int64, error) {
	if !identifier.MatchString(table) {
		return 0, exception.NewKindError(exception.KindWarehouseOperation, module, fmt.Sprintf("invalid table name '%s'", table), nil)
	}
	conn, err := w.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := conn.ExecuteBatchInsert(ctx, table, rows, w.batchSize)
	if err != nil {
		return 0, exception.NewKindError(exception.KindWarehouseOperation, module, fmt.Sprintf("append to %s failed", table), err)
	}
	return n, nil
}

func (w *GormWarehouse) Count(ctx context.Context, pred Predicate) (int64, error) {
	where, args, err := pred.Where()
	if err != nil {
		return 0, exception.NewKindError(exception.KindWarehouseOperation, module, "invalid count predicate", err)
	}
	conn, err := w.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := conn.CountWhere(ctx, pred.Table, where, args...)
	if err != nil {
		return 0, exception.NewKindError(exception.KindWarehouseOperation, module, fmt.Sprintf("count of %s failed", pred), err)
	}
	return n, nil
}

// Extent returns MIN and MAX of column as the driver renders them. Both are empty for an empty table.
func (w *GormWarehouse) Extent(ctx context.Context, table, column string) (string, string, error) {
	if !identifier.MatchString(table) || !identifier.MatchString(column) {
		return "", "", exception.NewKindError(exception.KindWarehouseOperation, module, fmt.Sprintf("invalid extent target %s.%s", table, column), nil)
	}
	conn, err := w.conn(ctx)
	if err != nil {
		return "", "", err
	}
	var lo, hi sql.NullString
	if err := conn.ScanAggregate(ctx, &lo, table, fmt.Sprintf("MIN(%s)", column), ""); err != nil {
		return "", "", exception.NewKindError(exception.KindWarehouseOperation, module, fmt.Sprintf("MIN(%s) of %s failed", column, table), err)
	}
	if err := conn.ScanAggregate(ctx, &hi, table, fmt.Sprintf("MAX(%s)", column), ""); err != nil {
		return "", "", exception.NewKindError(exception.KindWarehouseOperation, module, fmt.Sprintf("MAX(%s) of %s failed", column, table), err)
	}
	return lo.String, hi.String, nil
}

var (
	_ Warehouse = (*GormWarehouse)(nil)
	_ Inspector = (*GormWarehouse)(nil)
)
