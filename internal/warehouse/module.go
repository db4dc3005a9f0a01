package warehouse

import (
	"go.uber.org/fx"

	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
)

// Params are the dependencies of the warehouse.
type Params struct {
	fx.In
	Cfg      *config.Config
	Resolver database.DBConnectionResolver
}

// NewWarehouse builds the warehouse on the configured connection.
func NewWarehouse(p Params) *GormWarehouse {
	return NewGormWarehouse(p.Resolver, p.Cfg.Citibike.Warehouse.DBRef, p.Cfg.Citibike.Warehouse.BatchSize)
}

// Module provides the warehouse as Warehouse and Inspector.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewWarehouse,
		fx.As(new(Warehouse)),
		fx.As(new(Inspector)),
	)),
)
