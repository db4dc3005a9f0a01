package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
)

// NewResolverProvider builds the resolver and closes all connections when the application stops.
func NewResolverProvider(lc fx.Lifecycle, p ResolverParams) database.DBConnectionResolver {
	r := NewGormDBConnectionResolver(p)
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return r.CloseAll() }})
	return r
}

// Module exports the connection resolver. Concrete providers are added by the
// sqlite, postgres and mysql subpackages.
var Module = fx.Options(
	fx.Provide(NewResolverProvider),
)
