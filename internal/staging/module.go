package staging

import (
	"go.uber.org/fx"

	storage "github.com/tigerroll/citibike/pkg/batch/adapter/storage"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
)

func newStager(cfg *config.Config) *Stager {
	return NewStager(cfg.Citibike.Pipeline.DataDir)
}

func newArchiver(cfg *config.Config, resolver storage.StorageConnectionResolver) (*Archiver, error) {
	return NewArchiver(cfg.Citibike.Staging, resolver)
}

// Module provides the Stager and the optional Archiver. The Archiver is nil when archiving is disabled.
var Module = fx.Options(
	fx.Provide(newStager),
	fx.Provide(newArchiver),
)
