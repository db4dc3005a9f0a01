// Package app assembles the pipeline components in an fx container and runs
// one command against them.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/citibike/internal/loader"
	"github.com/tigerroll/citibike/internal/pipeline"
	"github.com/tigerroll/citibike/internal/scheduler"
	"github.com/tigerroll/citibike/internal/source/archive"
	"github.com/tigerroll/citibike/internal/staging"
	"github.com/tigerroll/citibike/internal/transform"
	"github.com/tigerroll/citibike/internal/warehouse"
	"github.com/tigerroll/citibike/internal/weather"
	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm/sqlite"
	storage "github.com/tigerroll/citibike/pkg/batch/adapter/storage"
	"github.com/tigerroll/citibike/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/citibike/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/citibike/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	"github.com/tigerroll/citibike/pkg/batch/core/job/runner"
	infraMetrics "github.com/tigerroll/citibike/pkg/batch/infrastructure/metrics"
	sqlrepo "github.com/tigerroll/citibike/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/citibike/pkg/batch/listener"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// DBAdaptersEnv selects the database providers to register, e.g. "sqlite,postgres".
const DBAdaptersEnv = "CITIBIKE_DB_ADAPTERS"

// dbModules maps adapter names to their provider modules.
var dbModules = map[string]fx.Option{
	"sqlite":   sqlite.Module,
	"postgres": postgres.Module,
	"mysql":    mysql.Module,
}

// Options describe one invocation.
type Options struct {
	EnvFile  string
	Config   config.EmbeddedConfig
	Pipeline pipeline.Options
	// SkipMigrate leaves the schema alone at startup even when warehouse.auto_migrate is set.
	SkipMigrate bool
}

// Components are the values a command can use.
type Components struct {
	fx.In
	Cfg       *config.Config
	Pipeline  *pipeline.Pipeline
	Explorer  usecase.JobExplorer
	Scheduler *scheduler.Scheduler
	Resolver  database.DBConnectionResolver
	Inspector warehouse.Inspector
}

// Action is the work of one command. It runs once the container has started.
type Action func(ctx context.Context, c Components) error

// dbProviderOptions registers the providers named by CITIBIKE_DB_ADAPTERS,
// or all of them when it is unset.
func dbProviderOptions() []fx.Option {
	names := os.Getenv(DBAdaptersEnv)
	if names == "" {
		names = "sqlite,postgres,mysql"
	}
	var options []fx.Option
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		m, ok := dbModules[name]
		if !ok {
			logger.Warnf("DB adapter '%s' is not supported. Skipping.", name)
			continue
		}
		logger.Debugf("DB adapter '%s' registered.", name)
		options = append(options, m)
	}
	return options
}

// Modules returns the full component graph for cfg.
func Modules(cfg *config.Config, opts Options) fx.Option {
	return fx.Options(
		fx.Supply(cfg, opts.Pipeline),
		logger.Module,
		infraMetrics.Module,

		gormadapter.Module,
		fx.Options(dbProviderOptions()...),
		storage.Module,
		local.Module,
		gcs.Module,

		sqlrepo.Module,
		runner.Module,
		usecase.Module,
		listener.Module,

		warehouse.Module,
		loader.Module,
		staging.Module,
		archive.Module,
		weather.Module,
		transform.Module,
		pipeline.Module,
		scheduler.Module,
	)
}

// Run loads the configuration, starts the container, runs action and shuts
// the container down. The returned error is the action's.
func Run(ctx context.Context, opts Options, action Action) error {
	cfg, err := config.LoadConfig(opts.EnvFile, opts.Config)
	if err != nil {
		return err
	}
	logger.SetLogLevel(cfg.Citibike.System.Logging.Level)

	var actionErr error
	done := make(chan struct{})
	app := fx.New(
		Modules(cfg, opts),
		fx.Invoke(func(lc fx.Lifecycle, resolver database.DBConnectionResolver) {
			if opts.SkipMigrate || !cfg.Citibike.Warehouse.AutoMigrate {
				return
			}
			lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
				return warehouse.EnsureSchema(ctx, resolver, cfg.Citibike.Warehouse.DBRef)
			}})
		}),
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, c Components, prom *infraMetrics.PrometheusRecorder) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						code := 0
						defer func() {
							if r := recover(); r != nil {
								logger.Errorf("Panic recovered in command: %v", r)
								actionErr = fmt.Errorf("panic: %v", r)
								code = 1
							}
							if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
								logger.Errorf("Failed to shut down application: %v", err)
							}
							close(done)
						}()
						actionErr = action(ctx, c)
						if actionErr != nil {
							code = 1
						}
						pushMetrics(cfg.Citibike.Observability, prom)
					}()
					return nil
				},
				OnStop: func(context.Context) error {
					logger.Debugf("Application is shutting down.")
					return nil
				},
			})
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(ctx, app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	sig := <-app.Wait()
	logger.Debugf("Application finished with exit code %d.", sig.ExitCode)
	<-done

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Application stop failed: %v", err)
	}
	return actionErr
}

func pushMetrics(cfg config.ObservabilityConfig, prom *infraMetrics.PrometheusRecorder) {
	if cfg.PushgatewayURL == "" {
		return
	}
	if err := prom.Push(cfg.PushgatewayURL, cfg.ServiceName); err != nil {
		logger.Warnf("Failed to push metrics to %s: %v", cfg.PushgatewayURL, err)
	}
}
