package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tigerroll/citibike/internal/app"
	"github.com/tigerroll/citibike/internal/domain/period"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	envFile string
}

// periodFlags select a target month. Both or neither must be set.
type periodFlags struct {
	year  int
	month int
}

func (f *periodFlags) register(fs *pflag.FlagSet, required bool) {
	fs.IntVar(&f.year, "year", 0, "Year of the target month")
	fs.IntVar(&f.month, "month", 0, "Month of the target (1-12)")
	if required {
		_ = cobra.MarkFlagRequired(fs, "year")
		_ = cobra.MarkFlagRequired(fs, "month")
	}
}

// target returns the selected period. ok is false when neither flag is set.
func (f *periodFlags) target(fs *pflag.FlagSet) (p period.Period, ok bool, err error) {
	yearSet, monthSet := fs.Changed("year"), fs.Changed("month")
	if !yearSet && !monthSet {
		return period.Period{}, false, nil
	}
	if yearSet != monthSet {
		return period.Period{}, false, errors.New("--year and --month must be given together")
	}
	p, err = period.New(f.year, f.month)
	if err != nil {
		return period.Period{}, false, err
	}
	return p, true, nil
}

func newRootCmd(embedded config.EmbeddedConfig) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "citibike",
		Short: "Monthly CitiBike trips and weather pipeline",
		Long: `Loads the monthly CitiBike trip archive and hourly weather for New York
into the warehouse, then runs the dbt transformations.

Each run targets one calendar month. Loads are idempotent: the month's rows
are deleted before the new rows are appended.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.envFile, "env-file", envOr("ENV_FILE_PATH", ".env"), "Path of a .env file to load before the configuration")

	root.AddCommand(
		newRunCmd(g, embedded),
		newBackfillCmd(g, embedded),
		newReloadCmd(g, embedded),
		newScheduleCmd(g, embedded),
		newMigrateCmd(g, embedded),
		newHistoryCmd(g, embedded),
	)
	return root
}

// execute runs action inside the application container. SIGINT and SIGTERM
// cancel the action's context.
func execute(cmd *cobra.Command, g *globalFlags, opts app.Options, action app.Action) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	opts.EnvFile = g.envFile
	return app.Run(ctx, opts, action)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
