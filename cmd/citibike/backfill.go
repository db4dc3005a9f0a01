package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/citibike/internal/app"
	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/internal/pipeline"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
)

func newBackfillCmd(g *globalFlags, embedded config.EmbeddedConfig) *cobra.Command {
	var (
		from, to     string
		skipDownload bool
		tripsOnly    bool
		weatherOnly  bool
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Load a range of months",
		Long: `Loads every month from --from to --to inclusive. Trips are reloaded month
by month; months with no archive are skipped and reported. Weather for the
whole range is replaced in a single refresh.

The range defaults to backfill.from and backfill.to from the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, g, app.Options{Config: embedded}, func(ctx context.Context, c app.Components) error {
				opts, err := backfillOptions(c.Cfg.Citibike.Backfill, from, to)
				if err != nil {
					return err
				}
				opts.SkipDownload, opts.TripsOnly, opts.WeatherOnly = skipDownload, tripsOnly, weatherOnly
				summary, err := c.Pipeline.Backfill(ctx, opts)
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), fmt.Sprintf("Backfill complete for %s to %s", opts.From, opts.To), summary)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First month, YYYY-MM")
	cmd.Flags().StringVar(&to, "to", "", "Last month, YYYY-MM")
	cmd.Flags().BoolVar(&skipDownload, "skip-download", false, "Reload the files staged by earlier runs")
	cmd.Flags().BoolVar(&tripsOnly, "trips-only", false, "Only load trips")
	cmd.Flags().BoolVar(&weatherOnly, "weather-only", false, "Only load weather")
	cmd.MarkFlagsMutuallyExclusive("trips-only", "weather-only")
	return cmd
}

// backfillOptions resolves the range from the flags, falling back to the configured defaults.
func backfillOptions(defaults config.BackfillConfig, from, to string) (pipeline.BackfillOptions, error) {
	if from == "" {
		from = defaults.From
	}
	if to == "" {
		to = defaults.To
	}
	f, err := period.Parse(from)
	if err != nil {
		return pipeline.BackfillOptions{}, err
	}
	t, err := period.Parse(to)
	if err != nil {
		return pipeline.BackfillOptions{}, err
	}
	return pipeline.BackfillOptions{From: f, To: t}, nil
}
