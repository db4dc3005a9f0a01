package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tigerroll/citibike/internal/app"
	"github.com/tigerroll/citibike/internal/pipeline"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
)

func newRunCmd(g *globalFlags, embedded config.EmbeddedConfig) *cobra.Command {
	var (
		pf            periodFlags
		skipTransform bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monthly pipeline",
		Long: `Runs the monthly pipeline for --year/--month, or for the month before
today in the configured timezone when neither is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, explicit, err := pf.target(cmd.Flags())
			if err != nil {
				return err
			}
			opts := app.Options{Config: embedded, Pipeline: pipeline.Options{SkipTransform: skipTransform}}
			return execute(cmd, g, opts, func(ctx context.Context, c app.Components) error {
				popts := pipeline.Options{SkipTransform: skipTransform || c.Cfg.Citibike.Pipeline.SkipTransform}
				var summary *pipeline.Summary
				var err error
				if explicit {
					summary, err = c.Pipeline.Run(ctx, target, popts)
				} else {
					summary, err = c.Pipeline.RunForReference(ctx, time.Now().In(c.Cfg.Location()), popts)
				}
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), fmt.Sprintf("Pipeline complete for %s", summary.Period), summary)
				return nil
			})
		},
	}
	pf.register(cmd.Flags(), false)
	cmd.Flags().BoolVar(&skipTransform, "skip-transform", false, "Skip the dbt run and test stages")
	return cmd
}

func printSummary(w io.Writer, title string, s *pipeline.Summary) {
	fmt.Fprintf(w, "\n========================================\n")
	fmt.Fprintf(w, "%s\n", title)
	fmt.Fprintf(w, "  trips:   deleted %d, loaded %d\n", s.TripsDeleted, s.TripsLoaded)
	fmt.Fprintf(w, "  weather: deleted %d, loaded %d\n", s.WeatherDeleted, s.WeatherLoaded)
	if s.TransformSkipped {
		fmt.Fprintf(w, "  transform: skipped\n")
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(w, "  months skipped: %v\n", s.Skipped)
	}
	fmt.Fprintf(w, "  elapsed: %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "========================================\n")
}
