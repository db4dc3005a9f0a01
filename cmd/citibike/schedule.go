package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tigerroll/citibike/internal/app"
	"github.com/tigerroll/citibike/internal/pipeline"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
)

func newScheduleCmd(g *globalFlags, embedded config.EmbeddedConfig) *cobra.Command {
	var skipTransform bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the monthly pipeline on its cron schedule",
		Long: `Runs the monthly pipeline at schedule.cron in the configured timezone
until interrupted. Each run targets the month before its fire time. A run
that is still in progress when the next one fires causes that fire to be
skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := app.Options{Config: embedded, Pipeline: pipeline.Options{SkipTransform: skipTransform}}
			return execute(cmd, g, opts, func(ctx context.Context, c app.Components) error {
				return c.Scheduler.Run(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&skipTransform, "skip-transform", false, "Skip the dbt stages of scheduled runs")
	return cmd
}
