package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/citibike/internal/app"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
)

func newReloadCmd(g *globalFlags, embedded config.EmbeddedConfig) *cobra.Command {
	var (
		pf      periodFlags
		dataset string
	)
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Reload staged files into the warehouse",
		Long: `Replaces one month of warehouse rows with the files staged under the data
directory. Nothing is downloaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, _, err := pf.target(cmd.Flags())
			if err != nil {
				return err
			}
			return execute(cmd, g, app.Options{Config: embedded}, func(ctx context.Context, c app.Components) error {
				summary, err := c.Pipeline.Reload(ctx, target, dataset)
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), fmt.Sprintf("Reload complete for %s", summary.Period), summary)
				return nil
			})
		},
	}
	pf.register(cmd.Flags(), true)
	cmd.Flags().StringVar(&dataset, "dataset", "", "Reload only trips or weather")
	return cmd
}
