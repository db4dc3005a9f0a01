package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/citibike/internal/app"
	"github.com/tigerroll/citibike/internal/warehouse"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
)

func newMigrateCmd(g *globalFlags, embedded config.EmbeddedConfig) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the warehouse migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			command := "up"
			if down {
				command = "down"
			}
			opts := app.Options{Config: embedded, SkipMigrate: true}
			return execute(cmd, g, opts, func(ctx context.Context, c app.Components) error {
				dbRef := c.Cfg.Citibike.Warehouse.DBRef
				t, err := warehouse.NewMigrationTasklet(c.Resolver, dbRef, command)
				if err != nil {
					return err
				}
				if _, err := t.Execute(ctx, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migrations %s applied to %s\n", command, dbRef)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Roll back every migration")
	return cmd
}
