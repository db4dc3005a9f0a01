package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tigerroll/citibike/internal/app"
	"github.com/tigerroll/citibike/internal/pipeline"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
)

func newHistoryCmd(g *globalFlags, embedded config.EmbeddedConfig) *cobra.Command {
	var (
		limit int
		job   string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			return execute(cmd, g, app.Options{Config: embedded}, func(ctx context.Context, c app.Components) error {
				execs, err := c.Explorer.GetRecentJobExecutions(ctx, job, limit)
				if err != nil {
					return err
				}
				return printHistory(cmd.OutOrStdout(), execs)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")
	cmd.Flags().StringVar(&job, "job", pipeline.MonthlyJobName, "Job name ("+strings.Join([]string{pipeline.MonthlyJobName, pipeline.ReloadJobName, pipeline.BackfillJobName}, ", ")+")")
	return cmd
}

func printHistory(w io.Writer, execs []*model.JobExecution) error {
	if len(execs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tPERIOD\tSTATUS\tFAILED STEP\tSTEPS")
	for _, je := range execs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			je.StartTime.Local().Format(time.DateTime),
			targetOf(je.Parameters),
			je.Status,
			failedStep(je),
			stepCounts(je.StepExecutions),
		)
	}
	return tw.Flush()
}

// targetOf is the period of a monthly or reload run, or the range of a backfill.
func targetOf(params model.JobParameters) string {
	if p := params["period"]; p != "" {
		return p
	}
	if params["from"] != "" {
		return params["from"] + ".." + params["to"]
	}
	return "-"
}

func failedStep(je *model.JobExecution) string {
	for _, se := range je.StepExecutions {
		if se.Status == model.BatchStatusFailed {
			return se.StepName
		}
	}
	return "-"
}

// stepCounts renders the steps that moved rows as "Name(r/w/d)".
func stepCounts(steps []*model.StepExecution) string {
	var parts []string
	for _, se := range steps {
		if se.ReadCount == 0 && se.WriteCount == 0 && se.DeleteCount == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s(%d/%d/%d)", se.StepName, se.ReadCount, se.WriteCount, se.DeleteCount))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
