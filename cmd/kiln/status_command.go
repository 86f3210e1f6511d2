package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"kiln/internal/cooklog"
	"kiln/internal/project"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent cook and package runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				runs, err := p.Journal().RecentRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet")
					return nil
				}

				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						run.StartedAt.Local().Format("2006-01-02 15:04:05"),
						run.Tool,
						runSpecLabel(run),
						run.Outcome,
						strconv.Itoa(run.Cooked),
						strconv.Itoa(run.Skipped),
						strconv.Itoa(run.Failed),
						runDuration(run),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Started", "Tool", "Spec", "Outcome", "Cooked", "Skipped", "Failed", "Duration"},
					rows,
					[]columnAlignment{
						alignLeft, alignLeft, alignLeft, alignLeft,
						alignRight, alignRight, alignRight, alignRight,
					},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	return cmd
}

func runSpecLabel(run *cooklog.Run) string {
	if run.Spec == "" {
		return "all"
	}
	return run.Spec
}

func runDuration(run *cooklog.Run) string {
	if run.FinishedAt == nil {
		return "running"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
