package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"kiln/internal/dataspec"
	"kiln/internal/project"
)

func newSpecCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Manage dataspec backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered backends and their enabled state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				enabled, err := p.EnabledSpecs(cmd.Context())
				if err != nil {
					return err
				}
				on := make(map[string]bool, len(enabled))
				for _, entry := range enabled {
					on[entry.Name] = true
				}

				rows := make([][]string, 0, len(dataspec.Entries()))
				for _, entry := range dataspec.Entries() {
					rows = append(rows, []string{
						entry.Name,
						yesNo(on[entry.Name]),
						strconv.Itoa(entry.NumCookPasses),
						entry.Desc,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Name", "Enabled", "Passes", "Description"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "enable <name>...",
		Short: "Enable backends for this project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				if err := p.EnableDataSpecs(cmd.Context(), args...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enabled %d backend(s)\n", len(args))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "disable <name>...",
		Short: "Disable backends for this project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				if err := p.DisableDataSpecs(cmd.Context(), args...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Disabled %d backend(s)\n", len(args))
				return nil
			})
		},
	})

	return cmd
}
