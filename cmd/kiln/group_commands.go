package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/project"
)

func newGroupCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage packaging groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <directory>",
		Short: "Mark a tracked directory as a packaging group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				paths, err := ctx.projectPaths(p, args)
				if err != nil {
					return err
				}
				if err := p.AddGroup(cmd.Context(), paths[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Group added: %s\n", paths[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <directory>",
		Short: "Remove a packaging group marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				paths, err := ctx.projectPaths(p, args)
				if err != nil {
					return err
				}
				if err := p.RemoveGroup(cmd.Context(), paths[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Group removed: %s\n", paths[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List packaging groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				groups, err := p.Groups(cmd.Context())
				if err != nil {
					return err
				}
				if len(groups) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No packaging groups")
					return nil
				}
				for _, g := range groups {
					fmt.Fprintln(cmd.OutOrStdout(), g)
				}
				return nil
			})
		},
	})

	return cmd
}
