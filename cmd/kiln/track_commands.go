package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kiln/internal/project"
	"kiln/internal/projpath"
)

// globMeta marks an argument as a doublestar pattern rather than a
// literal path.
func globMeta(arg string) bool {
	return strings.ContainsAny(arg, "*?[{")
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path|pattern>...",
		Short: "Track working files or directories for cooking",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				dir, err := ctx.workingDir()
				if err != nil {
					return err
				}

				var paths []projpath.Path
				for _, arg := range args {
					if globMeta(arg) {
						matches, err := projpath.Glob(p.Root(), arg)
						if err != nil {
							return err
						}
						if len(matches) == 0 {
							return fmt.Errorf("pattern %q matches nothing", arg)
						}
						paths = append(paths, matches...)
						continue
					}
					rel, err := projectPath(p, dir, arg)
					if err != nil {
						return err
					}
					paths = append(paths, rel)
				}

				if err := p.AddPaths(cmd.Context(), paths...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tracking %d path(s)\n", len(paths))
				return nil
			})
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Stop tracking working files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				paths, err := ctx.projectPaths(p, args)
				if err != nil {
					return err
				}
				if err := p.RemovePaths(cmd.Context(), recursive, paths...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d path(s)\n", len(paths))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Also remove tracked paths beneath each directory")
	return cmd
}
