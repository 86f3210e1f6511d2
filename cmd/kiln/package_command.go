package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/project"
	"kiln/internal/projpath"
	"kiln/internal/workpool"
)

func newPackageCommand(ctx *commandContext) *cobra.Command {
	var (
		fast bool
		spec string
	)

	cmd := &cobra.Command{
		Use:   "package [path]",
		Short: "Assemble cooked objects into distributable packages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				path := projpath.Root
				if len(args) == 1 {
					paths, err := ctx.projectPaths(p, args)
					if err != nil {
						return err
					}
					path = paths[0]
				}

				var pool *workpool.Pool
				if workers := p.Config().Cook.Workers; workers > 1 {
					pool = workpool.New(workers)
					defer pool.Close()
				}

				display := newTerminalProgress(cmd.OutOrStdout())
				defer display.Finish()

				err := p.PackagePath(cmd.Context(), path, display.Reporter(), project.PackageOptions{
					Fast: fast,
					Spec: spec,
					Pool: pool,
				})
				display.Finish()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Package(s) written to out/")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&fast, "fast", false, "Package draft-quality output")
	cmd.Flags().StringVarP(&spec, "spec", "s", "", "Package with only this enabled backend")
	return cmd
}

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var spec string

	cmd := &cobra.Command{
		Use:   "clean [path]",
		Short: "Remove cooked outputs so the next cook rebuilds them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				path := projpath.Root
				if len(args) == 1 {
					paths, err := ctx.projectPaths(p, args)
					if err != nil {
						return err
					}
					path = paths[0]
				}
				if err := p.CleanPath(cmd.Context(), path, spec); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleaned cooked output under %s\n", displayPath(path))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&spec, "spec", "s", "", "Clean only this backend's cooked output")
	return cmd
}

func displayPath(path projpath.Path) string {
	if path.IsRoot() {
		return "."
	}
	return string(path)
}
