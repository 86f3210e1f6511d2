package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/project"
	"kiln/internal/projpath"
	"kiln/internal/workpool"
)

func newCookCommand(ctx *commandContext) *cobra.Command {
	var (
		force   bool
		fast    bool
		all     bool
		spec    string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "cook [path]",
		Short: "Cook tracked working files into their target representation",
		Long: "Cook runs every pass the enabled backends declare over the given\n" +
			"path (the whole project by default). Sources whose fingerprints\n" +
			"match the last successful cook are skipped unless --force is set.",
		Args: cobra.MaximumNArgs(1),
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

				poolSize := p.Config().Cook.Workers
				if cmd.Flags().Changed("workers") {
					poolSize = workers
				}
				var pool *workpool.Pool
				if poolSize > 1 {
					pool = workpool.New(poolSize)
					defer pool.Close()
				}

				enabled, err := p.EnabledSpecs(cmd.Context())
				if err != nil {
					return err
				}
				passes := project.MaxCookPasses(enabled)

				display := newTerminalProgress(cmd.OutOrStdout())
				defer display.Finish()

				opts := project.CookOptions{
					Recursive: true,
					Force:     force,
					Fast:      fast,
					Spec:      spec,
					Pool:      pool,
				}

				p.ClearBridgeCache()
				var total project.CookReport
				run := func(pass int) error {
					opts.Pass = pass
					report, err := p.CookPath(cmd.Context(), path, display.Reporter(), opts)
					if report != nil {
						total.Cooked += report.Cooked
						total.Skipped += report.Skipped
						total.Failed += report.Failed
					}
					return err
				}

				if all {
					err = run(project.PassAlways)
				} else {
					for pass := 0; pass < passes; pass++ {
						if err = run(pass); err != nil {
							break
						}
					}
				}

				display.Finish()
				fmt.Fprintf(cmd.OutOrStdout(), "Cooked %d, skipped %d, failed %d\n",
					total.Cooked, total.Skipped, total.Failed)
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Cook even when fingerprints are unchanged")
	cmd.Flags().BoolVar(&fast, "fast", false, "Ask backends for draft-quality output")
	cmd.Flags().BoolVar(&all, "all", false, "Run a single unconditional pass over every claimed file")
	cmd.Flags().StringVarP(&spec, "spec", "s", "", "Cook with only this enabled backend")
	cmd.Flags().IntVar(&workers, "workers", 0, "Override the configured cook worker count")
	return cmd
}
