package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"kiln/internal/dataspec"
	"kiln/internal/project"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "extract <archive>...",
		Short: "Extract packaged or imaged sources back into working files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				dir, err := ctx.workingDir()
				if err != nil {
					return err
				}

				display := newTerminalProgress(cmd.OutOrStdout())
				defer display.Finish()

				for _, arg := range args {
					src := arg
					if !filepath.IsAbs(src) {
						src = filepath.Join(dir, arg)
					}
					reports, err := p.Extract(cmd.Context(), dataspec.ExtractPassInfo{
						SrcPath: src,
						Force:   force,
					}, display.Reporter())
					display.Finish()
					if err != nil {
						return err
					}
					for _, report := range reports {
						printExtractReport(cmd.OutOrStdout(), report, 0)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing working files")
	return cmd
}

func printExtractReport(out io.Writer, report dataspec.ExtractReport, depth int) {
	indent := strings.Repeat("  ", depth)
	if report.Desc != "" {
		fmt.Fprintf(out, "%s%s (%s)\n", indent, report.Name, report.Desc)
	} else {
		fmt.Fprintf(out, "%s%s\n", indent, report.Name)
	}
	for _, child := range report.Children {
		printExtractReport(out, child, depth+1)
	}
}
