package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/dataspec"
	"kiln/internal/imageout"
	"kiln/internal/project"
	"kiln/internal/services"
)

func newImageCommand(ctx *commandContext) *cobra.Command {
	var spec string

	cmd := &cobra.Command{
		Use:   "image",
		Short: "Bundle packaged output into a compressed distributable image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(func(p *project.Project) error {
				level, err := imageout.ParseLevel(p.Config().Image.Compression)
				if err != nil {
					return err
				}

				var entries []*dataspec.Entry
				if spec != "" {
					entry, ok := dataspec.Lookup(spec)
					if !ok {
						return services.Wrap(services.ErrUnknownSpec, "cli", "image", spec, nil)
					}
					entries = []*dataspec.Entry{entry}
				} else {
					entries, err = p.EnabledSpecs(cmd.Context())
					if err != nil {
						return err
					}
					if len(entries) == 0 {
						return services.Wrap(services.ErrConfiguration, "cli", "image",
							"no dataspecs enabled (run 'kiln spec enable')", nil)
					}
				}

				display := newTerminalProgress(cmd.OutOrStdout())
				defer display.Finish()

				for _, entry := range entries {
					dir := p.PackagedDir(entry.Name)
					estimate, err := imageout.EstimateSize(dir)
					if err != nil {
						return err
					}
					out := p.ImageFile(entry.Name)
					manifest, err := imageout.Build(cmd.Context(), dir, out, level, display.Reporter())
					display.Finish()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entr%s (estimated %d bytes)\n",
						out, len(manifest.Entries), pluralY(len(manifest.Entries)), estimate)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&spec, "spec", "s", "", "Image only this backend's packaged output")
	return cmd
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
