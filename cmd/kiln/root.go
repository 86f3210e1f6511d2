package main

import (
	"github.com/spf13/cobra"

	"kiln/internal/dataspec"
	"kiln/internal/specs/rawspec"
)

func newRootCommand() *cobra.Command {
	if _, ok := dataspec.Lookup(rawspec.SpecName); !ok {
		rawspec.MustRegister()
	}

	var configFlag string
	var dirFlag string

	ctx := newCommandContext(&configFlag, &dirFlag)

	rootCmd := &cobra.Command{
		Use:           "kiln",
		Short:         "Asset cooking and packaging pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&dirFlag, "directory", "C", "", "Run as if started in this directory")

	rootCmd.AddCommand(newInitCommand(ctx))
	rootCmd.AddCommand(newAddCommand(ctx))
	rootCmd.AddCommand(newRemoveCommand(ctx))
	rootCmd.AddCommand(newGroupCommand(ctx))
	rootCmd.AddCommand(newSpecCommand(ctx))
	rootCmd.AddCommand(newCookCommand(ctx))
	rootCmd.AddCommand(newPackageCommand(ctx))
	rootCmd.AddCommand(newImageCommand(ctx))
	rootCmd.AddCommand(newCleanCommand(ctx))
	rootCmd.AddCommand(newExtractCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
