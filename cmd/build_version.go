package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openshift-pipelines/index-info/internal/handlers"
)

var buildVersionCmd = &cobra.Command{
	Use:   "build-version <index-image-ref>",
	Short: "Print the name and version of a bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := appFrom(cmd).inspectHandler().Bundle(cmd.Context(), handlers.InspectRequest{
			IndexImage: args[0],
			Selection:  selectionFrom(cmd),
		})
		if err != nil {
			return err
		}

		version := b.Version()
		if version == "" {
			version = "No version found"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Name: %s\nVersion: %s\n", b.Name(), version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildVersionCmd)
	addSelectionFlags(buildVersionCmd)
}
