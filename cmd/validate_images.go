package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openshift-pipelines/index-info/internal/handlers"
)

var validateImagesCmd = &cobra.Command{
	Use:   "validate-images <index-image-ref>",
	Short: "Check that every related image of a bundle can be found in its registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := appFrom(cmd).validateHandler().ValidateImages(cmd.Context(), handlers.InspectRequest{
			IndexImage: args[0],
			Selection:  selectionFrom(cmd),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, s := range result.Images {
			if s.Err != nil {
				fmt.Fprintf(out, "MISSING %s\n", s.Image)
				continue
			}
			fmt.Fprintf(out, "OK      %s\n", s.Image)
		}

		if err := result.Missing(); err != nil {
			return fmt.Errorf("bundle %s has missing images: %w", result.Bundle, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateImagesCmd)
	addSelectionFlags(validateImagesCmd)
}
