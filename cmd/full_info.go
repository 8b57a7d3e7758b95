package main

import (
	"github.com/spf13/cobra"

	"github.com/openshift-pipelines/index-info/internal/handlers"
	"github.com/openshift-pipelines/index-info/pkg/report"
)

var fullInfoCmd = &cobra.Command{
	Use:   "full-info <index-image-ref>",
	Short: "Print the bundle version and the commits of every related image as JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeDocument(cmd, args[0], true)
	},
}

var listImagesCmd = &cobra.Command{
	Use:   "list-images <index-image-ref>",
	Short: "Print the related images of a bundle as JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeDocument(cmd, args[0], false)
	},
}

func writeDocument(cmd *cobra.Command, indexImage string, showInfo bool) error {
	output, _ := cmd.Flags().GetString("output")

	result, err := appFrom(cmd).inspectHandler().Inspect(cmd.Context(), handlers.InspectRequest{
		IndexImage:   indexImage,
		Selection:    selectionFrom(cmd),
		SkipMetadata: !showInfo,
	})
	if err != nil {
		return err
	}

	out, err := result.Report.Encode(report.Format(output), showInfo)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func init() {
	for _, c := range []*cobra.Command{fullInfoCmd, listImagesCmd} {
		rootCmd.AddCommand(c)
		addSelectionFlags(c)
		c.Flags().StringP("output", "o", string(report.FormatJSON), "Output format: json or yaml")
	}
}
