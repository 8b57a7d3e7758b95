package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openshift-pipelines/index-info/internal/handlers"
)

var rootCmd = &cobra.Command{
	Use:   "index-info [flags] <index-image-ref>",
	Short: "Show where the images of an OpenShift Pipelines operator bundle come from",
	Long: `index-info reads the file-based catalog of an OLM index image, lets you pick a
channel and a bundle, and prints the downstream and upstream commits of every
image the bundle relates to:
- images in the pipelines registry namespace are inspected for their vcs-ref
  label and the upstream HEAD baked into /kodata
- upstream commits are linked to the GitHub repository of the component
- everything else is listed without metadata`,
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		result, err := a.inspectHandler().Inspect(cmd.Context(), handlers.InspectRequest{
			IndexImage: args[0],
			Selection:  selectionFrom(cmd),
		})
		if err != nil {
			return err
		}
		return result.Report.WriteText(cmd.OutOrStdout())
	},
	SilenceErrors: true,
}

func init() {
	addPersistentFlags(rootCmd.PersistentFlags())
	addSelectionFlags(rootCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
