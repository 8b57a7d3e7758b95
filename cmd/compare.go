package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openshift-pipelines/index-info/internal/handlers"
)

var compareCmd = &cobra.Command{
	Use:   "compare <old-index-image> <new-index-image> <action>",
	Short: "Compare the upstream commits of a bundle between two index images",
	Long: `Compare resolves the same bundle in two index images, pairs their images and
prints, per upstream repository, one of:
- show-heads: the old and new upstream commit
- show-compare-urls: the GitHub compare API URL
- show-all-shas: every commit between the two
- show-all-commits: every commit between the two with its message

GITHUB_TOKEN is used to authenticate against the GitHub API when set.`,
	Args: cobra.MatchAll(cobra.ExactArgs(3), func(cmd *cobra.Command, args []string) error {
		for _, a := range handlers.CompareActions {
			if args[2] == string(a) {
				return nil
			}
		}
		return fmt.Errorf("invalid action %q, expected one of %v", args[2], handlers.CompareActions)
	}),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, _ := cmd.Flags().GetString("bundle")
		githubURL, _ := cmd.Flags().GetString("github-api-url")

		h, err := appFrom(cmd).compareHandler(githubURL)
		if err != nil {
			return err
		}

		req := handlers.CompareRequest{
			OldIndex: args[0],
			NewIndex: args[1],
			Action:   handlers.CompareAction(args[2]),
			Bundle:   bundle,
		}
		result, err := h.Compare(cmd.Context(), req)
		if err != nil {
			return err
		}
		return h.Write(cmd.Context(), cmd.OutOrStdout(), req, result)
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().StringP("bundle", "b", "", "Bundle name or name prefix present in both indexes, e.g. v1.17")
	compareCmd.Flags().String("github-api-url", "", "GitHub API base URL (default https://api.github.com/)")
	_ = compareCmd.MarkFlagRequired("bundle")
}
