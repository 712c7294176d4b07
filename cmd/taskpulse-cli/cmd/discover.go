package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	discoverUser string
	discoverJSON bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover <root-id>",
	Short: "Crawl a workspace subtree and report its collections",
	Long: `Crawl the workspace under the given root node, list every reachable
collection, and, when --user is set, mark the collections and pages
that hold records belonging to that user.

Examples:
  taskpulse-cli discover 6f1e8f2a-root
  taskpulse-cli discover 6f1e8f2a-root --user dev@corp.io
  taskpulse-cli discover 6f1e8f2a-root --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client.Discover(cmd.Context(), args[0], discoverUser)
		if err != nil {
			return err
		}
		if discoverJSON {
			return printJSON(result)
		}

		fmt.Printf("workspace %s: %d collections, %d records, %d users",
			result.RootID, result.Totals.Collections, result.Totals.Records, result.Totals.Users)
		if result.SkippedPages > 0 {
			fmt.Printf(" (%d pages skipped)", result.SkippedPages)
		}
		fmt.Println()

		if result.UserEmail == "" {
			for _, col := range result.AllCollections {
				fmt.Printf("  %s  %s\n", col.ID, col.Title)
			}
			return nil
		}

		fmt.Printf("matches for %s:\n", result.UserEmail)
		for _, match := range result.OwnedCollections {
			fmt.Printf("  %s  %s (%d matching records)\n", match.Collection.ID, match.Collection.Title, match.MatchCount)
		}
		for _, page := range result.OwnedPages {
			fmt.Printf("  %s  %s (page)\n", page.ID, page.Title)
		}
		if len(result.OwnedCollections) == 0 && len(result.OwnedPages) == 0 {
			fmt.Println("  nothing found")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().StringVarP(&discoverUser, "user", "u", "", "report ownership matches for this email")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "print the raw JSON result")
}
