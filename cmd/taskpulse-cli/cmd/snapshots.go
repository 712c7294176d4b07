package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var snapshotsJSON bool

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List the monitor's current status snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := client.Snapshots(cmd.Context())
		if err != nil {
			return err
		}
		if snapshotsJSON {
			return printJSON(list)
		}
		if list.Count == 0 {
			fmt.Println("no snapshots")
			return nil
		}
		for _, snap := range list.Snapshots {
			fmt.Printf("%s  %-20s %-12s checked %s\n",
				snap.EntityID, snap.Title, snap.RawLabel, snap.CheckedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.Flags().BoolVar(&snapshotsJSON, "json", false, "print the raw JSON result")
}
