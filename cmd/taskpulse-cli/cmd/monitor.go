package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Control the status change monitor",
}

var monitorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitor state and tick statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client.MonitorStatus(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

var monitorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the polling loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client.StartMonitor(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

var monitorStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the polling loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client.StopMonitor(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

var monitorTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single read/diff/notify pass now",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client.Tick(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var monitorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all persisted status snapshots",
	Long: `Clear all persisted status snapshots. The next tick observes every
record fresh, so no change events fire for differences against the
cleared state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.ResetSnapshots(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("snapshots cleared")
		return nil
	},
}

var monitorTrackCmd = &cobra.Command{
	Use:   "track <collection-id>...",
	Short: "Replace the tracked collection set",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client.SetTracked(cmd.Context(), args)
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.AddCommand(monitorStatusCmd)
	monitorCmd.AddCommand(monitorStartCmd)
	monitorCmd.AddCommand(monitorStopCmd)
	monitorCmd.AddCommand(monitorTickCmd)
	monitorCmd.AddCommand(monitorResetCmd)
	monitorCmd.AddCommand(monitorTrackCmd)
}
