package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskpulse/taskpulse/internal/monitor"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Stream status-change events as they are detected",
	Long: `Feed subscribes to the server's live event stream over a websocket and
prints each status change as it arrives. The stream runs until interrupted.

Examples:
  taskpulse-cli feed
  taskpulse-cli -s http://pulse.internal:8080 feed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintln(os.Stderr, "streaming events (ctrl-c to stop)")
		err := client.StreamFeed(ctx, func(event monitor.ChangeEvent) {
			fmt.Printf("%s  %s: %q moved %s -> %s (owner %s, project %s)\n",
				event.DetectedAt.Format("15:04:05"), event.EntityID, event.EntityTitle,
				event.PreviousLabel, event.CurrentLabel, event.OwnerEmail, event.Project)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(feedCmd)
}
