package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"relaysync/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View watcher status",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("watcher not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result daemon.StatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		if len(result.Jobs) == 0 {
			fmt.Println("no active watches")
		} else {
			fmt.Printf("%-8s %-30s %-30s %-8s %-8s %-8s %s\n",
				"STATUS", "ROOT", "REMOTE", "SYNCED", "FAILED", "SKIPPED", "LAST SYNC")

			for _, snap := range result.Jobs {
				lastSync := "-"
				if snap.LastSync != nil {
					lastSync = snap.LastSync.Format("2006-01-02 15:04:05")
				}

				uptime := time.Since(snap.StartedAt).Round(time.Second)
				fmt.Printf("%-8s %-30s %-30s %-8d %-8d %-8d %s\n",
					snap.Status, snap.Root, snap.Remote, snap.Synced, snap.Failed, snap.Skipped, lastSync)
				fmt.Printf("         uptime: %s\n", uptime)
			}
		}

		if result.Stats != nil {
			fmt.Printf("\nhistory: %d total, %d success, %d failed\n",
				result.Stats.Total, result.Stats.Success, result.Stats.Failed)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
