package main

import (
	"context"
	"fmt"
	"time"

	"github.com/farmsync/farmsync"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync indicator",
	Long: `Show whether local records are synced, pending or waiting for a
connection.

Example:
  farmsync status
  farmsync status --json`,
	RunE: runStatus,
}

// StatusResult for JSON output.
type StatusResult struct {
	farmsync.Status
	Farm      string `json:"farm"`
	Connected bool   `json:"connected"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, cfg, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	current, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	connected := !cfg.IsOffline() && client.TestConnection(ctx) == nil
	status := current
	if cfg.Mode != farmsync.ModeDirect {
		status = farmsync.ProjectStatus(false, current.Pending, connected)
	}

	if outputJSON {
		return outputAsJSON(cmd, StatusResult{Status: status, Farm: cfg.Farm, Connected: connected})
	}

	out := cmd.OutOrStdout()
	switch status.State {
	case farmsync.StateSynced:
		printSuccess(out, "%s", status.Text)
	case farmsync.StateOffline:
		printWarning(out, "%s (%d pending)", status.Text, status.Pending)
	default:
		printInfo(out, "%s", status.Text)
	}
	printField(out, "Farm", "%s", cfg.Farm)
	if cfg.IsOffline() {
		printField(out, "Remote", "not configured")
	} else {
		printField(out, "Remote", "%s (reachable: %v)", cfg.Remote, connected)
	}
	return nil
}
