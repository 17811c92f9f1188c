package main

import (
	"context"
	"fmt"
	"time"

	"github.com/farmsync/farmsync"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record statistics",
	Long: `Display per-entity record counts for the current farm.

Example:
  farmsync stats
  farmsync stats --health`,
	RunE: runStats,
}

var statsHealth bool

func init() {
	statsCmd.Flags().BoolVar(&statsHealth, "health", false, "Include health check")
}

// StatsResult for JSON output.
type StatsResult struct {
	*farmsync.StoreStats
	Health *farmsync.HealthStatus `json:"health,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	client, _, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	stats, err := client.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	var health *farmsync.HealthStatus
	if statsHealth {
		h := client.HealthCheck(ctx)
		health = &h
	}

	if outputJSON {
		return outputAsJSON(cmd, StatsResult{StoreStats: stats, Health: health})
	}

	outputStats(cmd, stats)
	if health != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		status := "healthy"
		if !health.Healthy {
			status = "unhealthy"
		}
		printField(out, "Health", "%s", status)
		printField(out, "Store OK", "%v", health.StoreOK)
		printField(out, "Remote", "%v", health.RemoteReachable)
		if health.Error != "" {
			printField(out, "Error", "%s", scrubSensitiveData(health.Error))
		}
	}
	return nil
}
