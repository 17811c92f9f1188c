package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/farmsync/farmsync"
	"github.com/farmsync/farmsync/internal/store"
	"github.com/spf13/cobra"
)

var farmsCmd = &cobra.Command{
	Use:   "farms",
	Short: "Manage farm profiles",
	Long: `Each farm keeps its own local database and photo cache under
~/.farmsync/farms/<farm>. Select a farm with --farm or FARMSYNC_FARM.`,
}

var farmsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local farms",
	Long: `List the farms that have a local database, with record counts.

Example:
  farmsync farms list
  farmsync farms list --json`,
	Args: cobra.NoArgs,
	RunE: runFarmsList,
}

func init() {
	farmsCmd.AddCommand(farmsListCmd)
}

// FarmListEntry represents a farm in list output.
type FarmListEntry struct {
	ID       string    `json:"id"`
	Animals  int       `json:"animals"`
	Records  int       `json:"records"`
	Pending  int       `json:"pending"`
	LastSync time.Time `json:"last_sync,omitempty"`
}

// FarmListResult for JSON output.
type FarmListResult struct {
	Farms []FarmListEntry `json:"farms"`
	Total int             `json:"total"`
}

func runFarmsList(cmd *cobra.Command, args []string) error {
	ids, err := store.ListFarms(store.DefaultRoot())
	if err != nil {
		return fmt.Errorf("list farms: %w", err)
	}

	farms := make([]FarmListEntry, 0, len(ids))
	for _, id := range ids {
		entry := FarmListEntry{ID: id}
		s, err := farmsync.Open(store.FarmDBPath(id))
		if err != nil {
			printWarning(cmd.ErrOrStderr(), "Skipping %s: %v", id, err)
			continue
		}
		stats, err := s.Stats(cmd.Context())
		s.Close()
		if err != nil {
			printWarning(cmd.ErrOrStderr(), "Skipping %s: %v", id, err)
			continue
		}
		entry.Animals = stats.Entities[farmsync.KindAnimal].Total
		for _, e := range stats.Entities {
			entry.Records += e.Total
		}
		entry.Pending = stats.Pending
		entry.LastSync = stats.LastSync
		farms = append(farms, entry)
	}

	if outputJSON {
		return outputAsJSON(cmd, FarmListResult{Farms: farms, Total: len(farms)})
	}

	out := cmd.OutOrStdout()
	if len(farms) == 0 {
		printWarning(out, "No farms found.")
		printMuted(out, "A farm is created the first time it is used: farmsync --farm <id> stats")
		return nil
	}

	rows := make([][]string, 0, len(farms))
	for _, f := range farms {
		last := "never"
		if !f.LastSync.IsZero() {
			last = f.LastSync.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{f.ID, strconv.Itoa(f.Animals), strconv.Itoa(f.Records), strconv.Itoa(f.Pending), last})
	}
	printInfo(out, "Farms (%d):", len(farms))
	fmt.Fprintln(out, renderTable([]string{"FARM", "ANIMALS", "RECORDS", "PENDING", "LAST SYNC"}, rows))
	return nil
}
