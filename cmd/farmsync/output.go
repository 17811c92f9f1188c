package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/farmsync/farmsync"
	"github.com/spf13/cobra"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError prints an error to w, ensuring no API keys are leaked.
func outputError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %s\n", scrubSensitiveData(err.Error()))
}

// scrubSensitiveData removes API keys from error messages.
func scrubSensitiveData(msg string) string {
	for _, key := range []string{cfgAPIKey, os.Getenv("FARMSYNC_API_KEY")} {
		if key != "" && strings.Contains(msg, key) {
			msg = strings.ReplaceAll(msg, key, "[REDACTED]")
		}
	}
	return msg
}

// kindLabels are the human names of the entity kinds.
var kindLabels = map[farmsync.EntityKind]string{
	farmsync.KindAnimal:          "Animals",
	farmsync.KindBreedingService: "Services",
	farmsync.KindDiagnostic:      "Diagnostics",
	farmsync.KindBirth:           "Births",
	farmsync.KindMilking:         "Milkings",
	farmsync.KindTreatment:       "Treatments",
	farmsync.KindDryOff:          "Dry-offs",
}

// SyncResult for JSON output.
type SyncResult struct {
	Upload     *farmsync.UploadReport   `json:"upload,omitempty"`
	Download   *farmsync.DownloadReport `json:"download,omitempty"`
	DurationMs int64                    `json:"duration_ms"`
}

// outputSync prints the reports of a sync command.
func outputSync(cmd *cobra.Command, up *farmsync.UploadReport, down *farmsync.DownloadReport, duration time.Duration) error {
	if outputJSON {
		return outputAsJSON(cmd, SyncResult{Upload: up, Download: down, DurationMs: duration.Milliseconds()})
	}

	out := cmd.OutOrStdout()
	if up != nil {
		if up.Success {
			printSuccess(out, "Uploaded %d records", up.TotalSynced)
		} else {
			printWarning(out, "Uploaded %d records, %d failed and stay pending", up.TotalSynced, up.TotalFailed)
		}
		var rows [][]string
		for _, kind := range farmsync.SyncOrder() {
			r := up.Details[kind]
			if r.Synced == 0 && r.Failed == 0 {
				continue
			}
			rows = append(rows, []string{kindLabels[kind], strconv.Itoa(r.Synced), strconv.Itoa(r.Failed)})
		}
		if len(rows) > 0 {
			fmt.Fprintln(out, renderTable([]string{"ENTITY", "SYNCED", "FAILED"}, rows))
		}
	}
	if down != nil {
		if down.Success {
			printSuccess(out, "Downloaded %d records", down.TotalDownloaded)
		} else {
			printWarning(out, "Downloaded %d records, %d failed", down.TotalDownloaded, down.TotalFailed)
		}
		var rows [][]string
		for _, kind := range farmsync.SyncOrder() {
			r := down.Details[kind]
			if r.Downloaded == 0 && r.Failed == 0 {
				continue
			}
			rows = append(rows, []string{kindLabels[kind], strconv.Itoa(r.Downloaded), strconv.Itoa(r.Failed)})
		}
		if len(rows) > 0 {
			fmt.Fprintln(out, renderTable([]string{"ENTITY", "DOWNLOADED", "FAILED"}, rows))
		}
	}
	printMuted(out, "took %s", duration.Round(time.Millisecond))
	return nil
}

// outputStats prints per-entity counts.
func outputStats(cmd *cobra.Command, stats *farmsync.StoreStats) {
	out := cmd.OutOrStdout()
	if stats.Path != "" {
		printField(out, "Database", "%s", stats.Path)
	}
	printField(out, "Pending sync", "%d", stats.Pending)
	if !stats.LastSync.IsZero() {
		printField(out, "Last sync", "%s (%s ago)",
			stats.LastSync.Format(time.RFC3339),
			time.Since(stats.LastSync).Round(time.Minute))
	} else {
		printField(out, "Last sync", "never")
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(stats.Entities))
	for _, kind := range farmsync.SyncOrder() {
		e := stats.Entities[kind]
		rows = append(rows, []string{kindLabels[kind], strconv.Itoa(e.Total), strconv.Itoa(e.Pending)})
	}
	fmt.Fprintln(out, renderTable([]string{"ENTITY", "TOTAL", "PENDING"}, rows))
}

// outputAnimals prints a list of animals.
func outputAnimals(cmd *cobra.Command, animals []farmsync.Animal) error {
	if outputJSON {
		if animals == nil {
			animals = []farmsync.Animal{}
		}
		return outputAsJSON(cmd, animals)
	}

	out := cmd.OutOrStdout()
	if len(animals) == 0 {
		printWarning(out, "No animals found.")
		printMuted(out, "Add one with: farmsync animals add <id-interno>")
		return nil
	}

	sort.Slice(animals, func(i, j int) bool { return animals[i].InternalID < animals[j].InternalID })
	rows := make([][]string, 0, len(animals))
	for _, a := range animals {
		rows = append(rows, []string{
			strconv.FormatInt(a.LocalID, 10),
			a.InternalID,
			a.Name,
			a.Sex,
			a.Status,
			string(a.SyncStatus),
		})
	}
	printInfo(out, "Animals (%d):", len(animals))
	fmt.Fprintln(out, renderTable([]string{"ID", "ID INTERNO", "NAME", "SEX", "STATUS", "SYNC"}, rows))
	return nil
}
