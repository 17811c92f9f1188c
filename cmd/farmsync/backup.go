package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/farmsync/farmsync"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the farm's records to a JSON file",
	Long: `Export every record of the current farm to a JSON backup file.

Event records refer to their animal by id_interno, so a backup can be
imported into another farm's database.

Examples:
  farmsync export -o backup.json
  farmsync --farm rancho-norte export -o norte.json`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import records from a JSON backup",
	Long: `Import records from a backup made with 'farmsync export'.

Imported records are pending and upload on the next sync.

Strategies:
  skip    - Keep existing records (default)
  replace - Overwrite existing records with the imported values

Examples:
  farmsync import -i backup.json
  farmsync import -i backup.json --strategy replace
  farmsync import -i backup.json --dry-run`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

var (
	exportOutputPath string
	importInputPath  string
	importStrategy   string
	importDryRun     bool
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "Output file path (required)")
	_ = exportCmd.MarkFlagRequired("output")

	importCmd.Flags().StringVarP(&importInputPath, "input", "i", "", "Input file path (required)")
	importCmd.Flags().StringVar(&importStrategy, "strategy", string(farmsync.ImportSkip), "Import strategy: skip, replace")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Preview import without making changes")
	_ = importCmd.MarkFlagRequired("input")
}

// ExportResult for JSON output.
type ExportResult struct {
	Farm     string `json:"farm"`
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	Duration string `json:"duration"`
}

func runExport(cmd *cobra.Command, args []string) error {
	client, cfg, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()
	s, err := requireStore(client)
	if err != nil {
		return err
	}

	start := time.Now()
	f, err := os.Create(exportOutputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := s.ExportJSON(cmd.Context(), cfg.Farm, f); err != nil {
		f.Close()
		os.Remove(exportOutputPath)
		return fmt.Errorf("export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	var size int64
	if info, err := os.Stat(exportOutputPath); err == nil {
		size = info.Size()
	}
	duration := time.Since(start).Round(time.Millisecond)

	if outputJSON {
		return outputAsJSON(cmd, ExportResult{
			Farm:     cfg.Farm,
			FilePath: exportOutputPath,
			FileSize: size,
			Duration: duration.String(),
		})
	}
	printSuccess(cmd.OutOrStdout(), "Exported farm '%s' to %s (%d bytes, %s)", cfg.Farm, exportOutputPath, size, duration)
	return nil
}

// ImportResultOutput for JSON output.
type ImportResultOutput struct {
	*farmsync.ImportResult
	Farm      string `json:"farm"`
	InputFile string `json:"input_file"`
	Strategy  string `json:"strategy"`
	DryRun    bool   `json:"dry_run"`
	Duration  string `json:"duration"`
}

func runImport(cmd *cobra.Command, args []string) error {
	strategy := farmsync.ImportStrategy(strings.ToLower(importStrategy))
	switch strategy {
	case farmsync.ImportSkip, farmsync.ImportReplace:
	default:
		return fmt.Errorf("invalid strategy %q: must be 'skip' or 'replace'", importStrategy)
	}

	f, err := os.Open(importInputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file not found: %s", importInputPath)
		}
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	client, cfg, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()
	s, err := requireStore(client)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !outputJSON {
		if importDryRun {
			printInfo(out, "Previewing import into farm '%s' from %s...", cfg.Farm, importInputPath)
		} else {
			printInfo(out, "Importing into farm '%s' from %s...", cfg.Farm, importInputPath)
		}
	}

	start := time.Now()
	result, err := s.ImportJSON(cmd.Context(), f, strategy, importDryRun)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	duration := time.Since(start).Round(time.Millisecond)

	if outputJSON {
		return outputAsJSON(cmd, ImportResultOutput{
			ImportResult: result,
			Farm:         cfg.Farm,
			InputFile:    importInputPath,
			Strategy:     string(strategy),
			DryRun:       importDryRun,
			Duration:     duration.String(),
		})
	}

	verb := ""
	if importDryRun {
		verb = "Would be "
	}
	printField(out, "Total", "%d", result.Total)
	printField(out, verb+"Created", "%d", result.Created)
	if strategy == farmsync.ImportSkip {
		printField(out, verb+"Skipped", "%d", result.Skipped)
	} else {
		printField(out, verb+"Replaced", "%d", result.Replaced)
	}
	printField(out, "Errors", "%d", len(result.Errors))

	if len(result.Errors) > 0 {
		fmt.Fprintln(out)
		printWarning(out, "Errors encountered:")
		const maxErrors = 10
		for i, msg := range result.Errors {
			if i >= maxErrors {
				fmt.Fprintf(out, "  ... and %d more errors\n", len(result.Errors)-maxErrors)
				break
			}
			printError(out, "%s", msg)
		}
	}

	fmt.Fprintln(out)
	if importDryRun {
		printMuted(out, "Dry-run complete. No changes made.")
	} else {
		printSuccess(out, "Import complete.")
	}
	return nil
}
