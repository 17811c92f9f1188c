package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var photosCmd = &cobra.Command{
	Use:   "photos",
	Short: "Manage the local photo cache",
}

var photosCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove cached photos no animal refers to",
	Long: `Delete files in the farm's photo cache that no animal record refers to.

Example:
  farmsync photos cleanup`,
	Args: cobra.NoArgs,
	RunE: runPhotosCleanup,
}

func init() {
	photosCmd.AddCommand(photosCleanupCmd)
}

func runPhotosCleanup(cmd *cobra.Command, args []string) error {
	client, _, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()

	n, err := client.CleanupPhotos(cmd.Context())
	if err != nil {
		return fmt.Errorf("cleanup photos: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, map[string]int{"removed": n})
	}
	if n == 0 {
		printInfo(cmd.OutOrStdout(), "No orphaned photos.")
		return nil
	}
	printSuccess(cmd.OutOrStdout(), "Removed %d orphaned photos", n)
	return nil
}
