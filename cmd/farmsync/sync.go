package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmsync/farmsync"
	"github.com/spf13/cobra"
)

const syncTimeout = 5 * time.Minute

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with the remote database",
	Long: `Upload pending local records and download remote changes.

Records that fail to upload stay pending and are retried on the next sync.

Example:
  farmsync sync           # Upload then download
  farmsync sync --push    # Upload pending records only
  farmsync sync --pull    # Download remote records only`,
	RunE: runSync,
}

var (
	syncPush bool
	syncPull bool
)

func init() {
	syncCmd.Flags().BoolVar(&syncPush, "push", false, "Upload pending records only")
	syncCmd.Flags().BoolVar(&syncPull, "pull", false, "Download remote records only")
}

func runSync(cmd *cobra.Command, args []string) error {
	client, cfg, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if cfg.IsOffline() {
		return errors.New("no remote configured: set FARMSYNC_URL or FARMSYNC_POSTGRES_DSN")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
	defer cancel()

	var (
		up   *farmsync.UploadReport
		down *farmsync.DownloadReport
	)
	start := time.Now()
	progress := cmd.ErrOrStderr()

	switch {
	case syncPush && !syncPull:
		err = runWithSpinner(progress, "Uploading pending records", func() error {
			var err error
			up, err = client.SyncPush(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}
	case syncPull && !syncPush:
		err = runWithSpinner(progress, "Downloading remote records", func() error {
			var err error
			down, err = client.SyncPull(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("pull: %w", err)
		}
	default:
		var report *farmsync.SyncReport
		err = runWithSpinner(progress, "Synchronizing", func() error {
			var err error
			report, err = client.Sync(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		up, down = report.Upload, report.Download
	}

	return outputSync(cmd, up, down, time.Since(start))
}
