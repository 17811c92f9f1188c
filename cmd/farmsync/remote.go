package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmsync/farmsync"
	"github.com/farmsync/farmsync/internal/remote/pg"
	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage the remote database",
}

var remoteInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the remote tables on a Postgres server",
	Long: `Create the farm tables on the remote Postgres database if they do not exist.

Only the postgres backend is supported; hosted REST backends manage their
own schema.

Example:
  farmsync remote init --postgres-dsn postgres://farm@db/farm`,
	Args: cobra.NoArgs,
	RunE: runRemoteInit,
}

func init() {
	remoteCmd.AddCommand(remoteInitCmd)
}

func runRemoteInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Remote != farmsync.BackendPostgres {
		return errors.New("remote init requires a postgres remote: set FARMSYNC_POSTGRES_DSN")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	s, err := pg.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer s.Close()

	if err := s.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, map[string]bool{"initialized": true})
	}
	printSuccess(cmd.OutOrStdout(), "Remote schema ready")
	return nil
}
