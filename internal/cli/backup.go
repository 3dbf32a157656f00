package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"learning-platform/internal/config"
	"learning-platform/internal/logging"
)

// NewBackupCmd groups the manual backup tasks.
func NewBackupCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write or prune backups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "snapshot",
		Short: "Write a timestamped snapshot and refresh current.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd.Context(), *configPath, func(ctx context.Context, a *application) error {
				path, err := a.services.Backups.WriteSnapshot(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	})

	var days int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove snapshots older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd.Context(), *configPath, func(ctx context.Context, a *application) error {
				removed, err := a.services.Backups.Cleanup(ctx, time.Duration(days)*24*time.Hour)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d snapshot(s)\n", removed)
				return nil
			})
		},
	}
	cleanup.Flags().IntVar(&days, "days", 0, "max snapshot age in days (default backup.maxAgeDays)")
	cmd.AddCommand(cleanup)
	return cmd
}

// withApplication loads the config, wires the services and runs fn.
func withApplication(ctx context.Context, configPath string, fn func(ctx context.Context, a *application) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, cfg.Log.Level)
	a, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := migrateDB(ctx, a.db, logger); err != nil {
		return err
	}
	return fn(ctx, a)
}
