package cli

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"learning-platform/internal/config"
	"learning-platform/internal/jobs"
	"learning-platform/internal/logging"
	transport "learning-platform/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP server and the backup scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, cfg.Log.Level)
	if cfg.Auth.JWTSecret == config.DefaultJWTSecret {
		logger.Warn("using the development JWT secret; set JWT_SECRET in production")
	}

	a, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := migrateDB(ctx, a.db, logger); err != nil {
		return err
	}

	scheduler, err := jobs.NewScheduler(a.services.Backups, jobs.Schedules{
		Snapshot: cfg.Backup.SnapshotSchedule,
		Cleanup:  cfg.Backup.CleanupSchedule,
		MaxAge:   cfg.BackupMaxAge(),
	}, logger)
	if err != nil {
		return errors.Trace(err)
	}
	scheduler.Start()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	api := transport.NewAPI(a.services, transport.Options{
		UploadsDir:    cfg.Uploads.Dir,
		MaxUploadSize: cfg.Uploads.MaxFileSize,
		Logger:        logger,
	})
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting learning platform", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			scheduler.Stop(context.Background())
			return errors.Annotate(err, "serve")
		}
	case <-ctx.Done():
		logger.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}
