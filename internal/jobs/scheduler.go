// Package jobs runs the periodic backup tasks.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/errors"
	"github.com/robfig/cron/v3"
)

const jobTimeout = 5 * time.Minute

// Backups is the part of app.BackupService the scheduler drives.
type Backups interface {
	WriteSnapshot(ctx context.Context) (string, error)
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// Schedules are standard five-field cron expressions evaluated in UTC.
type Schedules struct {
	Snapshot string
	Cleanup  string
	MaxAge   time.Duration
}

// Scheduler wraps a cron runner with the snapshot and cleanup jobs.
type Scheduler struct {
	cron    *cron.Cron
	backups Backups
	maxAge  time.Duration
	logger  *slog.Logger
}

func NewScheduler(backups Backups, schedules Schedules, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		backups: backups,
		maxAge:  schedules.MaxAge,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(schedules.Snapshot, s.runSnapshot); err != nil {
		return nil, errors.NewNotValid(err, "snapshot schedule "+schedules.Snapshot)
	}
	if _, err := s.cron.AddFunc(schedules.Cleanup, s.runCleanup); err != nil {
		return nil, errors.NewNotValid(err, "cleanup schedule "+schedules.Cleanup)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("backup job scheduled", slog.Time("next", e.Next))
	}
}

// Stop prevents new runs and waits for a running job or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("backup job still running at shutdown")
	}
}

// Entries exposes the cron entries, mainly for tests.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *Scheduler) runSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	path, err := s.backups.WriteSnapshot(ctx)
	if err != nil {
		s.logger.Error("scheduled snapshot failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("scheduled snapshot written", slog.String("path", path))
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	removed, err := s.backups.Cleanup(ctx, s.maxAge)
	if err != nil {
		s.logger.Error("scheduled cleanup failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("scheduled cleanup finished", slog.Int("removed", removed))
}
