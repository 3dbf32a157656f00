package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"learning-platform/internal/domain"
)

// DefaultBackupMaxAge is how long snapshot files are kept.
const DefaultBackupMaxAge = 30 * 24 * time.Hour

// BackupService dumps the relational store and every progress document.
type BackupService struct {
	users       UserRepository
	curriculum  CurriculumRepository
	results     QuizResultRepository
	submissions SubmissionRepository
	progress    ProgressStore
	sink        SnapshotSink
	effects     *Effects
	maxAge      time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// BackupServiceDeps groups the collaborators of BackupService.
type BackupServiceDeps struct {
	Users       UserRepository
	Curriculum  CurriculumRepository
	Results     QuizResultRepository
	Submissions SubmissionRepository
	Progress    ProgressStore
	Sink        SnapshotSink
	Effects     *Effects
	MaxAge      time.Duration
	Logger      *slog.Logger
}

func NewBackupService(deps BackupServiceDeps) *BackupService {
	maxAge := deps.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultBackupMaxAge
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupService{
		users:       deps.Users,
		curriculum:  deps.Curriculum,
		results:     deps.Results,
		submissions: deps.Submissions,
		progress:    deps.Progress,
		sink:        deps.Sink,
		effects:     deps.Effects,
		maxAge:      maxAge,
		logger:      logger,
		now:         time.Now,
	}
}

// Collect reads every table concurrently.
func (s *BackupService) Collect(ctx context.Context) (domain.BackupPayload, error) {
	payload := domain.BackupPayload{CreatedAt: s.now().UTC()}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		payload.Users, err = s.users.ListUsers(ctx)
		return errors.Annotate(err, "users")
	})
	g.Go(func() (err error) {
		payload.Modules, err = s.curriculum.ListModules(ctx, false)
		return errors.Annotate(err, "modules")
	})
	g.Go(func() (err error) {
		payload.Lessons, err = s.curriculum.ListAllLessons(ctx)
		return errors.Annotate(err, "lessons")
	})
	g.Go(func() (err error) {
		payload.Questions, err = s.curriculum.ListAllQuestions(ctx)
		return errors.Annotate(err, "questions")
	})
	g.Go(func() (err error) {
		payload.Assignments, err = s.curriculum.ListAllAssignments(ctx)
		return errors.Annotate(err, "assignments")
	})
	g.Go(func() (err error) {
		payload.Submissions, err = s.submissions.ListAllSubmissions(ctx)
		return errors.Annotate(err, "submissions")
	})
	g.Go(func() (err error) {
		payload.QuizResults, err = s.results.ListAllResults(ctx)
		return errors.Annotate(err, "quiz results")
	})
	g.Go(func() (err error) {
		payload.ProgressFiles, err = s.progress.All(ctx)
		return errors.Annotate(err, "progress")
	})

	if err := g.Wait(); err != nil {
		return domain.BackupPayload{}, errors.Annotate(err, "collect backup")
	}
	return payload, nil
}

// WriteCurrent overwrites the rolling current backup.
func (s *BackupService) WriteCurrent(ctx context.Context) (string, error) {
	payload, err := s.Collect(ctx)
	if err != nil {
		return "", errors.Trace(err)
	}
	path, err := s.sink.WriteCurrent(ctx, payload)
	return path, errors.Trace(err)
}

// WriteSnapshot writes a timestamped snapshot, refreshes current and prunes
// expired snapshots.
func (s *BackupService) WriteSnapshot(ctx context.Context) (string, error) {
	payload, err := s.Collect(ctx)
	if err != nil {
		return "", errors.Trace(err)
	}
	path, err := s.sink.WriteSnapshot(ctx, payload)
	if err != nil {
		return "", errors.Trace(err)
	}
	if _, err := s.sink.WriteCurrent(ctx, payload); err != nil {
		return "", errors.Trace(err)
	}
	if _, err := s.Cleanup(ctx, 0); err != nil {
		s.logger.Warn("backup cleanup failed", slog.String("error", err.Error()))
	}
	s.logger.Info("backup snapshot written", slog.String("path", path))
	return path, nil
}

// Cleanup removes snapshots older than maxAge; zero means the configured age.
func (s *BackupService) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = s.maxAge
	}
	removed, err := s.sink.Cleanup(ctx, maxAge)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if removed > 0 {
		s.logger.Info("old backups removed", slog.Int("count", removed))
	}
	return removed, nil
}

// Current returns the raw current backup document.
func (s *BackupService) Current(ctx context.Context) ([]byte, error) {
	raw, err := s.sink.ReadCurrent(ctx)
	return raw, errors.Trace(err)
}

// ScheduleCurrent refreshes current.json in the background.
func (s *BackupService) ScheduleCurrent(ctx context.Context) {
	if s == nil || s.effects == nil {
		return
	}
	s.effects.Go(ctx, "backup:current", func(ctx context.Context) error {
		_, err := s.WriteCurrent(ctx)
		return err
	})
}
