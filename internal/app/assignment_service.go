package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"learning-platform/internal/domain"
)

const (
	// DefaultMaxUploadSize caps submission files at 50 MiB.
	DefaultMaxUploadSize int64 = 50 << 20
	MinGrade                   = 0
	MaxGrade                   = 5
)

var allowedUploadExtensions = map[string]struct{}{
	".xlsx": {},
	".xls":  {},
	".pdf":  {},
	".zip":  {},
}

// Upload is an incoming submission file.
type Upload struct {
	AssignmentID string
	Filename     string
	Size         int64
	Content      []byte
}

// GradeInput is the body of a grading request.
type GradeInput struct {
	Grade    *int    `json:"grade" validate:"required"`
	Feedback *string `json:"feedback"`
}

// AssignmentService handles uploads and grading.
type AssignmentService struct {
	curriculum  CurriculumRepository
	submissions SubmissionRepository
	files       FileStorage
	rating      *RatingUpdater
	backups     *BackupService
	progress    progressKeeper
	maxSize     int64
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// AssignmentServiceDeps groups the collaborators of AssignmentService.
type AssignmentServiceDeps struct {
	Curriculum  CurriculumRepository
	Submissions SubmissionRepository
	Files       FileStorage
	Rating      *RatingUpdater
	Backups     *BackupService
	Progress    ProgressStore
	Locker      Locker
	MaxSize     int64
	Logger      *slog.Logger
}

func NewAssignmentService(deps AssignmentServiceDeps) *AssignmentService {
	maxSize := deps.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AssignmentService{
		curriculum:  deps.Curriculum,
		submissions: deps.Submissions,
		files:       deps.Files,
		rating:      deps.Rating,
		backups:     deps.Backups,
		progress:    progressKeeper{store: deps.Progress, locker: deps.Locker, now: time.Now},
		maxSize:     maxSize,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Submit stores the file and upserts the (user, assignment) submission.
// A re-upload replaces the file and puts it back to NEW; the last grade stays.
func (s *AssignmentService) Submit(ctx context.Context, userID string, up Upload) (domain.Submission, error) {
	if up.AssignmentID == "" {
		return domain.Submission{}, FieldErrors{"assignmentId": "is required"}
	}
	if up.Filename == "" || up.Size == 0 {
		return domain.Submission{}, FieldErrors{"file": "is required"}
	}
	ext := strings.ToLower(filepath.Ext(up.Filename))
	if _, ok := allowedUploadExtensions[ext]; !ok {
		return domain.Submission{}, FieldErrors{"file": "must be one of .xlsx, .xls, .pdf, .zip"}
	}
	if up.Size > s.maxSize {
		return domain.Submission{}, FieldErrors{"file": fmt.Sprintf("must be at most %d bytes", s.maxSize)}
	}

	assignment, err := s.curriculum.GetAssignment(ctx, up.AssignmentID)
	if err != nil {
		return domain.Submission{}, errors.Trace(err)
	}

	now := s.now().UTC()
	name := fmt.Sprintf("submission_%s_%s_%d%s", userID, assignment.ID, now.UnixMilli(), ext)
	url, err := s.files.Put(ctx, FolderSubmissions, name, up.Content)
	if err != nil {
		return domain.Submission{}, errors.Annotate(err, "store upload")
	}

	sub, replaced, err := s.submissions.UpsertSubmission(ctx, domain.Submission{
		ID:           s.newID(),
		UserID:       userID,
		ModuleID:     assignment.ModuleID,
		AssignmentID: assignment.ID,
		FileURL:      url,
		Status:       domain.SubmissionNew,
		SubmittedAt:  now,
	})
	if err != nil {
		return domain.Submission{}, errors.Trace(err)
	}
	s.logger.Info("assignment submitted",
		slog.String("user_id", userID),
		slog.String("assignment_id", assignment.ID),
		slog.Bool("replaced", replaced),
	)

	if err := s.mirror(ctx, sub); err != nil {
		s.logger.Warn("progress not updated after submission",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	s.backups.ScheduleCurrent(ctx)
	return sub, nil
}

// Mine lists the caller's submissions.
func (s *AssignmentService) Mine(ctx context.Context, userID string) ([]domain.Submission, error) {
	subs, err := s.submissions.ListUserSubmissions(ctx, userID)
	return subs, errors.Trace(err)
}

// MineFor returns the caller's submission for one assignment.
func (s *AssignmentService) MineFor(ctx context.Context, userID, assignmentID string) (domain.Submission, error) {
	sub, ok, err := s.submissions.FindSubmission(ctx, userID, assignmentID)
	if err != nil {
		return domain.Submission{}, errors.Trace(err)
	}
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, nil
}

// All lists every submission for review.
func (s *AssignmentService) All(ctx context.Context) ([]domain.Submission, error) {
	subs, err := s.submissions.ListAllSubmissions(ctx)
	return subs, errors.Trace(err)
}

// Grade marks a submission GRADED and moves the student's rating by the
// difference from the previous grade.
func (s *AssignmentService) Grade(ctx context.Context, submissionID string, in GradeInput) (domain.Submission, error) {
	if err := validateStruct(in); err != nil {
		return domain.Submission{}, err
	}
	if *in.Grade < MinGrade || *in.Grade > MaxGrade {
		return domain.Submission{}, FieldErrors{"grade": fmt.Sprintf("must be between %d and %d", MinGrade, MaxGrade)}
	}

	current, err := s.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return domain.Submission{}, errors.Trace(err)
	}
	graded, err := s.submissions.GradeSubmission(ctx, submissionID, *in.Grade, in.Feedback, s.now().UTC())
	if err != nil {
		return domain.Submission{}, errors.Trace(err)
	}

	s.rating.Apply(ctx, graded.UserID, GradeRatingDelta(*in.Grade, current.Grade), "grade")

	if err := s.mirror(ctx, graded); err != nil {
		s.logger.Warn("progress not updated after grading",
			slog.String("submission_id", submissionID),
			slog.String("error", err.Error()),
		)
	}
	s.backups.ScheduleCurrent(ctx)
	return graded, nil
}

// mirror copies the submission state into the module's progress entry.
func (s *AssignmentService) mirror(ctx context.Context, sub domain.Submission) error {
	moduleIDs, err := activeModuleIDs(ctx, s.curriculum)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = s.progress.update(ctx, sub.UserID, moduleIDs, func(p *domain.Progress) (bool, error) {
		entry := p.Module(sub.ModuleID)
		if entry == nil {
			p.Modules = append(p.Modules, domain.NewModuleProgress(sub.ModuleID))
			entry = &p.Modules[len(p.Modules)-1]
		}
		at := sub.SubmittedAt
		entry.Assignment = domain.AssignmentProgress{
			Submitted:   true,
			SubmittedAt: &at,
			FileURL:     sub.FileURL,
			Status:      sub.Status,
			Grade:       sub.Grade,
		}
		if sub.Feedback != nil {
			entry.Assignment.Feedback = *sub.Feedback
		}
		return true, nil
	})
	return err
}
