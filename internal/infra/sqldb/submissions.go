package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/juju/errors"
	"github.com/uptrace/bun"

	"learning-platform/internal/domain"
)

// UpsertSubmission keeps one row per (user, assignment). A re-upload keeps the
// row id and the last grade; only the file, timestamp and status change.
func (s *Store) UpsertSubmission(ctx context.Context, submission domain.Submission) (domain.Submission, bool, error) {
	var (
		stored   Submission
		replaced bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().Model(&stored).
			Where("user_id = ?", submission.UserID).
			Where("assignment_id = ?", submission.AssignmentID).
			Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			stored = Submission{
				ID: submission.ID, UserID: submission.UserID, ModuleID: submission.ModuleID,
				AssignmentID: submission.AssignmentID, FileURL: submission.FileURL,
				Status: string(domain.SubmissionNew), SubmittedAt: submission.SubmittedAt,
			}
			_, err = tx.NewInsert().Model(&stored).Exec(ctx)
			return errors.Annotate(err, "insert submission")
		case err != nil:
			return errors.Trace(err)
		}

		replaced = true
		stored.FileURL = submission.FileURL
		stored.SubmittedAt = submission.SubmittedAt
		stored.Status = string(domain.SubmissionNew)
		_, err = tx.NewUpdate().Model(&stored).
			Column("file_url", "submitted_at", "status").
			WherePK().
			Exec(ctx)
		return errors.Annotate(err, "update submission")
	})
	if err != nil {
		return domain.Submission{}, false, errors.Trace(err)
	}
	return stored.toDomain(), replaced, nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	var sub Submission
	if err := s.db.NewSelect().Model(&sub).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Submission{}, notFound(err, domain.ErrSubmissionNotFound)
	}
	return sub.toDomain(), nil
}

func (s *Store) FindSubmission(ctx context.Context, userID, assignmentID string) (domain.Submission, bool, error) {
	var sub Submission
	err := s.db.NewSelect().Model(&sub).
		Where("user_id = ?", userID).
		Where("assignment_id = ?", assignmentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, false, nil
	}
	if err != nil {
		return domain.Submission{}, false, errors.Trace(err)
	}
	return sub.toDomain(), true, nil
}

func (s *Store) ListUserSubmissions(ctx context.Context, userID string) ([]domain.Submission, error) {
	var rows []Submission
	if err := s.db.NewSelect().Model(&rows).Where("user_id = ?", userID).Order("submitted_at DESC").Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list submissions")
	}
	return mapSlice(rows, Submission.toDomain), nil
}

func (s *Store) ListAllSubmissions(ctx context.Context) ([]domain.Submission, error) {
	var rows []Submission
	if err := s.db.NewSelect().Model(&rows).Order("submitted_at DESC").Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list submissions")
	}
	return mapSlice(rows, Submission.toDomain), nil
}

func (s *Store) GradeSubmission(ctx context.Context, id string, grade int, feedback *string, gradedAt time.Time) (domain.Submission, error) {
	row := &Submission{
		ID:       id,
		Status:   string(domain.SubmissionGraded),
		Grade:    &grade,
		Feedback: feedback,
		GradedAt: &gradedAt,
	}
	res, err := s.db.NewUpdate().Model(row).
		Column("status", "grade", "feedback", "graded_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Submission{}, errors.Annotate(err, "grade submission")
	}
	if err := mustAffect(res, domain.ErrSubmissionNotFound); err != nil {
		return domain.Submission{}, err
	}
	return s.GetSubmission(ctx, id)
}
