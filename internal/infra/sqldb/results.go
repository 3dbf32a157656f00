package sqldb

import (
	"context"
	"database/sql"

	"github.com/juju/errors"
	"github.com/uptrace/bun"

	"learning-platform/internal/domain"
)

func (s *Store) CreateResult(ctx context.Context, result domain.QuizResult) error {
	_, err := s.db.NewInsert().Model(&QuizResult{
		ID: result.ID, UserID: result.UserID, ModuleID: result.ModuleID,
		ScorePercent: result.ScorePercent, AttemptID: result.AttemptID,
		Answers: result.Answers, SubmittedAt: result.SubmittedAt,
	}).Exec(ctx)
	return errors.Annotate(err, "insert quiz result")
}

// BestScore reads MAX(score_percent), the aggregate the gate and rating rely on.
func (s *Store) BestScore(ctx context.Context, userID, moduleID string) (int, bool, error) {
	var best sql.NullInt64
	err := s.db.NewSelect().Model((*QuizResult)(nil)).
		ColumnExpr("MAX(score_percent)").
		Where("user_id = ?", userID).
		Where("module_id = ?", moduleID).
		Scan(ctx, &best)
	if err != nil {
		return 0, false, errors.Annotate(err, "best score")
	}
	return int(best.Int64), best.Valid, nil
}

func (s *Store) BestScores(ctx context.Context, userID string) (map[string]int, error) {
	var rows []bestScoreRow
	err := s.db.NewSelect().Model((*QuizResult)(nil)).
		ColumnExpr("module_id, MAX(score_percent) AS best").
		Where("user_id = ?", userID).
		Group("module_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, errors.Annotate(err, "best scores")
	}
	bests := make(map[string]int, len(rows))
	for _, r := range rows {
		bests[r.ModuleID] = r.Best
	}
	return bests, nil
}

type bestScoreRow struct {
	ModuleID string `bun:"module_id"`
	Best     int    `bun:"best"`
}

func (s *Store) LatestResult(ctx context.Context, userID, moduleID string) (domain.QuizResult, bool, error) {
	var r QuizResult
	err := s.resultsOf(userID, moduleID, &r).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizResult{}, false, nil
	}
	if err != nil {
		return domain.QuizResult{}, false, errors.Annotate(err, "latest result")
	}
	return r.toDomain(), true, nil
}

func (s *Store) ListResults(ctx context.Context, userID, moduleID string) ([]domain.QuizResult, error) {
	var rows []QuizResult
	if err := s.resultsOf(userID, moduleID, &rows).Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list results")
	}
	return mapSlice(rows, QuizResult.toDomain), nil
}

func (s *Store) ListAllResults(ctx context.Context) ([]domain.QuizResult, error) {
	var rows []QuizResult
	if err := s.db.NewSelect().Model(&rows).Order("submitted_at ASC").Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list results")
	}
	return mapSlice(rows, QuizResult.toDomain), nil
}

// resultsOf orders newest first; attempt_id breaks ties within one timestamp.
func (s *Store) resultsOf(userID, moduleID string, model any) *bun.SelectQuery {
	return s.db.NewSelect().Model(model).
		Where("user_id = ?", userID).
		Where("module_id = ?", moduleID).
		OrderExpr("submitted_at DESC, attempt_id DESC")
}
