package app

import (
	"context"
	"log/slog"

	"github.com/juju/errors"
)

// PointsPerGradeLevel converts an assignment grade step into rating points (5 -> 100).
const PointsPerGradeLevel = 20

// QuizRatingDelta only rewards improvement over the best earlier attempt.
func QuizRatingDelta(newScorePercent, previousBest int) int {
	if d := newScorePercent - previousBest; d > 0 {
		return d
	}
	return 0
}

// GradeRatingDelta is the rating change for a (re-)grade. A missing previous
// grade counts as 0, so lowering a grade yields a negative delta.
func GradeRatingDelta(newGrade int, previousGrade *int) int {
	prev := 0
	if previousGrade != nil {
		prev = *previousGrade
	}
	return (newGrade - prev) * PointsPerGradeLevel
}

// RatingUpdater applies rating deltas as best-effort effects.
type RatingUpdater struct {
	users       UserRepository
	effects     *Effects
	leaderboard *LeaderboardService
	logger      *slog.Logger
}

func NewRatingUpdater(users UserRepository, effects *Effects, leaderboard *LeaderboardService, logger *slog.Logger) *RatingUpdater {
	if logger == nil {
		logger = slog.Default()
	}
	return &RatingUpdater{users: users, effects: effects, leaderboard: leaderboard, logger: logger}
}

// Apply schedules the increment. A zero delta is a no-op.
func (r *RatingUpdater) Apply(ctx context.Context, userID string, delta int, reason string) {
	if delta == 0 {
		return
	}
	r.effects.Go(ctx, "rating:"+reason, func(ctx context.Context) error {
		if err := r.users.IncrementRating(ctx, userID, delta); err != nil {
			return errors.Annotatef(err, "increment rating of %s by %d", userID, delta)
		}
		r.logger.Info("rating updated",
			slog.String("user_id", userID),
			slog.Int("delta", delta),
			slog.String("reason", reason),
		)
		if r.leaderboard != nil {
			return errors.Trace(r.leaderboard.Refresh(ctx))
		}
		return nil
	})
}
