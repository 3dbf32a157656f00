package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"learning-platform/internal/domain"
)

// QuizSubmission is the body of a quiz submit request.
type QuizSubmission struct {
	ModuleID string                   `json:"moduleId"`
	Answers  []domain.SubmittedAnswer `json:"answers"`
}

// QuizOutcome is returned after a submission and when replaying the last result.
type QuizOutcome struct {
	ResultID        string                `json:"id"`
	ScorePercent    int                   `json:"scorePercent"`
	CorrectAnswers  int                   `json:"correctAnswers"`
	TotalQuestions  int                   `json:"totalQuestions"`
	AttemptID       string                `json:"attemptId"`
	SubmittedAt     time.Time             `json:"submittedAt"`
	DetailedAnswers []domain.AnswerDetail `json:"detailedAnswers"`
	RatingDelta     int                   `json:"ratingDelta"`
}

// QuizService contains the quiz use cases.
type QuizService struct {
	curriculum CurriculumRepository
	questions  QuestionSource
	results    QuizResultRepository
	users      UserRepository
	rating     *RatingUpdater
	progress   progressKeeper
	threshold  int
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// QuizServiceDeps groups the collaborators of QuizService.
type QuizServiceDeps struct {
	Curriculum CurriculumRepository
	Questions  QuestionSource
	Results    QuizResultRepository
	Users      UserRepository
	Rating     *RatingUpdater
	Progress   ProgressStore
	Locker     Locker
	Threshold  int
	Logger     *slog.Logger
}

func NewQuizService(deps QuizServiceDeps) *QuizService {
	threshold := deps.Threshold
	if threshold <= 0 {
		threshold = DefaultPassThresholdPercent
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QuizService{
		curriculum: deps.Curriculum,
		questions:  deps.Questions,
		results:    deps.Results,
		users:      deps.Users,
		rating:     deps.Rating,
		progress:   progressKeeper{store: deps.Progress, locker: deps.Locker, now: time.Now},
		threshold:  threshold,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Submit scores a quiz attempt, appends a QuizResult and rewards improvement
// over the best previous attempt.
func (s *QuizService) Submit(ctx context.Context, userID string, sub QuizSubmission) (QuizOutcome, error) {
	if sub.ModuleID == "" {
		return QuizOutcome{}, errors.BadRequestf("moduleId is required")
	}
	if sub.Answers == nil {
		return QuizOutcome{}, errors.BadRequestf("answers must be an array")
	}

	if _, err := s.curriculum.GetModule(ctx, sub.ModuleID); err != nil {
		return QuizOutcome{}, errors.Trace(err)
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return QuizOutcome{}, errors.Trace(err)
	}
	questions, err := s.questions.GetQuestions(ctx, sub.ModuleID)
	if err != nil {
		return QuizOutcome{}, errors.Trace(err)
	}

	score := ScoreQuiz(questions, sub.Answers)

	result, delta, err := s.storeAttempt(ctx, userID, sub, score)
	if err != nil {
		return QuizOutcome{}, errors.Trace(err)
	}

	if err := s.recordAttempt(ctx, userID, result, score); err != nil {
		s.logger.Warn("progress not updated after quiz",
			slog.String("user_id", userID),
			slog.String("module_id", sub.ModuleID),
			slog.String("error", err.Error()),
		)
	}

	return QuizOutcome{
		ResultID:        result.ID,
		ScorePercent:    score.ScorePercent,
		CorrectAnswers:  score.CorrectAnswers,
		TotalQuestions:  score.TotalQuestions,
		AttemptID:       result.AttemptID,
		SubmittedAt:     result.SubmittedAt,
		DetailedAnswers: score.Details,
		RatingDelta:     delta,
	}, nil
}

// storeAttempt appends the result and pays the improvement over the previous
// best. The best-score read and the insert run under one per-user lock so
// concurrent submits of the same module are never rewarded twice.
func (s *QuizService) storeAttempt(ctx context.Context, userID string, sub QuizSubmission, score domain.QuizScore) (domain.QuizResult, int, error) {
	unlock, err := s.progress.locker.Lock(ctx, "quiz:"+userID+":"+sub.ModuleID)
	if err != nil {
		return domain.QuizResult{}, 0, errors.Annotate(err, "lock quiz attempt")
	}
	defer unlock()

	previousBest, _, err := s.results.BestScore(ctx, userID, sub.ModuleID)
	if err != nil {
		return domain.QuizResult{}, 0, errors.Trace(err)
	}

	result := domain.QuizResult{
		ID:           s.newID(),
		UserID:       userID,
		ModuleID:     sub.ModuleID,
		ScorePercent: score.ScorePercent,
		AttemptID:    "attempt_" + s.newID(),
		Answers:      sub.Answers,
		SubmittedAt:  s.now().UTC(),
	}
	if err := s.results.CreateResult(ctx, result); err != nil {
		return domain.QuizResult{}, 0, errors.Trace(err)
	}

	delta := QuizRatingDelta(score.ScorePercent, previousBest)
	s.rating.Apply(ctx, userID, delta, "quiz")
	return result, delta, nil
}

// LastResult replays the most recent attempt against the current questions.
// It returns nil when the user never attempted the quiz.
func (s *QuizService) LastResult(ctx context.Context, userID, moduleID string) (*QuizOutcome, error) {
	if moduleID == "" {
		return nil, errors.BadRequestf("moduleId is required")
	}
	last, ok, err := s.results.LatestResult(ctx, userID, moduleID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !ok {
		return nil, nil
	}
	if _, err := s.curriculum.GetModule(ctx, moduleID); err != nil {
		return nil, errors.Trace(err)
	}
	questions, err := s.questions.GetQuestions(ctx, moduleID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	outcome := s.replay(last, questions)
	return &outcome, nil
}

// Attempts lists every attempt for the module, newest first.
func (s *QuizService) Attempts(ctx context.Context, userID, moduleID string) ([]QuizOutcome, error) {
	if moduleID == "" {
		return nil, errors.BadRequestf("moduleId is required")
	}
	if _, err := s.curriculum.GetModule(ctx, moduleID); err != nil {
		return nil, errors.Trace(err)
	}
	results, err := s.results.ListResults(ctx, userID, moduleID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	questions, err := s.questions.GetQuestions(ctx, moduleID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	outcomes := make([]QuizOutcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, s.replay(r, questions))
	}
	return outcomes, nil
}

// replay keeps the stored score; details reflect the questions as they are now.
func (s *QuizService) replay(r domain.QuizResult, questions []domain.Question) QuizOutcome {
	score := ScoreQuiz(questions, r.Answers)
	return QuizOutcome{
		ResultID:        r.ID,
		ScorePercent:    r.ScorePercent,
		CorrectAnswers:  score.CorrectAnswers,
		TotalQuestions:  score.TotalQuestions,
		AttemptID:       r.AttemptID,
		SubmittedAt:     r.SubmittedAt,
		DetailedAnswers: score.Details,
	}
}

func (s *QuizService) recordAttempt(ctx context.Context, userID string, result domain.QuizResult, score domain.QuizScore) error {
	moduleIDs, err := activeModuleIDs(ctx, s.curriculum)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = s.progress.update(ctx, userID, moduleIDs, func(p *domain.Progress) (bool, error) {
		entry := p.Module(result.ModuleID)
		if entry == nil {
			// inactive modules still keep their history
			p.Modules = append(p.Modules, domain.NewModuleProgress(result.ModuleID))
			entry = &p.Modules[len(p.Modules)-1]
		}
		entry.Quiz.Attempts = append(entry.Quiz.Attempts, domain.QuizAttempt{
			AttemptID:    result.AttemptID,
			SubmittedAt:  result.SubmittedAt,
			ScorePercent: result.ScorePercent,
			Answers:      score.Details,
		})
		if entry.Quiz.BestScorePercent == nil || result.ScorePercent > *entry.Quiz.BestScorePercent {
			best := result.ScorePercent
			entry.Quiz.BestScorePercent = &best
		}
		if entry.Quiz.PassedAt == nil && *entry.Quiz.BestScorePercent >= s.threshold {
			at := result.SubmittedAt
			entry.Quiz.PassedAt = &at
		}
		return true, nil
	})
	return err
}

func activeModuleIDs(ctx context.Context, curriculum CurriculumRepository) ([]string, error) {
	modules, err := curriculum.ListModules(ctx, true)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ids := make([]string, 0, len(modules))
	for _, m := range modules {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
