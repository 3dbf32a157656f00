package app_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learning-platform/internal/app"
	"learning-platform/internal/domain"
	"learning-platform/internal/infra/memory"
)

type harness struct {
	store       *memory.Store
	progress    *memory.ProgressStore
	questions   *memory.QuestionCache
	effects     *app.Effects
	leaderboard *app.LeaderboardService
	files       *fakeFiles
	sink        *fakeSink

	quiz        *app.QuizService
	progressSvc *app.ProgressService
	assignments *app.AssignmentService
	curriculum  *app.CurriculumService
	auth        *app.AuthService
	backups     *app.BackupService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    memory.NewStore(),
		progress: memory.NewProgressStore(),
		effects:  app.NewEffects(nil),
		files:    &fakeFiles{content: map[string][]byte{}},
		sink:     &fakeSink{},
	}
	t.Cleanup(h.effects.Close)
	locker := memory.NewKeyedLocker()
	h.questions = memory.NewQuestionCache(memory.QuestionLoaderFunc(h.store.ListQuestions), time.Minute)
	h.leaderboard = app.NewLeaderboardService(h.store, 10)
	rating := app.NewRatingUpdater(h.store, h.effects, h.leaderboard, nil)
	h.backups = app.NewBackupService(app.BackupServiceDeps{
		Users: h.store, Curriculum: h.store, Results: h.store, Submissions: h.store,
		Progress: h.progress, Sink: h.sink, Effects: h.effects,
	})
	h.quiz = app.NewQuizService(app.QuizServiceDeps{
		Curriculum: h.store, Questions: h.questions, Results: h.store, Users: h.store,
		Rating: rating, Progress: h.progress, Locker: locker,
	})
	h.progressSvc = app.NewProgressService(app.ProgressServiceDeps{
		Curriculum: h.store, Questions: h.questions, Results: h.store, Submissions: h.store,
		Progress: h.progress, Locker: locker,
	})
	h.assignments = app.NewAssignmentService(app.AssignmentServiceDeps{
		Curriculum: h.store, Submissions: h.store, Files: h.files, Rating: rating,
		Backups: h.backups, Progress: h.progress, Locker: locker,
	})
	h.curriculum = app.NewCurriculumService(app.CurriculumServiceDeps{
		Repo: h.store, Questions: h.questions, Files: h.files, Backups: h.backups,
	})
	h.auth = app.NewAuthService(h.store, "test-secret", time.Hour, nil)
	return h
}

// seedModule creates an active module with n single choice questions whose
// correct option is "<question>-ok".
func (h *harness) seedModule(t *testing.T, id string, order, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.CreateModule(ctx, domain.Module{ID: id, Title: "Module " + id, Order: order, IsActive: true}))
	for i := 1; i <= n; i++ {
		qid := fmt.Sprintf("%s-q%d", id, i)
		require.NoError(t, h.store.CreateQuestion(ctx, domain.Question{
			ID: qid, ModuleID: id, Title: qid, Type: domain.QuestionSingle, Order: i,
			Options: []domain.AnswerOption{
				{ID: qid + "-ok", QuestionID: qid, Text: "yes", IsCorrect: true, Order: 1},
				{ID: qid + "-no", QuestionID: qid, Text: "no", Order: 2},
			},
		}))
	}
	require.NoError(t, h.store.CreateLesson(ctx, domain.Lesson{ID: id + "-l1", ModuleID: id, Title: "Read me", Order: 1}))
}

func (h *harness) seedUser(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.store.CreateUser(context.Background(), domain.User{
		ID: id, Email: id + "@example.com", Name: id, CreatedAt: time.Now(),
	}))
}

func (h *harness) rating(t *testing.T, userID string) int {
	t.Helper()
	h.effects.Wait()
	u, err := h.store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.Rating
}

// answers answers the first `correct` of n questions correctly.
func answers(moduleID string, n, correct int) []domain.SubmittedAnswer {
	out := make([]domain.SubmittedAnswer, 0, n)
	for i := 1; i <= n; i++ {
		qid := fmt.Sprintf("%s-q%d", moduleID, i)
		pick := qid + "-no"
		if i <= correct {
			pick = qid + "-ok"
		}
		out = append(out, domain.SubmittedAnswer{QuestionID: qid, SelectedOptionIDs: []string{pick}})
	}
	return out
}

func TestQuizRetakeRewardsOnlyImprovement(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 4)
	h.seedUser(t, "u1")

	first, err := h.quiz.Submit(ctx, "u1", app.QuizSubmission{ModuleID: "m1", Answers: answers("m1", 4, 3)})
	require.NoError(t, err)
	assert.Equal(t, 75, first.ScorePercent)
	assert.Equal(t, 3, first.CorrectAnswers)
	assert.Equal(t, 4, first.TotalQuestions)
	assert.Equal(t, 75, h.rating(t, "u1"))

	second, err := h.quiz.Submit(ctx, "u1", app.QuizSubmission{ModuleID: "m1", Answers: answers("m1", 4, 4)})
	require.NoError(t, err)
	assert.Equal(t, 100, second.ScorePercent)
	assert.Equal(t, 25, second.RatingDelta)
	assert.Equal(t, 100, h.rating(t, "u1"))
	assert.NotEqual(t, first.AttemptID, second.AttemptID)
}

func TestQuizRatingSequence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 10)
	h.seedUser(t, "u1")

	var deltas []int
	for _, correct := range []int{4, 7, 5} {
		out, err := h.quiz.Submit(ctx, "u1", app.QuizSubmission{ModuleID: "m1", Answers: answers("m1", 10, correct)})
		require.NoError(t, err)
		deltas = append(deltas, out.RatingDelta)
	}
	assert.Equal(t, []int{40, 30, 0}, deltas)
	assert.Equal(t, 70, h.rating(t, "u1"))
}

func TestConcurrentPerfectSubmitsPayOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 4)
	h.seedUser(t, "u1")

	const n = 8
	deltas := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := h.quiz.Submit(ctx, "u1", app.QuizSubmission{ModuleID: "m1", Answers: answers("m1", 4, 4)})
			assert.NoError(t, err)
			deltas[i] = out.RatingDelta
		}(i)
	}
	wg.Wait()

	total := 0
	for _, d := range deltas {
		total += d
	}
	assert.Equal(t, 100, total)
	assert.Equal(t, 100, h.rating(t, "u1"))

	attempts, err := h.quiz.Attempts(ctx, "u1", "m1")
	require.NoError(t, err)
	assert.Len(t, attempts, n)
}

func TestQuizSubmitErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 2)
	h.seedUser(t, "u1")

	_, err := h.quiz.Submit(ctx, "u1", app.QuizSubmission{ModuleID: "m1"})
	assert.True(t, errors.Is(err, errors.BadRequest), "nil answers: %v", err)

	_, err = h.quiz.Submit(ctx, "u1", app.QuizSubmission{Answers: []domain.SubmittedAnswer{}})
	assert.True(t, errors.Is(err, errors.BadRequest), "missing module: %v", err)

	_, err = h.quiz.Submit(ctx, "u1", app.QuizSubmission{ModuleID: "nope", Answers: []domain.SubmittedAnswer{}})
	assert.True(t, errors.Is(err, errors.NotFound), "unknown module: %v", err)

	_, err = h.quiz.Submit(ctx, "ghost", app.QuizSubmission{ModuleID: "m1", Answers: []domain.SubmittedAnswer{}})
	assert.True(t, errors.Is(err, errors.NotFound), "unknown user: %v", err)
}

func TestQuizLastResultAndAttempts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 2)
	h.seedUser(t, "u1")

	last, err := h.quiz.LastResult(ctx, "u1", "m1")
	require.NoError(t, err)
	assert.Nil(t, last)

	_, err = h.quiz.Submit(ctx, "u1", app.QuizSubmission{ModuleID: "m1", Answers: answers("m1", 2, 1)})
	require.NoError(t, err)
	_, err = h.quiz.Submit(ctx, "u1", app.QuizSubmission{ModuleID: "m1", Answers: answers("m1", 2, 2)})
	require.NoError(t, err)

	last, err = h.quiz.LastResult(ctx, "u1", "m1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 100, last.ScorePercent)
	assert.Len(t, last.DetailedAnswers, 2)

	attempts, err := h.quiz.Attempts(ctx, "u1", "m1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 100, attempts[0].ScorePercent)
	assert.Equal(t, 50, attempts[1].ScorePercent)

	progress, err := h.progressSvc.Me(ctx, "u1")
	require.NoError(t, err)
	entry := progress.Module("m1")
	require.NotNil(t, entry)
	assert.Len(t, entry.Quiz.Attempts, 2)
	require.NotNil(t, entry.Quiz.BestScorePercent)
	assert.Equal(t, 100, *entry.Quiz.BestScorePercent)
	assert.NotNil(t, entry.Quiz.PassedAt)
}

func TestVisibleModulesFollowTheGate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 2)
	h.seedModule(t, "m2", 2, 2)
	h.seedModule(t, "m3", 3, 2)
	h.seedUser(t, "u1")

	statuses := func() []domain.ModuleStatus {
		visible, err := h.progressSvc.Visible(ctx, "u1")
		require.NoError(t, err)
		out := make([]domain.ModuleStatus, 0, len(visible))
		for _, v := range visible {
			out = append(out, v.Progress.Status)
		}
		return out
	}
	assert.Equal(t, []domain.ModuleStatus{domain.StatusAvailable, domain.StatusLocked, domain.StatusLocked}, statuses())

	_, err := h.quiz.Submit(ctx, "u1", app.QuizSubmission{ModuleID: "m1", Answers: answers("m1", 2, 2)})
	require.NoError(t, err)
	assert.Equal(t, []domain.ModuleStatus{domain.StatusPassed, domain.StatusAvailable, domain.StatusLocked}, statuses())

	visible, err := h.progressSvc.Visible(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, visible[0].QuestionCount)
	assert.Len(t, visible[0].Lessons, 1)
}

func TestMarkLessonRead(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 1)
	h.seedModule(t, "m2", 2, 1)
	h.seedUser(t, "u1")

	n, err := h.progressSvc.MarkLessonRead(ctx, "u1", "m1", "m1-l1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.progressSvc.MarkLessonRead(ctx, "u1", "m1", "m1-l1")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "marking twice is idempotent")

	_, err = h.progressSvc.MarkLessonRead(ctx, "u1", "m2", "m2-l1")
	assert.True(t, errors.Is(err, errors.Forbidden), "locked module: %v", err)

	_, err = h.progressSvc.MarkLessonRead(ctx, "u1", "m1", "m2-l1")
	assert.True(t, errors.Is(err, errors.NotFound), "lesson of another module: %v", err)
}

func TestConcurrentLessonReadsAreNotLost(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 1)
	h.seedUser(t, "u1")
	for i := 2; i <= 10; i++ {
		require.NoError(t, h.store.CreateLesson(ctx, domain.Lesson{ID: fmt.Sprintf("m1-l%d", i), ModuleID: "m1", Order: i}))
	}

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.progressSvc.MarkLessonRead(ctx, "u1", "m1", fmt.Sprintf("m1-l%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	progress, err := h.progressSvc.Me(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, progress.Module("m1").LessonsRead, 10)
}

func TestProgressReconcilesNewModules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 1)
	h.seedUser(t, "u1")

	_, err := h.progressSvc.MarkLessonRead(ctx, "u1", "m1", "m1-l1")
	require.NoError(t, err)
	before, err := h.progress.Get(ctx, "u1")
	require.NoError(t, err)

	got, err := app.GetOrCreateProgress(ctx, h.progress, "u1", []string{"m1", "m9"}, time.Now())
	require.NoError(t, err)
	require.Len(t, got.Modules, 2)
	assert.Equal(t, before.Modules[0], got.Modules[0])
	assert.Equal(t, domain.NewModuleProgress("m9"), got.Modules[1])
}

func TestSubmitAndGradeAssignment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 1)
	h.seedModule(t, "m2", 2, 1)
	h.seedUser(t, "u1")
	require.NoError(t, h.store.CreateAssignment(ctx, domain.Assignment{ID: "a1", ModuleID: "m1", Title: "Budget"}))

	_, err := h.quiz.Submit(ctx, "u1", app.QuizSubmission{ModuleID: "m1", Answers: answers("m1", 1, 1)})
	require.NoError(t, err)
	visible, err := h.progressSvc.Visible(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, visible[0].Progress.Status, "assignment still missing")

	_, err = h.assignments.Submit(ctx, "u1", app.Upload{AssignmentID: "a1", Filename: "notes.txt", Size: 10, Content: []byte("x")})
	assert.True(t, errors.Is(err, errors.NotValid) || isFieldErrors(err), "bad extension: %v", err)

	sub, err := h.assignments.Submit(ctx, "u1", app.Upload{AssignmentID: "a1", Filename: "Budget.XLSX", Size: 4, Content: []byte("data")})
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionNew, sub.Status)
	assert.Contains(t, sub.FileURL, "submission_u1_a1_")
	assert.Contains(t, sub.FileURL, ".xlsx")

	visible, err = h.progressSvc.Visible(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPassed, visible[0].Progress.Status)
	assert.Equal(t, domain.StatusAvailable, visible[1].Progress.Status)
	assert.Equal(t, 1, visible[0].AssignmentsOf.Completed)

	before := h.rating(t, "u1")
	graded, err := h.assignments.Grade(ctx, sub.ID, app.GradeInput{Grade: intp(5)})
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionGraded, graded.Status)
	assert.Equal(t, before+100, h.rating(t, "u1"))

	feedback := "check totals"
	_, err = h.assignments.Grade(ctx, sub.ID, app.GradeInput{Grade: intp(3), Feedback: &feedback})
	require.NoError(t, err)
	assert.Equal(t, before+60, h.rating(t, "u1"), "re-grade 5 -> 3 moves rating by -40")

	progress, err := h.progressSvc.Me(ctx, "u1")
	require.NoError(t, err)
	entry := progress.Module("m1")
	require.NotNil(t, entry.Assignment.Grade)
	assert.Equal(t, 3, *entry.Assignment.Grade)
	assert.Equal(t, feedback, entry.Assignment.Feedback)

	_, err = h.assignments.Grade(ctx, sub.ID, app.GradeInput{Grade: intp(6)})
	assert.True(t, isFieldErrors(err), "grade out of range: %v", err)
	_, err = h.assignments.Grade(ctx, "missing", app.GradeInput{Grade: intp(1)})
	assert.True(t, errors.Is(err, errors.NotFound), "unknown submission: %v", err)
}

func TestResubmissionKeepsGrade(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 1)
	h.seedUser(t, "u1")
	require.NoError(t, h.store.CreateAssignment(ctx, domain.Assignment{ID: "a1", ModuleID: "m1"}))

	first, err := h.assignments.Submit(ctx, "u1", app.Upload{AssignmentID: "a1", Filename: "a.pdf", Size: 1, Content: []byte("1")})
	require.NoError(t, err)
	_, err = h.assignments.Grade(ctx, first.ID, app.GradeInput{Grade: intp(4)})
	require.NoError(t, err)

	second, err := h.assignments.Submit(ctx, "u1", app.Upload{AssignmentID: "a1", Filename: "b.zip", Size: 1, Content: []byte("2")})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.SubmissionNew, second.Status)
	require.NotNil(t, second.Grade)
	assert.Equal(t, 4, *second.Grade)

	mine, err := h.assignments.Mine(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = h.assignments.MineFor(ctx, "u1", "other")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestRegradeAfterReuploadPaysOnlyDifference(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 1)
	h.seedUser(t, "u1")
	require.NoError(t, h.store.CreateAssignment(ctx, domain.Assignment{ID: "a1", ModuleID: "m1"}))

	sub, err := h.assignments.Submit(ctx, "u1", app.Upload{AssignmentID: "a1", Filename: "a.pdf", Size: 1, Content: []byte("1")})
	require.NoError(t, err)
	_, err = h.assignments.Grade(ctx, sub.ID, app.GradeInput{Grade: intp(5)})
	require.NoError(t, err)
	assert.Equal(t, 100, h.rating(t, "u1"))

	_, err = h.assignments.Submit(ctx, "u1", app.Upload{AssignmentID: "a1", Filename: "a2.pdf", Size: 1, Content: []byte("2")})
	require.NoError(t, err)
	_, err = h.assignments.Grade(ctx, sub.ID, app.GradeInput{Grade: intp(5)})
	require.NoError(t, err)
	assert.Equal(t, 100, h.rating(t, "u1"), "same grade again moves nothing")

	_, err = h.assignments.Submit(ctx, "u1", app.Upload{AssignmentID: "a1", Filename: "a3.pdf", Size: 1, Content: []byte("3")})
	require.NoError(t, err)
	_, err = h.assignments.Grade(ctx, sub.ID, app.GradeInput{Grade: intp(2)})
	require.NoError(t, err)
	assert.Equal(t, 40, h.rating(t, "u1"))
}

func TestUploadSizeLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 1)
	require.NoError(t, h.store.CreateAssignment(ctx, domain.Assignment{ID: "a1", ModuleID: "m1"}))

	_, err := h.assignments.Submit(ctx, "u1", app.Upload{AssignmentID: "a1", Filename: "big.pdf", Size: app.DefaultMaxUploadSize + 1})
	assert.True(t, isFieldErrors(err), "oversized upload: %v", err)
	assert.Empty(t, h.files.names())
}

func TestCurriculumValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m1, err := h.curriculum.CreateModule(ctx, app.ModuleInput{Title: "Intro", Order: 1})
	require.NoError(t, err)
	assert.True(t, m1.IsActive)

	_, err = h.curriculum.CreateModule(ctx, app.ModuleInput{Title: "Clash", Order: 1})
	assert.True(t, isFieldErrors(err), "duplicate order: %v", err)

	_, err = h.curriculum.CreateModule(ctx, app.ModuleInput{Order: 0})
	var fields app.FieldErrors
	require.True(t, errors.As(err, &fields))
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "order")

	_, err = h.curriculum.UpdateModule(ctx, m1.ID, app.ModuleInput{Title: "Intro v2", Order: 1})
	require.NoError(t, err, "keeping its own order is fine")

	_, err = h.curriculum.CreateQuestion(ctx, app.QuestionInput{
		ModuleID: m1.ID, Title: "Pick one", Type: domain.QuestionSingle, Order: 1,
		Options: []app.OptionInput{{Text: "a", IsCorrect: true}, {Text: "b", IsCorrect: true}},
	})
	assert.True(t, isFieldErrors(err), "two correct options on single: %v", err)

	_, err = h.curriculum.CreateQuestion(ctx, app.QuestionInput{
		ModuleID: m1.ID, Title: "Pick", Type: domain.QuestionMultiple, Order: 1,
		Options: []app.OptionInput{{Text: "a"}, {Text: "b"}},
	})
	assert.True(t, isFieldErrors(err), "no correct option: %v", err)

	q, err := h.curriculum.CreateQuestion(ctx, app.QuestionInput{
		ModuleID: m1.ID, Title: "Pick some", Type: domain.QuestionMultiple, Order: 1,
		Options: []app.OptionInput{{Text: "a", IsCorrect: true}, {Text: "b"}, {Text: "c", IsCorrect: true}},
	})
	require.NoError(t, err)
	assert.Len(t, q.Options, 3)
	assert.Equal(t, 3, q.Options[2].Order)

	_, err = h.curriculum.CreateQuestion(ctx, app.QuestionInput{
		ModuleID: "nope", Title: "x", Type: domain.QuestionSingle, Order: 1,
		Options: []app.OptionInput{{Text: "a", IsCorrect: true}, {Text: "b"}},
	})
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestBulkQuestionImport(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 1)
	h.seedUser(t, "u1")

	// warm the cache so the import has to invalidate it
	cached, err := h.questions.GetQuestions(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, cached, 1)

	good := func(title string, order int) app.QuestionInput {
		return app.QuestionInput{
			Title: title, Type: domain.QuestionSingle, Order: order,
			Options: []app.OptionInput{{Text: "yes", IsCorrect: true}, {Text: "no"}},
		}
	}

	_, err = h.curriculum.CreateQuestions(ctx, "m1", []app.QuestionInput{
		good("second", 2),
		{Title: "broken", Type: domain.QuestionMultiple, Order: 3, Options: []app.OptionInput{{Text: "a"}, {Text: "b"}}},
		good("clash", 2),
		good("taken", 1),
	})
	var fields app.FieldErrors
	require.True(t, errors.As(err, &fields), "expected field errors, got %v", err)
	assert.Contains(t, fields, "questions[1].options")
	assert.Contains(t, fields, "questions[2].order")
	assert.Contains(t, fields, "questions[3].order")
	assert.NotContains(t, fields, "questions[0].order")

	stored, err := h.store.ListQuestions(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, stored, 1, "a rejected batch stores nothing")

	created, err := h.curriculum.CreateQuestions(ctx, "m1", []app.QuestionInput{good("second", 2), good("third", 3)})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "m1", created[0].ModuleID)

	served, err := h.questions.GetQuestions(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, served, 3)

	_, err = h.curriculum.CreateQuestions(ctx, "m1", nil)
	assert.True(t, isFieldErrors(err))
	_, err = h.curriculum.CreateQuestions(ctx, "missing", []app.QuestionInput{good("x", 1)})
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestAddAnswerOption(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 1)

	option, err := h.curriculum.AddOption(ctx, app.AnswerOptionInput{QuestionID: "m1-q1", Text: "maybe", Order: 3})
	require.NoError(t, err)
	assert.Equal(t, "m1-q1", option.QuestionID)

	q, err := h.store.GetQuestion(ctx, "m1-q1")
	require.NoError(t, err)
	require.Len(t, q.Options, 3)
	assert.Equal(t, "maybe", q.Options[2].Text)

	_, err = h.curriculum.AddOption(ctx, app.AnswerOptionInput{QuestionID: "m1-q1", Text: "dup", Order: 1})
	assert.True(t, isFieldErrors(err), "order taken: %v", err)
	_, err = h.curriculum.AddOption(ctx, app.AnswerOptionInput{QuestionID: "m1-q1", Text: "also right", IsCorrect: true, Order: 4})
	assert.True(t, isFieldErrors(err), "second correct option on single: %v", err)
	_, err = h.curriculum.AddOption(ctx, app.AnswerOptionInput{QuestionID: "nope", Text: "x", Order: 1})
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestUpdateAssignment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 1)
	h.seedModule(t, "m2", 2, 1)
	a, err := h.curriculum.CreateAssignment(ctx, app.AssignmentInput{ModuleID: "m1", Title: "Budget"})
	require.NoError(t, err)

	updated, err := h.curriculum.UpdateAssignment(ctx, a.ID, app.AssignmentUpdate{Title: "Budget v2", Description: "use the template"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Budget v2", updated.Title)
	assert.Empty(t, updated.FileURL)

	updated, err = h.curriculum.UpdateAssignment(ctx, a.ID, app.AssignmentUpdate{ModuleID: "m1", Title: "Budget v3"},
		&app.Attachment{Filename: "Template.XLSX", Content: []byte("sheet")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(updated.FileURL, "/uploads/assignments/assignment_"+a.ID+"_"), updated.FileURL)
	assert.True(t, strings.HasSuffix(updated.FileURL, ".xlsx"), updated.FileURL)

	stored, err := h.store.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.FileURL, stored.FileURL)
	assert.Equal(t, "Budget v3", stored.Title)

	kept, err := h.curriculum.UpdateAssignment(ctx, a.ID, app.AssignmentUpdate{Title: "Budget v4"}, nil)
	require.NoError(t, err)
	assert.Equal(t, updated.FileURL, kept.FileURL, "no file keeps the attachment")

	_, err = h.curriculum.UpdateAssignment(ctx, a.ID, app.AssignmentUpdate{ModuleID: "m2", Title: "Moved"}, nil)
	assert.True(t, isFieldErrors(err), "module change: %v", err)
	_, err = h.curriculum.UpdateAssignment(ctx, a.ID, app.AssignmentUpdate{Title: "x"}, &app.Attachment{Filename: "run.exe", Content: []byte("MZ")})
	assert.True(t, isFieldErrors(err), "bad extension: %v", err)
	_, err = h.curriculum.UpdateAssignment(ctx, a.ID, app.AssignmentUpdate{}, nil)
	assert.True(t, isFieldErrors(err), "missing title: %v", err)
	_, err = h.curriculum.UpdateAssignment(ctx, "nope", app.AssignmentUpdate{Title: "x"}, nil)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestCurriculumChangesInvalidateQuestionCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m, err := h.curriculum.CreateModule(ctx, app.ModuleInput{Title: "Intro", Order: 1})
	require.NoError(t, err)

	questions, err := h.questions.GetQuestions(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, questions)

	q, err := h.curriculum.CreateQuestion(ctx, app.QuestionInput{
		ModuleID: m.ID, Title: "Pick", Type: domain.QuestionSingle, Order: 1,
		Options: []app.OptionInput{{Text: "a", IsCorrect: true}, {Text: "b"}},
	})
	require.NoError(t, err)
	questions, err = h.questions.GetQuestions(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, questions, 1)

	require.NoError(t, h.curriculum.DeleteQuestion(ctx, q.ID))
	questions, err = h.questions.GetQuestions(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, questions)

	h.effects.Wait()
	assert.Positive(t, h.sink.currentWrites(), "mutations refresh the current backup")
}

func TestDeleteModuleCascades(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 2)
	require.NoError(t, h.store.CreateAssignment(ctx, domain.Assignment{ID: "a1", ModuleID: "m1"}))

	require.NoError(t, h.curriculum.DeleteModule(ctx, "m1"))
	_, err := h.curriculum.Lessons(ctx, "m1")
	assert.True(t, errors.Is(err, errors.NotFound))
	all, err := h.store.ListAllQuestions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.True(t, errors.Is(h.curriculum.DeleteModule(ctx, "m1"), errors.NotFound))
}

func TestRegisterLoginAndParse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	user, err := h.auth.Register(ctx, app.RegisterInput{Name: "Ada", Email: " Ada@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.False(t, user.IsAdmin)

	_, err = h.auth.Register(ctx, app.RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	assert.True(t, isFieldErrors(err), "duplicate email: %v", err)

	_, err = h.auth.Register(ctx, app.RegisterInput{Name: "A", Email: "bad", Password: "123"})
	var fields app.FieldErrors
	require.True(t, errors.As(err, &fields))
	assert.Len(t, fields, 3)

	_, _, err = h.auth.Login(ctx, app.LoginInput{Email: "ada@example.com", Password: "wrong!"})
	assert.True(t, errors.Is(err, errors.Unauthorized))
	_, _, err = h.auth.Login(ctx, app.LoginInput{Email: "nobody@example.com", Password: "secret1"})
	assert.True(t, errors.Is(err, errors.Unauthorized))

	token, _, err := h.auth.Login(ctx, app.LoginInput{Email: "ADA@example.com", Password: "secret1"})
	require.NoError(t, err)
	session, err := h.auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	assert.False(t, session.IsAdmin)

	_, err = h.auth.ParseToken(token + "x")
	assert.True(t, errors.Is(err, errors.Unauthorized))

	other := app.NewAuthService(h.store, "other-secret", time.Hour, nil)
	_, err = other.ParseToken(token)
	assert.True(t, errors.Is(err, errors.Unauthorized))

	admin, err := h.auth.CreateAdmin(ctx, app.RegisterInput{Name: "Root", Email: "root@example.com", Password: "secret1"})
	require.NoError(t, err)
	adminToken, err := h.auth.Issue(admin)
	require.NoError(t, err)
	adminSession, err := h.auth.ParseToken(adminToken)
	require.NoError(t, err)
	assert.True(t, adminSession.IsAdmin)
}

func TestRequireAdminChecksStoredAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	admin, err := h.auth.CreateAdmin(ctx, app.RegisterInput{Name: "Root", Email: "root@example.com", Password: "secret1"})
	require.NoError(t, err)
	student, err := h.auth.Register(ctx, app.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)

	assert.NoError(t, h.auth.RequireAdmin(ctx, app.Session{UserID: admin.ID, IsAdmin: true}))

	err = h.auth.RequireAdmin(ctx, app.Session{UserID: admin.ID})
	assert.True(t, errors.Is(err, errors.Forbidden), "claim missing: %v", err)

	// a token minted while the account was still an admin
	err = h.auth.RequireAdmin(ctx, app.Session{UserID: student.ID, IsAdmin: true})
	assert.True(t, errors.Is(err, errors.Forbidden), "demoted account: %v", err)

	err = h.auth.RequireAdmin(ctx, app.Session{UserID: "gone", IsAdmin: true})
	assert.True(t, errors.Is(err, errors.Forbidden), "deleted account: %v", err)
}

func TestLeaderboardPublishesRatingChanges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 2)
	h.seedUser(t, "u1")
	h.seedUser(t, "u2")
	require.NoError(t, h.store.CreateUser(ctx, domain.User{ID: "admin", Email: "admin@example.com", IsAdmin: true, Rating: 500}))

	ch, cancel, err := h.leaderboard.Subscribe(ctx)
	require.NoError(t, err)
	defer cancel()
	initial := <-ch
	assert.Len(t, initial.Entries, 2, "admins are not ranked")

	_, err = h.quiz.Submit(ctx, "u2", app.QuizSubmission{ModuleID: "m1", Answers: answers("m1", 2, 2)})
	require.NoError(t, err)
	h.effects.Wait()

	select {
	case lb := <-ch:
		require.NotEmpty(t, lb.Entries)
		assert.Equal(t, "u2", lb.Entries[0].UserID)
		assert.Equal(t, 100, lb.Entries[0].Rating)
	case <-time.After(time.Second):
		t.Fatal("no leaderboard update published")
	}

	top, err := h.leaderboard.Top(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top.Entries, 1)
}

func TestBackupCollectsEverything(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedModule(t, "m1", 1, 2)
	h.seedUser(t, "u1")
	_, err := h.quiz.Submit(ctx, "u1", app.QuizSubmission{ModuleID: "m1", Answers: answers("m1", 2, 1)})
	require.NoError(t, err)

	payload, err := h.backups.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, payload.Users, 1)
	assert.Len(t, payload.Modules, 1)
	assert.Len(t, payload.Questions, 2)
	assert.Len(t, payload.QuizResults, 1)
	assert.Contains(t, payload.ProgressFiles, "u1.json")

	_, err = h.backups.WriteSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.sink.snapshotWrites())
	assert.Equal(t, app.DefaultBackupMaxAge, h.sink.lastMaxAge())
}

func intp(v int) *int { return &v }

func isFieldErrors(err error) bool {
	var fields app.FieldErrors
	return errors.As(err, &fields)
}

type fakeFiles struct {
	mu      sync.Mutex
	content map[string][]byte
}

func (f *fakeFiles) Put(_ context.Context, folder, name string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content[name] = content
	return "/uploads/" + folder + "/" + name, nil
}

func (f *fakeFiles) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.content))
	for n := range f.content {
		names = append(names, n)
	}
	return names
}

type fakeSink struct {
	mu        sync.Mutex
	current   int
	snapshots int
	maxAge    time.Duration
}

func (s *fakeSink) WriteCurrent(context.Context, domain.BackupPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	return "current.json", nil
}

func (s *fakeSink) WriteSnapshot(context.Context, domain.BackupPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots++
	return "snapshot.json", nil
}

func (s *fakeSink) ReadCurrent(context.Context) ([]byte, error) {
	return []byte(`{}`), nil
}

func (s *fakeSink) Cleanup(_ context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxAge = maxAge
	return 0, nil
}

func (s *fakeSink) currentWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *fakeSink) snapshotWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots
}

func (s *fakeSink) lastMaxAge() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxAge
}
