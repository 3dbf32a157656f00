package memory

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"

	"learning-platform/internal/domain"
)

func TestStoreUpsertSubmissionKeepsOnePerAssignment(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	first := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	sub, replaced, err := store.UpsertSubmission(ctx, domain.Submission{
		ID: "s1", UserID: "u1", ModuleID: "m1", AssignmentID: "a1",
		FileURL: "/uploads/submissions/one.pdf", Status: domain.SubmissionNew, SubmittedAt: first,
	})
	if err != nil || replaced {
		t.Fatalf("first upsert: replaced=%v err=%v", replaced, err)
	}
	if _, err := store.GradeSubmission(ctx, sub.ID, 4, nil, first.Add(time.Hour)); err != nil {
		t.Fatalf("grade: %v", err)
	}

	again, replaced, err := store.UpsertSubmission(ctx, domain.Submission{
		ID: "s2", UserID: "u1", ModuleID: "m1", AssignmentID: "a1",
		FileURL: "/uploads/submissions/two.pdf", Status: domain.SubmissionNew, SubmittedAt: first.Add(2 * time.Hour),
	})
	if err != nil || !replaced {
		t.Fatalf("second upsert: replaced=%v err=%v", replaced, err)
	}
	if again.ID != "s1" || again.Status != domain.SubmissionNew || again.Grade == nil || *again.Grade != 4 {
		t.Fatalf("expected s1 back to NEW with its grade kept, got %+v", again)
	}
	subs, err := store.ListUserSubmissions(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].FileURL != "/uploads/submissions/two.pdf" {
		t.Fatalf("expected one replaced submission, got %+v", subs)
	}
}

func TestStoreDeleteModuleCascades(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	mustNoErr(t, store.CreateModule(ctx, domain.Module{ID: "m1", Title: "Intro", Order: 1, IsActive: true}))
	mustNoErr(t, store.CreateModule(ctx, domain.Module{ID: "m2", Title: "Next", Order: 2, IsActive: true}))
	mustNoErr(t, store.CreateLesson(ctx, domain.Lesson{ID: "l1", ModuleID: "m1", Order: 1}))
	mustNoErr(t, store.CreateQuestion(ctx, domain.Question{ID: "q1", ModuleID: "m1", Order: 1}))
	mustNoErr(t, store.CreateQuestion(ctx, domain.Question{ID: "q2", ModuleID: "m2", Order: 1}))
	mustNoErr(t, store.CreateAssignment(ctx, domain.Assignment{ID: "a1", ModuleID: "m1"}))
	if _, _, err := store.UpsertSubmission(ctx, domain.Submission{ID: "s1", UserID: "u1", ModuleID: "m1", AssignmentID: "a1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	mustNoErr(t, store.DeleteModule(ctx, "m1"))

	if _, err := store.GetModule(ctx, "m1"); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected not found module, got %v", err)
	}
	if _, err := store.GetLesson(ctx, "m1", "l1"); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected lesson removed, got %v", err)
	}
	if _, err := store.GetSubmission(ctx, "s1"); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected submission removed, got %v", err)
	}
	questions, _ := store.ListAllQuestions(ctx)
	if len(questions) != 1 || questions[0].ID != "q2" {
		t.Fatalf("expected only q2 to survive, got %+v", questions)
	}
}

func TestStoreTopStudentsSkipsAdmins(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	mustNoErr(t, store.CreateUser(ctx, domain.User{ID: "admin", Email: "a@x.io", IsAdmin: true, Rating: 999}))
	mustNoErr(t, store.CreateUser(ctx, domain.User{ID: "u1", Email: "u1@x.io", Rating: 10}))
	mustNoErr(t, store.CreateUser(ctx, domain.User{ID: "u2", Email: "u2@x.io", Rating: 30}))
	mustNoErr(t, store.IncrementRating(ctx, "u1", 25))

	top, err := store.TopStudents(ctx, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].ID != "u1" || top[0].Rating != 35 || top[1].ID != "u2" {
		t.Fatalf("unexpected ranking %+v", top)
	}
	if err := store.CreateUser(ctx, domain.User{ID: "dup", Email: "u1@x.io"}); !errors.Is(err, errors.AlreadyExists) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestStoreResultsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	for i, score := range []int{40, 70, 50} {
		mustNoErr(t, store.CreateResult(ctx, domain.QuizResult{
			ID: string(rune('a' + i)), UserID: "u1", ModuleID: "m1", ScorePercent: score,
		}))
	}
	best, ok, err := store.BestScore(ctx, "u1", "m1")
	if err != nil || !ok || best != 70 {
		t.Fatalf("best score: %d %v %v", best, ok, err)
	}
	latest, ok, err := store.LatestResult(ctx, "u1", "m1")
	if err != nil || !ok || latest.ScorePercent != 50 {
		t.Fatalf("latest: %+v %v %v", latest, ok, err)
	}
	if _, ok, _ := store.BestScore(ctx, "u1", "m2"); ok {
		t.Fatalf("expected no results for m2")
	}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStoreCreateQuestionsRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	mustNoErr(t, store.CreateQuestion(ctx, domain.Question{ID: "q1", ModuleID: "m1", Order: 1}))

	err := store.CreateQuestions(ctx, []domain.Question{{ID: "q2", ModuleID: "m1", Order: 2}, {ID: "q1", ModuleID: "m1", Order: 3}})
	if !errors.Is(err, errors.AlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if qs, _ := store.ListQuestions(ctx, "m1"); len(qs) != 1 {
		t.Fatalf("expected nothing stored, got %+v", qs)
	}

	mustNoErr(t, store.CreateAnswerOption(ctx, domain.AnswerOption{ID: "o1", QuestionID: "q1", Order: 1}))
	q, err := store.GetQuestion(ctx, "q1")
	mustNoErr(t, err)
	if len(q.Options) != 1 {
		t.Fatalf("expected appended option, got %+v", q.Options)
	}
}
