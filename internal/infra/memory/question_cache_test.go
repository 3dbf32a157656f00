package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"learning-platform/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	loader := &countingLoader{questions: sampleQuestions()}
	cache := NewQuestionCache(loader, time.Minute)

	if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	questions, err := cache.GetQuestions(context.Background(), "m1")
	if err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
	if len(questions) != 1 || questions[0].ID != "q1" {
		t.Fatalf("unexpected questions %+v", questions)
	}
}

func TestQuestionCacheExpires(t *testing.T) {
	loader := &countingLoader{questions: sampleQuestions()}
	cache := NewQuestionCache(loader, time.Minute)
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
		t.Fatalf("get questions after ttl: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionCacheInvalidate(t *testing.T) {
	loader := &countingLoader{questions: sampleQuestions()}
	cache := NewQuestionCache(loader, time.Hour)

	if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	cache.Invalidate(context.Background(), "m1")
	if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
		t.Fatalf("get questions after invalidate: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionCacheSharesConcurrentLoads(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{questions: sampleQuestions(), gate: release}
	cache := NewQuestionCache(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
				t.Errorf("get questions: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected one shared load, got %d", loader.calls.Load())
	}
}

func TestQuestionCacheDropsLoadRacingInvalidate(t *testing.T) {
	var (
		cache *QuestionCache
		calls atomic.Int32
	)
	cache = NewQuestionCache(QuestionLoaderFunc(func(ctx context.Context, moduleID string) ([]domain.Question, error) {
		if calls.Add(1) == 1 {
			// an admin write lands while the first load is in flight
			cache.Invalidate(ctx, moduleID)
		}
		return sampleQuestions(), nil
	}), time.Hour)

	for i := 0; i < 3; i++ {
		if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
			t.Fatalf("get questions %d: %v", i, err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected the stale load to be dropped and the next one cached, loader calls %d", calls.Load())
	}
}

type countingLoader struct {
	questions []domain.Question
	gate      chan struct{}
	calls     atomic.Int32
}

func (l *countingLoader) LoadQuestions(_ context.Context, moduleID string) ([]domain.Question, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	if moduleID != "m1" {
		return nil, domain.ErrModuleNotFound
	}
	return l.questions, nil
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:       "q1",
			ModuleID: "m1",
			Title:    "What is 2 + 2?",
			Type:     domain.QuestionSingle,
			Order:    1,
			Options: []domain.AnswerOption{
				{ID: "o1", QuestionID: "q1", Text: "3", Order: 1},
				{ID: "o2", QuestionID: "q1", Text: "4", IsCorrect: true, Order: 2},
			},
		},
	}
}
