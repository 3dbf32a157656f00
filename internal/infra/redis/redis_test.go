package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"

	"learning-platform/internal/app"
	"learning-platform/internal/domain"
	"learning-platform/internal/infra/memory"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestQuestionCacheCachesInRedis(t *testing.T) {
	mr, client := newTestClient(t)
	loader := &countingLoader{}
	cache := NewQuestionCache(client, loader, time.Minute, nil)

	questions, err := cache.GetQuestions(context.Background(), "m1")
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(questions) != 1 || len(questions[0].Options) != 2 {
		t.Fatalf("unexpected questions %+v", questions)
	}
	if !mr.Exists("questions:m1") {
		t.Fatalf("expected cached key")
	}
	if ttl := mr.TTL("questions:m1"); ttl < time.Minute || ttl > 66*time.Second {
		t.Fatalf("expected ttl with jitter, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}

	cache.Invalidate(context.Background(), "m1")
	if mr.Exists("questions:m1") {
		t.Fatalf("expected key removed on invalidate")
	}
	if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
		t.Fatalf("get questions 3: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls.Load())
	}
}

func TestQuestionCacheFallsBackWhenRedisIsDown(t *testing.T) {
	mr, client := newTestClient(t)
	cache := NewQuestionCache(client, &countingLoader{}, time.Minute, nil)
	mr.Close()

	questions, err := cache.GetQuestions(context.Background(), "m1")
	if err != nil {
		t.Fatalf("expected loader fallback, got %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("unexpected questions %+v", questions)
	}
}

func TestProgressLockerExcludesSecondHolder(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewProgressLocker(client, time.Second)

	unlock, err := locker.Lock(context.Background(), "progress:u1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "progress:u1"); err == nil {
		t.Fatalf("second holder acquired a held lock")
	}

	unlock()
	unlock2, err := locker.Lock(context.Background(), "progress:u1")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	unlock2()
}

func TestProgressLockerReleaseKeepsForeignLock(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewProgressLocker(client, time.Second)

	unlock, err := locker.Lock(context.Background(), "progress:u1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// the lock expired and someone else took it
	mr.FastForward(2 * time.Second)
	if err := mr.Set("lock:progress:u1", "other-token"); err != nil {
		t.Fatalf("set: %v", err)
	}

	unlock()
	got, err := mr.Get("lock:progress:u1")
	if err != nil || got != "other-token" {
		t.Fatalf("expected foreign lock kept, got %q %v", got, err)
	}
}

func TestProgressStoreRoundTrip(t *testing.T) {
	_, client := newTestClient(t)
	store := NewProgressStore(client)
	ctx := context.Background()

	p, err := store.Get(ctx, "u1")
	if err != nil || p != nil {
		t.Fatalf("expected no document, got %+v %v", p, err)
	}

	p, err = store.Initialize(ctx, "u1", []string{"m1"})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	p.Modules[0].LessonsRead = append(p.Modules[0].LessonsRead, "l1")
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Modules) != 1 || got.Modules[0].LessonsRead[0] != "l1" {
		t.Fatalf("unexpected document %+v", got)
	}

	if _, err := store.Initialize(ctx, "u2", nil); err != nil {
		t.Fatalf("initialize u2: %v", err)
	}
	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 || all["u1.json"].UserID != "u1" {
		t.Fatalf("unexpected all %v", all)
	}
}

func TestProgressStoreRejectsInvalid(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewProgressStore(client)

	bad := app.NewProgress("u1", []string{"m1"}, time.Now())
	bad.Modules[0].Status = "unknown"
	if err := store.Save(context.Background(), bad); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected schema violation, got %v", err)
	}
	if mr.Exists("progress:u1") {
		t.Fatalf("invalid document must not be written")
	}

	if err := mr.Set("progress:u2", `{"userId":`); err != nil {
		t.Fatalf("set: %v", err)
	}
	_, err := store.Get(context.Background(), "u2")
	if err == nil {
		t.Fatalf("expected error for corrupt document")
	}
	if errors.Is(err, errors.NotValid) {
		t.Fatalf("corrupt stored document must not be reported as NotValid: %v", err)
	}
}

func TestQuestionCacheDropsLoadRacingInvalidate(t *testing.T) {
	mr, client := newTestClient(t)
	var (
		cache *QuestionCache
		calls atomic.Int32
	)
	cache = NewQuestionCache(client, memory.QuestionLoaderFunc(func(ctx context.Context, moduleID string) ([]domain.Question, error) {
		if calls.Add(1) == 1 {
			cache.Invalidate(ctx, moduleID)
		}
		return []domain.Question{{ID: "q1", ModuleID: moduleID, Type: domain.QuestionSingle, Order: 1}}, nil
	}), time.Minute, nil)

	if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if mr.Exists("questions:m1") {
		t.Fatalf("load that raced an invalidate must not be cached")
	}
	if got, _ := mr.Get("questions:gen:m1"); got != "1" {
		t.Fatalf("expected generation 1, got %q", got)
	}

	if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if !mr.Exists("questions:m1") {
		t.Fatalf("expected a clean load to be cached")
	}
	if _, err := cache.GetQuestions(context.Background(), "m1"); err != nil {
		t.Fatalf("get questions 3: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected two loads, got %d", calls.Load())
	}
}

type countingLoader struct {
	calls atomic.Int32
}

func (l *countingLoader) LoadQuestions(_ context.Context, moduleID string) ([]domain.Question, error) {
	l.calls.Add(1)
	return []domain.Question{{
		ID: "q1", ModuleID: moduleID, Title: "2 + 2", Type: domain.QuestionSingle, Order: 1,
		Options: []domain.AnswerOption{
			{ID: "o1", QuestionID: "q1", Text: "3", Order: 1},
			{ID: "o2", QuestionID: "q1", Text: "4", IsCorrect: true, Order: 2},
		},
	}}, nil
}
