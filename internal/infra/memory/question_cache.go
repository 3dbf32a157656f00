package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/juju/errors"
	"golang.org/x/sync/singleflight"

	"learning-platform/internal/domain"
)

// QuestionLoader fetches a module's questions from the backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, moduleID string) ([]domain.Question, error)
}

// QuestionLoaderFunc adapts a plain function to QuestionLoader.
type QuestionLoaderFunc func(ctx context.Context, moduleID string) ([]domain.Question, error)

func (f QuestionLoaderFunc) LoadQuestions(ctx context.Context, moduleID string) ([]domain.Question, error) {
	return f(ctx, moduleID)
}

// QuestionCache caches module questions with a TTL to avoid repeated DB hits.
// It implements app.QuestionSource.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuestions
	// gen is bumped by Invalidate; a load only caches its result when the
	// generation is unchanged since it began.
	gen map[string]uint64
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
		gen:    make(map[string]uint64),
	}
}

func (c *QuestionCache) GetQuestions(ctx context.Context, moduleID string) ([]domain.Question, error) {
	if questions, ok := c.lookup(moduleID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(moduleID, func() (interface{}, error) {
		if questions, ok := c.lookup(moduleID); ok {
			return questions, nil
		}
		now := c.clock()
		c.mu.RLock()
		gen := c.gen[moduleID]
		c.mu.RUnlock()
		questions, err := c.loader.LoadQuestions(ctx, moduleID)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.mu.Lock()
			if c.gen[moduleID] == gen {
				c.cache[moduleID] = cachedQuestions{
					questions: questions,
					expiresAt: now.Add(c.ttlWithJitter()),
				}
			}
			c.mu.Unlock()
		}
		return questions, nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached questions of moduleID.
func (c *QuestionCache) Invalidate(_ context.Context, moduleID string) {
	c.mu.Lock()
	delete(c.cache, moduleID)
	c.gen[moduleID]++
	c.mu.Unlock()
	c.sf.Forget(moduleID)
}

func (c *QuestionCache) lookup(moduleID string) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[moduleID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return entry.questions, true
}

// ttlWithJitter must be called with mu held for writing.
func (c *QuestionCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
