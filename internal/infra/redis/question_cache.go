package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"learning-platform/internal/domain"
	"learning-platform/internal/infra/memory"
)

// QuestionCache caches a module's questions as one JSON value per module
// and falls back to the loader on a miss. It implements app.QuestionSource.
//
//	SET questions:{moduleID} <json> PX <ttl>
//	INCR questions:gen:{moduleID}   on invalidate
type QuestionCache struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	logger *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// storeIfCurrent writes the value only while the generation still matches
// the one read before loading, so a load racing an invalidation is dropped.
var storeIfCurrent = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[2] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

func NewQuestionCache(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration, logger *slog.Logger) *QuestionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) GetQuestions(ctx context.Context, moduleID string) ([]domain.Question, error) {
	if questions, ok := c.cached(ctx, moduleID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(moduleID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.cached(ctx, moduleID); ok {
			return questions, nil
		}
		gen, err := c.client.Get(ctx, c.genKey(moduleID)).Result()
		switch {
		case errors.Is(err, redis.Nil):
			gen = "0"
		case err != nil:
			c.logger.Warn("question cache read failed", slog.String("module_id", moduleID), slog.String("error", err.Error()))
			gen = ""
		}
		questions, err := c.loader.LoadQuestions(ctx, moduleID)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(questions); err == nil && c.ttl > 0 && gen != "" {
			keys := []string{c.key(moduleID), c.genKey(moduleID)}
			ttl := c.ttlWithJitter().Milliseconds()
			if err := storeIfCurrent.Run(ctx, c.client, keys, raw, gen, ttl).Err(); err != nil {
				c.logger.Warn("question cache write failed", slog.String("module_id", moduleID), slog.String("error", err.Error()))
			}
		}
		return questions, nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return result.([]domain.Question), nil
}

// Invalidate deletes the cached value so every instance reloads it.
func (c *QuestionCache) Invalidate(ctx context.Context, moduleID string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey(moduleID))
		pipe.Del(ctx, c.key(moduleID))
		return nil
	})
	if err != nil {
		c.logger.Warn("question cache invalidate failed", slog.String("module_id", moduleID), slog.String("error", err.Error()))
	}
	c.sf.Forget(moduleID)
}

// cached treats redis errors as a miss; the loader is the source of truth.
func (c *QuestionCache) cached(ctx context.Context, moduleID string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, c.key(moduleID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("question cache read failed", slog.String("module_id", moduleID), slog.String("error", err.Error()))
		}
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) key(moduleID string) string {
	return "questions:" + moduleID
}

func (c *QuestionCache) genKey(moduleID string) string {
	return "questions:gen:" + moduleID
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
