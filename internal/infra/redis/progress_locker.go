package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockRetry = 25 * time.Millisecond
)

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ProgressLocker is an app.Locker shared by every instance using the same
// redis. A crashed holder's lock expires after ttl.
type ProgressLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewProgressLocker(client *redis.Client, ttl time.Duration) *ProgressLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &ProgressLocker{client: client, ttl: ttl, retry: defaultLockRetry}
}

// Lock polls SET NX PX until it succeeds or ctx is done.
func (l *ProgressLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lockKey := "lock:" + key
	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Annotatef(err, "acquire %s", lockKey)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Annotatef(ctx.Err(), "acquire %s", lockKey)
		case <-timer.C:
		}
	}

	return func() {
		// release even when the request context is already cancelled
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err()
	}, nil
}
