package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"

	"learning-platform/internal/app"
	"learning-platform/internal/domain"
	"learning-platform/internal/schema"
)

const progressPrefix = "progress:"

// ProgressStore keeps one JSON document per user under progress:{userID}.
type ProgressStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewProgressStore(client *redis.Client) *ProgressStore {
	return &ProgressStore{client: client, now: time.Now}
}

func (s *ProgressStore) Get(ctx context.Context, userID string) (*domain.Progress, error) {
	raw, err := s.client.Get(ctx, progressPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "get progress of %s", userID)
	}
	return decode(raw)
}

func (s *ProgressStore) Save(ctx context.Context, progress *domain.Progress) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return errors.Trace(err)
	}
	if err := schema.ValidateProgress(raw); err != nil {
		return errors.Trace(err)
	}
	// SET replaces the value in one step
	return errors.Annotate(s.client.Set(ctx, progressPrefix+progress.UserID, raw, 0).Err(), "save progress")
}

func (s *ProgressStore) Initialize(ctx context.Context, userID string, moduleIDs []string) (*domain.Progress, error) {
	p := app.NewProgress(userID, moduleIDs, s.now())
	if err := s.Save(ctx, p); err != nil {
		return nil, errors.Trace(err)
	}
	return p, nil
}

// All scans every progress key. Keys are reported as <userID>.json to match
// the file layout used in backups.
func (s *ProgressStore) All(ctx context.Context) (map[string]domain.Progress, error) {
	all := make(map[string]domain.Progress)
	iter := s.client.Scan(ctx, 0, progressPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, errors.Annotatef(err, "get %s", key)
		}
		p, err := decode(raw)
		if err != nil {
			continue
		}
		all[strings.TrimPrefix(key, progressPrefix)+".json"] = *p
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Annotate(err, "scan progress keys")
	}
	return all, nil
}

// decode reads a stored document. Failures are reported as plain errors,
// not NotValid: a broken document on disk is not the caller's fault.
func decode(raw []byte) (*domain.Progress, error) {
	if err := schema.ValidateProgress(raw); err != nil {
		return nil, errors.Errorf("stored progress is corrupt: %v", err)
	}
	var p domain.Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Errorf("decode stored progress: %v", err)
	}
	return &p, nil
}
