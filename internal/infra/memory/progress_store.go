package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/juju/errors"

	"learning-platform/internal/app"
	"learning-platform/internal/domain"
	"learning-platform/internal/schema"
)

// ProgressStore keeps encoded progress documents in a map.
type ProgressStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
	now  func() time.Time
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{docs: make(map[string][]byte), now: time.Now}
}

func (s *ProgressStore) Get(_ context.Context, userID string) (*domain.Progress, error) {
	s.mu.RLock()
	raw, ok := s.docs[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var p domain.Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Annotatef(err, "decode progress of %s", userID)
	}
	return &p, nil
}

func (s *ProgressStore) Save(_ context.Context, progress *domain.Progress) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return errors.Trace(err)
	}
	if err := schema.ValidateProgress(raw); err != nil {
		return errors.Trace(err)
	}
	s.mu.Lock()
	s.docs[progress.UserID] = raw
	s.mu.Unlock()
	return nil
}

func (s *ProgressStore) Initialize(ctx context.Context, userID string, moduleIDs []string) (*domain.Progress, error) {
	p := app.NewProgress(userID, moduleIDs, s.now())
	if err := s.Save(ctx, p); err != nil {
		return nil, errors.Trace(err)
	}
	return p, nil
}

func (s *ProgressStore) All(ctx context.Context) (map[string]domain.Progress, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	all := make(map[string]domain.Progress, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if p != nil {
			all[id+".json"] = *p
		}
	}
	return all, nil
}
