package app

import (
	"context"
	"time"

	"github.com/juju/errors"

	"learning-platform/internal/domain"
)

// GetOrCreateProgress loads the user's document, creating it on first access.
// Entries for modules added since the last save are appended; existing
// entries are left untouched.
func GetOrCreateProgress(ctx context.Context, store ProgressStore, userID string, moduleIDs []string, now time.Time) (*domain.Progress, error) {
	progress, err := store.Get(ctx, userID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if progress == nil {
		progress, err = store.Initialize(ctx, userID, moduleIDs)
		return progress, errors.Trace(err)
	}

	known := make(map[string]struct{}, len(progress.Modules))
	for _, m := range progress.Modules {
		known[m.ModuleID] = struct{}{}
	}
	added := false
	for _, id := range moduleIDs {
		if _, ok := known[id]; ok {
			continue
		}
		progress.Modules = append(progress.Modules, domain.NewModuleProgress(id))
		known[id] = struct{}{}
		added = true
	}
	if added {
		progress.UpdatedAt = now.UTC()
		if err := store.Save(ctx, progress); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return progress, nil
}

// NewProgress builds the initial document: every module available, no history.
func NewProgress(userID string, moduleIDs []string, now time.Time) *domain.Progress {
	p := &domain.Progress{
		UserID:    userID,
		UpdatedAt: now.UTC(),
		Modules:   make([]domain.ModuleProgress, 0, len(moduleIDs)),
	}
	for _, id := range moduleIDs {
		p.Modules = append(p.Modules, domain.NewModuleProgress(id))
	}
	return p
}

// progressKeeper runs progress mutations under the per-user lock.
type progressKeeper struct {
	store  ProgressStore
	locker Locker
	now    func() time.Time
}

// update loads (or creates) the user's progress, runs fn and saves the result
// when fn reports a change.
func (k progressKeeper) update(ctx context.Context, userID string, moduleIDs []string, fn func(p *domain.Progress) (bool, error)) (*domain.Progress, error) {
	unlock, err := k.locker.Lock(ctx, "progress:"+userID)
	if err != nil {
		return nil, errors.Annotate(err, "lock progress")
	}
	defer unlock()

	progress, err := GetOrCreateProgress(ctx, k.store, userID, moduleIDs, k.now())
	if err != nil {
		return nil, errors.Trace(err)
	}
	changed, err := fn(progress)
	if err != nil {
		return nil, err
	}
	if changed {
		progress.UpdatedAt = k.now().UTC()
		if err := k.store.Save(ctx, progress); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return progress, nil
}
