package filestore

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"

	"learning-platform/internal/app"
	"learning-platform/internal/domain"
	"learning-platform/internal/schema"
)

// ProgressStore keeps one <userId>.json document per user in dir.
type ProgressStore struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

func NewProgressStore(dir string, logger *slog.Logger) *ProgressStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressStore{dir: dir, logger: logger, now: time.Now}
}

func (s *ProgressStore) path(userID string) (string, error) {
	if err := safeName(userID); err != nil {
		return "", errors.Annotate(err, "user id")
	}
	return filepath.Join(s.dir, userID+".json"), nil
}

// Get returns nil when the user has no document. A document that fails to
// decode or validate is an error.
func (s *ProgressStore) Get(_ context.Context, userID string) (*domain.Progress, error) {
	path, err := s.path(userID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "read progress of %s", userID)
	}
	return decodeProgress(raw)
}

func (s *ProgressStore) Save(_ context.Context, progress *domain.Progress) error {
	path, err := s.path(progress.UserID)
	if err != nil {
		return errors.Trace(err)
	}
	raw, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	if err := schema.ValidateProgress(raw); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(writeFileAtomic(path, raw, 0o644))
}

func (s *ProgressStore) Initialize(ctx context.Context, userID string, moduleIDs []string) (*domain.Progress, error) {
	p := app.NewProgress(userID, moduleIDs, s.now())
	if err := s.Save(ctx, p); err != nil {
		return nil, errors.Trace(err)
	}
	return p, nil
}

// All reads every document in dir keyed by file name. Unreadable files are
// logged and skipped so one bad document does not block a backup.
func (s *ProgressStore) All(_ context.Context) (map[string]domain.Progress, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]domain.Progress{}, nil
	}
	if err != nil {
		return nil, errors.Annotate(err, "list progress dir")
	}
	all := make(map[string]domain.Progress, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err == nil {
			var p *domain.Progress
			if p, err = decodeProgress(raw); err == nil {
				all[name] = *p
				continue
			}
		}
		s.logger.Warn("skipping progress file", slog.String("file", name), slog.String("error", err.Error()))
	}
	return all, nil
}

// decodeProgress reads a stored document. Failures are reported as plain errors,
// not NotValid: a broken document on disk is not the caller's fault.
func decodeProgress(raw []byte) (*domain.Progress, error) {
	if err := schema.ValidateProgress(raw); err != nil {
		return nil, errors.Errorf("stored progress is corrupt: %v", err)
	}
	var p domain.Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Errorf("decode stored progress: %v", err)
	}
	return &p, nil
}
