package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"

	"learning-platform/internal/domain"
)

const (
	currentBackupName = "current.json"
	snapshotPrefix    = "snapshot_"
)

// Backups writes backup payloads as indented JSON files in dir.
type Backups struct {
	dir string
	now func() time.Time
}

func NewBackups(dir string) *Backups {
	return &Backups{dir: dir, now: time.Now}
}

func (b *Backups) WriteCurrent(_ context.Context, payload domain.BackupPayload) (string, error) {
	dst := filepath.Join(b.dir, currentBackupName)
	return dst, errors.Trace(b.write(dst, payload))
}

// WriteSnapshot writes snapshot_<timestamp>.json. The timestamp is ISO-8601
// in UTC with ':' and '.' replaced by '-'.
func (b *Backups) WriteSnapshot(_ context.Context, payload domain.BackupPayload) (string, error) {
	dst := filepath.Join(b.dir, SnapshotName(b.now()))
	return dst, errors.Trace(b.write(dst, payload))
}

func (b *Backups) ReadCurrent(_ context.Context) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(b.dir, currentBackupName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.NotFoundf("current backup")
	}
	return raw, errors.Annotate(err, "read current backup")
}

// Cleanup removes snapshot files last modified more than maxAge ago.
func (b *Backups) Cleanup(_ context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(b.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Annotate(err, "list backups")
	}
	cutoff := b.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(b.dir, name)); err != nil {
				return removed, errors.Annotatef(err, "remove %s", name)
			}
			removed++
		}
	}
	return removed, nil
}

func (b *Backups) write(dst string, payload domain.BackupPayload) error {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	return writeFileAtomic(dst, raw, 0o644)
}

// SnapshotName is the file name of a snapshot taken at t.
func SnapshotName(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	return snapshotPrefix + strings.NewReplacer(":", "-", ".", "-").Replace(stamp) + ".json"
}
