package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learning-platform/internal/app"
	"learning-platform/internal/domain"
)

func TestProgressStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(t.TempDir(), nil)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	p := app.NewProgress("u1", []string{"m1", "m2"}, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	best := 80
	p.Modules[0].LessonsRead = []string{"l1", "l2"}
	p.Modules[0].Quiz.BestScorePercent = &best
	p.Modules[0].Status = domain.StatusPassed
	require.NoError(t, store.Save(ctx, p))

	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestProgressStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewProgressStore(dir, nil)
	for i := 0; i < 3; i++ {
		_, err := store.Initialize(ctx, "u1", []string{"m1"})
		require.NoError(t, err)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1.json", entries[0].Name())
}

func TestProgressStoreRejectsUnsafeUserIDs(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(t.TempDir(), nil)
	for _, id := range []string{"../evil", "a/b", `a\b`, "", ".."} {
		_, err := store.Get(ctx, id)
		assert.True(t, errors.Is(err, errors.NotValid), "id %q: %v", id, err)
	}
}

func TestProgressStoreCorruptDocument(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewProgressStore(dir, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1.json"), []byte(`{"userId":`), 0o644))
	_, err := store.Initialize(ctx, "u2", []string{"m1"})
	require.NoError(t, err)

	_, err = store.Get(ctx, "u1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errors.NotValid), "stored corruption is not a caller error: %v", err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "u3.json"), []byte(`{"userId": 7}`), 0o644))
	_, err = store.Get(ctx, "u3")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errors.NotValid), "schema failure on read: %v", err)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "u2.json")
}

func TestUploadsPut(t *testing.T) {
	dir := t.TempDir()
	uploads := NewUploads(dir, "")

	url, err := uploads.Put(context.Background(), app.FolderSubmissions, "submission_u1_a1_1.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/submissions/submission_u1_a1_1.pdf", url)

	raw, err := os.ReadFile(filepath.Join(dir, "submissions", "submission_u1_a1_1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(raw))

	url, err = uploads.Put(context.Background(), app.FolderAssignments, "a1_brief.pdf", []byte("brief"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/assignments/a1_brief.pdf", url)
	assert.FileExists(t, filepath.Join(dir, "assignments", "a1_brief.pdf"))

	_, err = uploads.Put(context.Background(), app.FolderSubmissions, "../escape.pdf", nil)
	assert.Error(t, err)
	_, err = uploads.Put(context.Background(), "..", "x.pdf", nil)
	assert.Error(t, err)
}

func TestBackupsWriteAndCleanup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backups := NewBackups(dir)
	now := time.Date(2026, 10, 14, 19, 0, 0, 123e6, time.UTC)
	backups.now = func() time.Time { return now }

	payload := domain.BackupPayload{CreatedAt: now, Users: []domain.User{{ID: "u1", PasswordHash: "secret"}}}
	snap, err := backups.WriteSnapshot(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, "snapshot_2026-10-14T19-00-00-123Z.json", filepath.Base(snap))
	require.NoError(t, os.Chtimes(snap, now, now))

	_, err = backups.WriteCurrent(ctx, payload)
	require.NoError(t, err)
	raw, err := backups.ReadCurrent(ctx)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotContains(t, string(raw), "secret", "password hashes never reach backups")

	old := filepath.Join(dir, "snapshot_2026-08-01T19-00-00-000Z.json")
	require.NoError(t, os.WriteFile(old, []byte("{}"), 0o644))
	require.NoError(t, os.Chtimes(old, now.AddDate(0, 0, -40), now.AddDate(0, 0, -40)))
	stray := filepath.Join(dir, "notes.json")
	require.NoError(t, os.WriteFile(stray, []byte("{}"), 0o644))
	require.NoError(t, os.Chtimes(stray, now.AddDate(0, 0, -40), now.AddDate(0, 0, -40)))

	removed, err := backups.Cleanup(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, snap)
	assert.FileExists(t, stray)
	assert.FileExists(t, filepath.Join(dir, "current.json"))
}

func TestBackupsReadCurrentMissing(t *testing.T) {
	_, err := NewBackups(t.TempDir()).ReadCurrent(context.Background())
	assert.True(t, errors.Is(err, errors.NotFound))
}
