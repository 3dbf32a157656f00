package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 50, cfg.Quiz.PassThresholdPercent)
	assert.Equal(t, int64(50<<20), cfg.Uploads.MaxFileSize)
	assert.Equal(t, "0 19 * * *", cfg.Backup.SnapshotSchedule)
	assert.Equal(t, "0 20 * * 0", cfg.Backup.CleanupSchedule)
	assert.Equal(t, 30*24*time.Hour, cfg.BackupMaxAge())
	assert.Equal(t, BackendFile, cfg.Progress.Backend)
	assert.Equal(t, 10, cfg.Leaderboard.Size)
}

func TestLoadReadsYAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
database:
  driver: postgres
  dsn: postgres://from-file
quiz:
  passThresholdPercent: 70
  cacheTTL: 1m
backup:
  maxAgeDays: 7
`)
	t.Setenv("DATABASE_DSN", "postgres://from-env")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://from-env", cfg.Database.DSN)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 70, cfg.Quiz.PassThresholdPercent)
	assert.Equal(t, time.Minute, TTLDuration(cfg.Quiz.CacheTTL, time.Hour))
	assert.Equal(t, 7*24*time.Hour, cfg.BackupMaxAge())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, time.Hour, TTLDuration("", time.Hour))
	assert.Equal(t, time.Hour, TTLDuration("bogus", time.Hour))
	assert.Equal(t, 90*time.Second, TTLDuration("90s", time.Hour))
}
