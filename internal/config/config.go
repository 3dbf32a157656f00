package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret  string `yaml:"jwtSecret"`
		SessionTTL string `yaml:"sessionTTL"`
	} `yaml:"auth"`
	Quiz struct {
		PassThresholdPercent int    `yaml:"passThresholdPercent"`
		CacheTTL             string `yaml:"cacheTTL"`
	} `yaml:"quiz"`
	Progress struct {
		Dir     string `yaml:"dir"`
		Backend string `yaml:"backend"`
	} `yaml:"progress"`
	Uploads struct {
		Dir         string `yaml:"dir"`
		MaxFileSize int64  `yaml:"maxFileSize"`
	} `yaml:"uploads"`
	Backup struct {
		Dir              string `yaml:"dir"`
		SnapshotSchedule string `yaml:"snapshotSchedule"`
		CleanupSchedule  string `yaml:"cleanupSchedule"`
		MaxAgeDays       int    `yaml:"maxAgeDays"`
	} `yaml:"backup"`
	Leaderboard struct {
		Size int `yaml:"size"`
	} `yaml:"leaderboard"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

const (
	BackendFile  = "file"
	BackendRedis = "redis"

	DefaultJWTSecret = "dev-secret"
)

// Load reads .env (if present), then the YAML config at path, then applies
// environment overrides and defaults. A missing config file leaves every
// field at its default.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, errors.Annotate(err, "load .env")
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, errors.Annotatef(err, "read config %s", path)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Annotatef(err, "parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PASS_THRESHOLD_PERCENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.NotValidf("PASS_THRESHOLD_PERCENT %q", v)
		}
		c.Quiz.PassThresholdPercent = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Port, "8080")
	setDefault(&c.Database.Driver, "sqlite")
	setDefault(&c.Database.DSN, "file:data/app.db?cache=shared")
	setDefault(&c.Redis.TTL, "10m")
	setDefault(&c.Auth.JWTSecret, DefaultJWTSecret)
	setDefault(&c.Auth.SessionTTL, "72h")
	setDefault(&c.Quiz.CacheTTL, "10m")
	setDefault(&c.Progress.Dir, "data/progress")
	setDefault(&c.Progress.Backend, BackendFile)
	setDefault(&c.Uploads.Dir, "data/uploads")
	setDefault(&c.Backup.Dir, "data/backups")
	setDefault(&c.Backup.SnapshotSchedule, "0 19 * * *")
	setDefault(&c.Backup.CleanupSchedule, "0 20 * * 0")
	setDefault(&c.Log.Level, "info")
	if c.Quiz.PassThresholdPercent <= 0 || c.Quiz.PassThresholdPercent > 100 {
		c.Quiz.PassThresholdPercent = 50
	}
	if c.Uploads.MaxFileSize <= 0 {
		c.Uploads.MaxFileSize = 50 << 20
	}
	if c.Backup.MaxAgeDays <= 0 {
		c.Backup.MaxAgeDays = 30
	}
	if c.Leaderboard.Size <= 0 {
		c.Leaderboard.Size = 10
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// BackupMaxAge is backup.maxAgeDays as a duration.
func (c Config) BackupMaxAge() time.Duration {
	return time.Duration(c.Backup.MaxAgeDays) * 24 * time.Hour
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
