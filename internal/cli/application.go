package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"learning-platform/internal/app"
	"learning-platform/internal/config"
	"learning-platform/internal/infra/filestore"
	"learning-platform/internal/infra/memory"
	pgloader "learning-platform/internal/infra/postgres"
	infraredis "learning-platform/internal/infra/redis"
	"learning-platform/internal/infra/sqldb"
	transport "learning-platform/internal/transport/http"
)

const serviceName = "learning-platform"

// application is the wired service graph shared by the subcommands.
type application struct {
	cfg     config.Config
	logger  *slog.Logger
	db      *bun.DB
	pool    *pgxpool.Pool
	redis   *redis.Client
	effects *app.Effects

	services transport.Services
}

func newApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	a := &application{cfg: cfg, logger: logger}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.wire()
	return a, nil
}

func (a *application) open(ctx context.Context) error {
	db, err := sqldb.Open(ctx, a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return errors.Trace(err)
	}
	a.db = db

	if a.cfg.Database.Driver == sqldb.DriverPostgres {
		a.pool, err = pgxpool.Connect(ctx, a.cfg.Database.DSN)
		if err != nil {
			return errors.Annotate(err, "connect pgx pool")
		}
	}

	if a.cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return errors.Annotatef(err, "ping redis %s", a.cfg.Redis.Addr)
		}
	} else if a.cfg.Progress.Backend == config.BackendRedis {
		return errors.NotValidf("progress backend redis without redis.addr")
	}
	return nil
}

func (a *application) wire() {
	cfg, logger := a.cfg, a.logger
	store := sqldb.NewStore(a.db)
	a.effects = app.NewEffects(logger)

	var loader memory.QuestionLoader = memory.QuestionLoaderFunc(store.ListQuestions)
	if a.pool != nil {
		loader = pgloader.NewQuestionLoader(a.pool)
	}

	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, redisTTL)
	var questions app.QuestionSource
	var locker app.Locker
	if a.redis != nil {
		questions = infraredis.NewQuestionCache(a.redis, loader, cacheTTL, logger)
		locker = infraredis.NewProgressLocker(a.redis, 0)
	} else {
		questions = memory.NewQuestionCache(loader, cacheTTL)
		locker = memory.NewKeyedLocker()
	}

	var progress app.ProgressStore
	if cfg.Progress.Backend == config.BackendRedis {
		progress = infraredis.NewProgressStore(a.redis)
	} else {
		progress = filestore.NewProgressStore(cfg.Progress.Dir, logger)
	}

	leaderboard := app.NewLeaderboardService(store, cfg.Leaderboard.Size)
	rating := app.NewRatingUpdater(store, a.effects, leaderboard, logger)
	backups := app.NewBackupService(app.BackupServiceDeps{
		Users: store, Curriculum: store, Results: store, Submissions: store,
		Progress: progress,
		Sink:     filestore.NewBackups(cfg.Backup.Dir),
		Effects:  a.effects,
		MaxAge:   cfg.BackupMaxAge(),
		Logger:   logger,
	})

	uploads := filestore.NewUploads(cfg.Uploads.Dir, "")
	a.services = transport.Services{
		Auth: app.NewAuthService(store, cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.SessionTTL, app.DefaultSessionTTL), logger),
		Quiz: app.NewQuizService(app.QuizServiceDeps{
			Curriculum: store, Questions: questions, Results: store, Users: store,
			Rating: rating, Progress: progress, Locker: locker,
			Threshold: cfg.Quiz.PassThresholdPercent, Logger: logger,
		}),
		Progress: app.NewProgressService(app.ProgressServiceDeps{
			Curriculum: store, Questions: questions, Results: store, Submissions: store,
			Progress: progress, Locker: locker, Threshold: cfg.Quiz.PassThresholdPercent,
		}),
		Assignments: app.NewAssignmentService(app.AssignmentServiceDeps{
			Curriculum: store, Submissions: store,
			Files:   uploads,
			Rating:  rating,
			Backups: backups, Progress: progress, Locker: locker,
			MaxSize: cfg.Uploads.MaxFileSize, Logger: logger,
		}),
		Curriculum: app.NewCurriculumService(app.CurriculumServiceDeps{
			Repo: store, Questions: questions, Files: uploads, Backups: backups,
			MaxAttachmentSize: cfg.Uploads.MaxFileSize, Logger: logger,
		}),
		Leaderboard: leaderboard,
		Backups:     backups,
	}
}

// Close waits for pending effects and releases every connection.
func (a *application) Close() {
	if a.effects != nil {
		a.effects.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", slog.String("error", err.Error()))
		}
	}
}
