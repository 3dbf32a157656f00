package migrations

import (
	"context"

	"github.com/juju/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"learning-platform/internal/infra/sqldb"
)

var Migrations = migrate.NewMigrations()

var indexes = []struct {
	name, table string
	columns     []string
}{
	{"idx_lessons_module", "lessons", []string{"module_id", "sort_order"}},
	{"idx_questions_module", "questions", []string{"module_id", "sort_order"}},
	{"idx_answer_options_question", "answer_options", []string{"question_id"}},
	{"idx_assignments_module", "assignments", []string{"module_id"}},
	{"idx_quiz_results_user_module", "quiz_results", []string{"user_id", "module_id"}},
	{"idx_users_rating", "users", []string{"rating"}},
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			for _, model := range sqldb.Models {
				if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
					return errors.Annotatef(err, "create table for %T", model)
				}
			}
			for _, ix := range indexes {
				_, err := db.NewCreateIndex().
					Table(ix.table).
					Index(ix.name).
					Column(ix.columns...).
					IfNotExists().
					Exec(ctx)
				if err != nil {
					return errors.Annotatef(err, "create index %s", ix.name)
				}
			}
			return nil
		},
		func(ctx context.Context, db *bun.DB) error {
			for i := len(sqldb.Models) - 1; i >= 0; i-- {
				if _, err := db.NewDropTable().Model(sqldb.Models[i]).IfExists().Exec(ctx); err != nil {
					return errors.Annotatef(err, "drop table for %T", sqldb.Models[i])
				}
			}
			return nil
		},
	)
}
