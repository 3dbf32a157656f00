// Package postgres holds read paths that go straight to pgx instead of bun.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/juju/errors"

	"learning-platform/internal/domain"
)

const questionsQuery = `
SELECT q.id, q.module_id, q.title, COALESCE(q.description, ''), q.type, q.sort_order,
       o.id, o.text, o.is_correct, o.sort_order
FROM questions q
LEFT JOIN answer_options o ON o.question_id = q.id
WHERE q.module_id = $1
ORDER BY q.sort_order, o.sort_order`

// QuestionLoader loads a module's questions with their options in one query.
// It feeds the question caches.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, moduleID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, questionsQuery, moduleID)
	if err != nil {
		return nil, errors.Annotate(err, "load questions")
	}
	defer rows.Close()

	questions, err := scanQuestions(rows)
	if err != nil {
		return nil, errors.Annotate(err, "scan questions")
	}
	return questions, nil
}

// scanQuestions folds the joined rows back into questions. Rows arrive
// grouped by question.
func scanQuestions(rows pgx.Rows) ([]domain.Question, error) {
	questions := make([]domain.Question, 0)
	for rows.Next() {
		var (
			q         domain.Question
			qType     string
			optID     *string
			optText   *string
			optOK     *bool
			optOrder  *int64
			sortOrder int64
		)
		if err := rows.Scan(&q.ID, &q.ModuleID, &q.Title, &q.Description, &qType, &sortOrder,
			&optID, &optText, &optOK, &optOrder); err != nil {
			return nil, errors.Trace(err)
		}
		if n := len(questions); n == 0 || questions[n-1].ID != q.ID {
			q.Type = domain.QuestionType(qType)
			q.Order = int(sortOrder)
			q.Options = []domain.AnswerOption{}
			questions = append(questions, q)
		}
		if optID == nil {
			continue
		}
		last := &questions[len(questions)-1]
		opt := domain.AnswerOption{ID: *optID, QuestionID: last.ID}
		if optText != nil {
			opt.Text = *optText
		}
		if optOK != nil {
			opt.IsCorrect = *optOK
		}
		if optOrder != nil {
			opt.Order = int(*optOrder)
		}
		last.Options = append(last.Options, opt)
	}
	return questions, errors.Trace(rows.Err())
}
