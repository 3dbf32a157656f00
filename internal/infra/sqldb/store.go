package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/juju/errors"
	"github.com/uptrace/bun"

	"learning-platform/internal/domain"
)

// Store implements the app repositories on top of bun.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB exposes the handle for migrations and health checks.
func (s *Store) DB() *bun.DB { return s.db }

// notFound maps sql.ErrNoRows to the given sentinel.
func notFound(err error, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return errors.Trace(err)
}

func mustAffect(res sql.Result, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Trace(err)
	}
	if n == 0 {
		return sentinel
	}
	return nil
}

// users

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	_, err := s.db.NewInsert().Model(userFromDomain(user)).Exec(ctx)
	return errors.Annotate(err, "insert user")
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u User
	if err := s.db.NewSelect().Model(&u).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.User{}, notFound(err, domain.ErrUserNotFound)
	}
	return u.toDomain(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var u User
	if err := s.db.NewSelect().Model(&u).Where("email = ?", email).Scan(ctx); err != nil {
		return domain.User{}, notFound(err, domain.ErrUserNotFound)
	}
	return u.toDomain(), nil
}

// IncrementRating is a single UPDATE so concurrent increments never lose writes.
func (s *Store) IncrementRating(ctx context.Context, id string, delta int) error {
	res, err := s.db.NewUpdate().Model((*User)(nil)).
		Set("rating = rating + ?", delta).
		Set("updated_at = ?", s.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Annotate(err, "increment rating")
	}
	return mustAffect(res, domain.ErrUserNotFound)
}

func (s *Store) TopStudents(ctx context.Context, limit int) ([]domain.User, error) {
	var rows []User
	err := s.db.NewSelect().Model(&rows).
		Where("is_admin = ?", false).
		OrderExpr("rating DESC, created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "top students")
	}
	return mapSlice(rows, User.toDomain), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	var rows []User
	if err := s.db.NewSelect().Model(&rows).Order("created_at ASC").Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list users")
	}
	return mapSlice(rows, User.toDomain), nil
}

// modules

func (s *Store) ListModules(ctx context.Context, activeOnly bool) ([]domain.Module, error) {
	var rows []Module
	q := s.db.NewSelect().Model(&rows).Order("sort_order ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list modules")
	}
	return mapSlice(rows, Module.toDomain), nil
}

func (s *Store) GetModule(ctx context.Context, id string) (domain.Module, error) {
	var m Module
	if err := s.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Module{}, notFound(err, domain.ErrModuleNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) GetModuleByOrder(ctx context.Context, order int) (domain.Module, bool, error) {
	var m Module
	err := s.db.NewSelect().Model(&m).Where("sort_order = ?", order).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Module{}, false, nil
	}
	if err != nil {
		return domain.Module{}, false, errors.Trace(err)
	}
	return m.toDomain(), true, nil
}

func (s *Store) CreateModule(ctx context.Context, module domain.Module) error {
	_, err := s.db.NewInsert().Model(moduleFromDomain(module)).Exec(ctx)
	return errors.Annotate(err, "insert module")
}

func (s *Store) UpdateModule(ctx context.Context, module domain.Module) error {
	res, err := s.db.NewUpdate().Model(moduleFromDomain(module)).
		Column("title", "description", "sort_order", "is_active", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.Annotate(err, "update module")
	}
	return mustAffect(res, domain.ErrModuleNotFound)
}

// DeleteModule removes the module and everything it owns in one transaction.
func (s *Store) DeleteModule(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		questionIDs := tx.NewSelect().Model((*Question)(nil)).Column("id").Where("module_id = ?", id)
		assignmentIDs := tx.NewSelect().Model((*Assignment)(nil)).Column("id").Where("module_id = ?", id)

		steps := []*bun.DeleteQuery{
			tx.NewDelete().Model((*AnswerOption)(nil)).Where("question_id IN (?)", questionIDs),
			tx.NewDelete().Model((*Question)(nil)).Where("module_id = ?", id),
			tx.NewDelete().Model((*Lesson)(nil)).Where("module_id = ?", id),
			tx.NewDelete().Model((*Submission)(nil)).Where("assignment_id IN (?)", assignmentIDs),
			tx.NewDelete().Model((*Assignment)(nil)).Where("module_id = ?", id),
		}
		for _, q := range steps {
			if _, err := q.Exec(ctx); err != nil {
				return errors.Annotate(err, "delete module contents")
			}
		}
		res, err := tx.NewDelete().Model((*Module)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return errors.Annotate(err, "delete module")
		}
		return mustAffect(res, domain.ErrModuleNotFound)
	})
}

// lessons

func (s *Store) ListLessons(ctx context.Context, moduleID string) ([]domain.Lesson, error) {
	var rows []Lesson
	if err := s.db.NewSelect().Model(&rows).Where("module_id = ?", moduleID).Order("sort_order ASC").Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list lessons")
	}
	return mapSlice(rows, Lesson.toDomain), nil
}

func (s *Store) ListAllLessons(ctx context.Context) ([]domain.Lesson, error) {
	var rows []Lesson
	if err := s.db.NewSelect().Model(&rows).Order("module_id ASC", "sort_order ASC").Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list lessons")
	}
	return mapSlice(rows, Lesson.toDomain), nil
}

func (s *Store) GetLesson(ctx context.Context, moduleID, lessonID string) (domain.Lesson, error) {
	var l Lesson
	err := s.db.NewSelect().Model(&l).Where("id = ?", lessonID).Where("module_id = ?", moduleID).Scan(ctx)
	if err != nil {
		return domain.Lesson{}, notFound(err, domain.ErrLessonNotFound)
	}
	return l.toDomain(), nil
}

func (s *Store) CreateLesson(ctx context.Context, lesson domain.Lesson) error {
	_, err := s.db.NewInsert().Model(&Lesson{
		ID: lesson.ID, ModuleID: lesson.ModuleID, Title: lesson.Title,
		ContentHTML: lesson.ContentHTML, GoogleDocURL: lesson.GoogleDocURL, SortOrder: lesson.Order,
	}).Exec(ctx)
	return errors.Annotate(err, "insert lesson")
}

// questions

func (s *Store) selectQuestions(rows *[]Question) *bun.SelectQuery {
	return s.db.NewSelect().Model(rows).
		Relation("Options", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("sort_order ASC")
		})
}

func (s *Store) ListQuestions(ctx context.Context, moduleID string) ([]domain.Question, error) {
	var rows []Question
	if err := s.selectQuestions(&rows).Where("question.module_id = ?", moduleID).Order("question.sort_order ASC").Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list questions")
	}
	return mapSlice(rows, Question.toDomain), nil
}

func (s *Store) ListAllQuestions(ctx context.Context) ([]domain.Question, error) {
	var rows []Question
	if err := s.selectQuestions(&rows).Order("question.module_id ASC", "question.sort_order ASC").Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list questions")
	}
	return mapSlice(rows, Question.toDomain), nil
}

func (s *Store) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	var rows []Question
	if err := s.selectQuestions(&rows).Where("question.id = ?", id).Scan(ctx); err != nil {
		return domain.Question{}, errors.Trace(err)
	}
	if len(rows) == 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return rows[0].toDomain(), nil
}

func (s *Store) CreateQuestion(ctx context.Context, question domain.Question) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return insertQuestion(ctx, tx, question)
	})
}

func (s *Store) CreateQuestions(ctx context.Context, questions []domain.Question) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, q := range questions {
			if err := insertQuestion(ctx, tx, q); err != nil {
				return errors.Annotatef(err, "question %q", q.Title)
			}
		}
		return nil
	})
}

func insertQuestion(ctx context.Context, db bun.IDB, question domain.Question) error {
	row := &Question{
		ID: question.ID, ModuleID: question.ModuleID, Title: question.Title,
		Description: question.Description, Type: string(question.Type), SortOrder: question.Order,
	}
	if _, err := db.NewInsert().Model(row).Exec(ctx); err != nil {
		return errors.Annotate(err, "insert question")
	}
	if len(question.Options) == 0 {
		return nil
	}
	options := make([]AnswerOption, 0, len(question.Options))
	for _, o := range question.Options {
		options = append(options, AnswerOption{
			ID: o.ID, QuestionID: question.ID, Text: o.Text, IsCorrect: o.IsCorrect, SortOrder: o.Order,
		})
	}
	_, err := db.NewInsert().Model(&options).Exec(ctx)
	return errors.Annotate(err, "insert options")
}

func (s *Store) CreateAnswerOption(ctx context.Context, option domain.AnswerOption) error {
	exists, err := s.db.NewSelect().Model((*Question)(nil)).Where("id = ?", option.QuestionID).Exists(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if !exists {
		return domain.ErrQuestionNotFound
	}
	_, err = s.db.NewInsert().Model(&AnswerOption{
		ID: option.ID, QuestionID: option.QuestionID, Text: option.Text, IsCorrect: option.IsCorrect, SortOrder: option.Order,
	}).Exec(ctx)
	return errors.Annotate(err, "insert option")
}

func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*AnswerOption)(nil)).Where("question_id = ?", id).Exec(ctx); err != nil {
			return errors.Annotate(err, "delete options")
		}
		res, err := tx.NewDelete().Model((*Question)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return errors.Annotate(err, "delete question")
		}
		return mustAffect(res, domain.ErrQuestionNotFound)
	})
}

// assignments

func (s *Store) ListAssignments(ctx context.Context, moduleID string) ([]domain.Assignment, error) {
	var rows []Assignment
	if err := s.db.NewSelect().Model(&rows).Where("module_id = ?", moduleID).Order("created_at ASC").Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list assignments")
	}
	return mapSlice(rows, Assignment.toDomain), nil
}

func (s *Store) ListAllAssignments(ctx context.Context) ([]domain.Assignment, error) {
	var rows []Assignment
	if err := s.db.NewSelect().Model(&rows).Order("module_id ASC", "created_at ASC").Scan(ctx); err != nil {
		return nil, errors.Annotate(err, "list assignments")
	}
	return mapSlice(rows, Assignment.toDomain), nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	var a Assignment
	if err := s.db.NewSelect().Model(&a).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Assignment{}, notFound(err, domain.ErrAssignmentNotFound)
	}
	return a.toDomain(), nil
}

func (s *Store) CreateAssignment(ctx context.Context, assignment domain.Assignment) error {
	_, err := s.db.NewInsert().Model(&Assignment{
		ID: assignment.ID, ModuleID: assignment.ModuleID, Title: assignment.Title,
		Description: assignment.Description, FileURL: assignment.FileURL, CreatedAt: assignment.CreatedAt,
	}).Exec(ctx)
	return errors.Annotate(err, "insert assignment")
}

func (s *Store) UpdateAssignment(ctx context.Context, assignment domain.Assignment) error {
	res, err := s.db.NewUpdate().Model(&Assignment{
		ID: assignment.ID, ModuleID: assignment.ModuleID, Title: assignment.Title,
		Description: assignment.Description, FileURL: assignment.FileURL,
	}).
		Column("module_id", "title", "description", "file_url").
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.Annotate(err, "update assignment")
	}
	return mustAffect(res, domain.ErrAssignmentNotFound)
}

func (s *Store) DeleteAssignment(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Submission)(nil)).Where("assignment_id = ?", id).Exec(ctx); err != nil {
			return errors.Annotate(err, "delete submissions")
		}
		res, err := tx.NewDelete().Model((*Assignment)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return errors.Annotate(err, "delete assignment")
		}
		return mustAffect(res, domain.ErrAssignmentNotFound)
	})
}

func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
