package sqldb

import (
	"time"

	"github.com/uptrace/bun"

	"learning-platform/internal/domain"
)

// Models lists every table in creation order.
var Models = []any{
	(*User)(nil),
	(*Module)(nil),
	(*Lesson)(nil),
	(*Question)(nil),
	(*AnswerOption)(nil),
	(*Assignment)(nil),
	(*Submission)(nil),
	(*QuizResult)(nil),
}

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID           string    `bun:"id,pk"`
	Email        string    `bun:"email,notnull,unique"`
	Name         string    `bun:"name,notnull"`
	PasswordHash string    `bun:"password_hash,notnull"`
	IsAdmin      bool      `bun:"is_admin,notnull,default:false"`
	Rating       int       `bun:"rating,notnull,default:0"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

func (u User) toDomain() domain.User {
	return domain.User{
		ID: u.ID, Email: u.Email, Name: u.Name, PasswordHash: u.PasswordHash,
		IsAdmin: u.IsAdmin, Rating: u.Rating, CreatedAt: u.CreatedAt.UTC(), UpdatedAt: u.UpdatedAt.UTC(),
	}
}

func userFromDomain(u domain.User) *User {
	return &User{
		ID: u.ID, Email: u.Email, Name: u.Name, PasswordHash: u.PasswordHash,
		IsAdmin: u.IsAdmin, Rating: u.Rating, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
}

type Module struct {
	bun.BaseModel `bun:"table:modules"`

	ID          string    `bun:"id,pk"`
	Title       string    `bun:"title,notnull"`
	Description string    `bun:"description"`
	SortOrder   int       `bun:"sort_order,notnull,unique"`
	IsActive    bool      `bun:"is_active,notnull,default:true"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func (m Module) toDomain() domain.Module {
	return domain.Module{
		ID: m.ID, Title: m.Title, Description: m.Description, Order: m.SortOrder,
		IsActive: m.IsActive, CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func moduleFromDomain(m domain.Module) *Module {
	return &Module{
		ID: m.ID, Title: m.Title, Description: m.Description, SortOrder: m.Order,
		IsActive: m.IsActive, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

type Lesson struct {
	bun.BaseModel `bun:"table:lessons"`

	ID           string `bun:"id,pk"`
	ModuleID     string `bun:"module_id,notnull"`
	Title        string `bun:"title,notnull"`
	ContentHTML  string `bun:"content_html"`
	GoogleDocURL string `bun:"google_doc_url"`
	SortOrder    int    `bun:"sort_order,notnull"`
}

func (l Lesson) toDomain() domain.Lesson {
	return domain.Lesson{
		ID: l.ID, ModuleID: l.ModuleID, Title: l.Title,
		ContentHTML: l.ContentHTML, GoogleDocURL: l.GoogleDocURL, Order: l.SortOrder,
	}
}

type Question struct {
	bun.BaseModel `bun:"table:questions"`

	ID          string          `bun:"id,pk"`
	ModuleID    string          `bun:"module_id,notnull"`
	Title       string          `bun:"title,notnull"`
	Description string          `bun:"description"`
	Type        string          `bun:"type,notnull"`
	SortOrder   int             `bun:"sort_order,notnull"`
	Options     []*AnswerOption `bun:"rel:has-many,join:id=question_id"`
}

func (q Question) toDomain() domain.Question {
	out := domain.Question{
		ID: q.ID, ModuleID: q.ModuleID, Title: q.Title, Description: q.Description,
		Type: domain.QuestionType(q.Type), Order: q.SortOrder,
		Options: make([]domain.AnswerOption, 0, len(q.Options)),
	}
	for _, o := range q.Options {
		out.Options = append(out.Options, o.toDomain())
	}
	return out
}

type AnswerOption struct {
	bun.BaseModel `bun:"table:answer_options"`

	ID         string `bun:"id,pk"`
	QuestionID string `bun:"question_id,notnull"`
	Text       string `bun:"text,notnull"`
	IsCorrect  bool   `bun:"is_correct,notnull,default:false"`
	SortOrder  int    `bun:"sort_order,notnull"`
}

func (o AnswerOption) toDomain() domain.AnswerOption {
	return domain.AnswerOption{ID: o.ID, QuestionID: o.QuestionID, Text: o.Text, IsCorrect: o.IsCorrect, Order: o.SortOrder}
}

type Assignment struct {
	bun.BaseModel `bun:"table:assignments"`

	ID          string    `bun:"id,pk"`
	ModuleID    string    `bun:"module_id,notnull"`
	Title       string    `bun:"title,notnull"`
	Description string    `bun:"description"`
	FileURL     string    `bun:"file_url"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

func (a Assignment) toDomain() domain.Assignment {
	return domain.Assignment{
		ID: a.ID, ModuleID: a.ModuleID, Title: a.Title, Description: a.Description,
		FileURL: a.FileURL, CreatedAt: a.CreatedAt.UTC(),
	}
}

type Submission struct {
	bun.BaseModel `bun:"table:submissions"`

	ID           string     `bun:"id,pk"`
	UserID       string     `bun:"user_id,notnull,unique:user_assignment"`
	ModuleID     string     `bun:"module_id,notnull"`
	AssignmentID string     `bun:"assignment_id,notnull,unique:user_assignment"`
	FileURL      string     `bun:"file_url,notnull"`
	Status       string     `bun:"status,notnull"`
	Grade        *int       `bun:"grade"`
	Feedback     *string    `bun:"feedback"`
	SubmittedAt  time.Time  `bun:"submitted_at,notnull"`
	GradedAt     *time.Time `bun:"graded_at"`
}

func (s Submission) toDomain() domain.Submission {
	out := domain.Submission{
		ID: s.ID, UserID: s.UserID, ModuleID: s.ModuleID, AssignmentID: s.AssignmentID,
		FileURL: s.FileURL, Status: domain.SubmissionStatus(s.Status), Grade: s.Grade,
		Feedback: s.Feedback, SubmittedAt: s.SubmittedAt.UTC(),
	}
	if s.GradedAt != nil {
		at := s.GradedAt.UTC()
		out.GradedAt = &at
	}
	return out
}

type QuizResult struct {
	bun.BaseModel `bun:"table:quiz_results"`

	ID           string                   `bun:"id,pk"`
	UserID       string                   `bun:"user_id,notnull"`
	ModuleID     string                   `bun:"module_id,notnull"`
	ScorePercent int                      `bun:"score_percent,notnull"`
	AttemptID    string                   `bun:"attempt_id,notnull,unique"`
	Answers      []domain.SubmittedAnswer `bun:"answers,type:jsonb"`
	SubmittedAt  time.Time                `bun:"submitted_at,notnull"`
}

func (r QuizResult) toDomain() domain.QuizResult {
	return domain.QuizResult{
		ID: r.ID, UserID: r.UserID, ModuleID: r.ModuleID, ScorePercent: r.ScorePercent,
		AttemptID: r.AttemptID, Answers: r.Answers, SubmittedAt: r.SubmittedAt.UTC(),
	}
}
