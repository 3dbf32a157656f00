package app

import (
	"context"
	"time"

	"learning-platform/internal/domain"
)

// UserRepository stores accounts and their rating.
type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	// IncrementRating applies delta in a single atomic update.
	IncrementRating(ctx context.Context, id string, delta int) error
	TopStudents(ctx context.Context, limit int) ([]domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// CurriculumRepository stores modules and everything they own.
type CurriculumRepository interface {
	ListModules(ctx context.Context, activeOnly bool) ([]domain.Module, error)
	GetModule(ctx context.Context, id string) (domain.Module, error)
	GetModuleByOrder(ctx context.Context, order int) (domain.Module, bool, error)
	CreateModule(ctx context.Context, module domain.Module) error
	UpdateModule(ctx context.Context, module domain.Module) error
	// DeleteModule removes the module with its lessons, questions, options,
	// assignments and submissions.
	DeleteModule(ctx context.Context, id string) error

	ListLessons(ctx context.Context, moduleID string) ([]domain.Lesson, error)
	ListAllLessons(ctx context.Context) ([]domain.Lesson, error)
	GetLesson(ctx context.Context, moduleID, lessonID string) (domain.Lesson, error)
	CreateLesson(ctx context.Context, lesson domain.Lesson) error

	// ListQuestions returns questions with options, both sorted by order.
	ListQuestions(ctx context.Context, moduleID string) ([]domain.Question, error)
	ListAllQuestions(ctx context.Context) ([]domain.Question, error)
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	CreateQuestion(ctx context.Context, question domain.Question) error
	// CreateQuestions stores every question or none of them.
	CreateQuestions(ctx context.Context, questions []domain.Question) error
	CreateAnswerOption(ctx context.Context, option domain.AnswerOption) error
	DeleteQuestion(ctx context.Context, id string) error

	ListAssignments(ctx context.Context, moduleID string) ([]domain.Assignment, error)
	ListAllAssignments(ctx context.Context) ([]domain.Assignment, error)
	GetAssignment(ctx context.Context, id string) (domain.Assignment, error)
	CreateAssignment(ctx context.Context, assignment domain.Assignment) error
	UpdateAssignment(ctx context.Context, assignment domain.Assignment) error
	DeleteAssignment(ctx context.Context, id string) error
}

// QuizResultRepository is append-only.
type QuizResultRepository interface {
	CreateResult(ctx context.Context, result domain.QuizResult) error
	// BestScore returns the max score for (user, module) and whether any result exists.
	BestScore(ctx context.Context, userID, moduleID string) (int, bool, error)
	// BestScores returns the max score per module for a user.
	BestScores(ctx context.Context, userID string) (map[string]int, error)
	LatestResult(ctx context.Context, userID, moduleID string) (domain.QuizResult, bool, error)
	// ListResults returns attempts for (user, module), newest first.
	ListResults(ctx context.Context, userID, moduleID string) ([]domain.QuizResult, error)
	ListAllResults(ctx context.Context) ([]domain.QuizResult, error)
}

// SubmissionRepository keeps at most one submission per (user, assignment).
type SubmissionRepository interface {
	// UpsertSubmission creates or overwrites the (user, assignment) row and
	// returns the stored value and whether it replaced an existing one.
	UpsertSubmission(ctx context.Context, submission domain.Submission) (domain.Submission, bool, error)
	GetSubmission(ctx context.Context, id string) (domain.Submission, error)
	FindSubmission(ctx context.Context, userID, assignmentID string) (domain.Submission, bool, error)
	ListUserSubmissions(ctx context.Context, userID string) ([]domain.Submission, error)
	ListAllSubmissions(ctx context.Context) ([]domain.Submission, error)
	GradeSubmission(ctx context.Context, id string, grade int, feedback *string, gradedAt time.Time) (domain.Submission, error)
}

// QuestionSource serves a module's questions, possibly from a cache.
type QuestionSource interface {
	GetQuestions(ctx context.Context, moduleID string) ([]domain.Question, error)
	Invalidate(ctx context.Context, moduleID string)
}

// ProgressStore persists one progress document per user.
type ProgressStore interface {
	// Get returns nil without error when the user has no document yet.
	Get(ctx context.Context, userID string) (*domain.Progress, error)
	Save(ctx context.Context, progress *domain.Progress) error
	Initialize(ctx context.Context, userID string, moduleIDs []string) (*domain.Progress, error)
	// All returns every stored document keyed by its storage name.
	All(ctx context.Context) (map[string]domain.Progress, error)
}

// Locker serialises read-modify-write cycles on one user's progress.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Upload folders.
const (
	FolderSubmissions = "submissions"
	FolderAssignments = "assignments"
)

// FileStorage keeps uploaded files.
type FileStorage interface {
	// Put stores content as folder/name and returns the public URL path.
	Put(ctx context.Context, folder, name string, content []byte) (string, error)
}

// SnapshotSink writes backup payloads.
type SnapshotSink interface {
	WriteCurrent(ctx context.Context, payload domain.BackupPayload) (string, error)
	WriteSnapshot(ctx context.Context, payload domain.BackupPayload) (string, error)
	ReadCurrent(ctx context.Context) ([]byte, error)
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}
