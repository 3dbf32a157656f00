package domain

import "time"

// QuestionType tells the scorer how to compare selected options.
type QuestionType string

const (
	// QuestionSingle has exactly one correct option.
	QuestionSingle QuestionType = "single"
	// QuestionMultiple has one or more correct options, scored all-or-nothing.
	QuestionMultiple QuestionType = "multiple"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	return t == QuestionSingle || t == QuestionMultiple
}

// ModuleStatus is the visibility of a module for one student.
type ModuleStatus string

const (
	StatusLocked    ModuleStatus = "locked"
	StatusAvailable ModuleStatus = "available"
	StatusPassed    ModuleStatus = "passed"
)

// SubmissionStatus is the review state of an assignment submission.
type SubmissionStatus string

const (
	SubmissionNew    SubmissionStatus = "NEW"
	SubmissionGraded SubmissionStatus = "GRADED"
)

// User is a platform account. Rating drives the leaderboard.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	Rating       int       `json:"rating"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Module is an ordered curriculum unit.
type Module struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Order       int       `json:"order"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Lesson is reading material inside a module.
type Lesson struct {
	ID           string `json:"id"`
	ModuleID     string `json:"moduleId"`
	Title        string `json:"title"`
	ContentHTML  string `json:"contentHtml,omitempty"`
	GoogleDocURL string `json:"googleDocUrl,omitempty"`
	Order        int    `json:"order"`
}

// AnswerOption is one selectable answer of a question.
type AnswerOption struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
	Order      int    `json:"order"`
}

// Question belongs to exactly one module quiz.
type Question struct {
	ID          string         `json:"id"`
	ModuleID    string         `json:"moduleId"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Type        QuestionType   `json:"type"`
	Order       int            `json:"order"`
	Options     []AnswerOption `json:"options"`
}

// Assignment is a file-based task attached to a module.
type Assignment struct {
	ID          string `json:"id"`
	ModuleID    string `json:"moduleId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// FileURL is an optional attachment with the task materials.
	FileURL   string    `json:"fileUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Submission is a student's uploaded solution. One per (user, assignment).
type Submission struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	ModuleID     string           `json:"moduleId"`
	AssignmentID string           `json:"assignmentId"`
	FileURL      string           `json:"fileUrl"`
	Status       SubmissionStatus `json:"status"`
	Grade        *int             `json:"grade,omitempty"`
	Feedback     *string          `json:"feedback,omitempty"`
	SubmittedAt  time.Time        `json:"submittedAt"`
	GradedAt     *time.Time       `json:"gradedAt,omitempty"`
}

// SubmittedAnswer is the raw selection a student sent for one question.
type SubmittedAnswer struct {
	QuestionID        string   `json:"questionId"`
	SelectedOptionIDs []string `json:"selectedOptionIds"`
}

// QuizResult is an immutable record of one quiz attempt.
type QuizResult struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	ModuleID     string            `json:"moduleId"`
	ScorePercent int               `json:"scorePercent"`
	AttemptID    string            `json:"attemptId"`
	Answers      []SubmittedAnswer `json:"answers"`
	SubmittedAt  time.Time         `json:"submittedAt"`
}

// AnswerDetail is the per-question outcome shown after a quiz.
type AnswerDetail struct {
	QuestionID        string   `json:"questionId"`
	SelectedOptionIDs []string `json:"selectedOptionIds"`
	CorrectOptionIDs  []string `json:"correctOptionIds"`
	IsCorrect         bool     `json:"isCorrect"`
}

// QuizScore is the outcome of scoring one set of answers.
type QuizScore struct {
	CorrectAnswers int            `json:"correctAnswers"`
	TotalQuestions int            `json:"totalQuestions"`
	ScorePercent   int            `json:"scorePercent"`
	Details        []AnswerDetail `json:"detailedAnswers"`
}

// Progress is the per-user document kept by the progress store.
type Progress struct {
	UserID    string           `json:"userId"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Modules   []ModuleProgress `json:"modules"`
}

// Module returns the entry for moduleID, or nil.
func (p *Progress) Module(moduleID string) *ModuleProgress {
	for i := range p.Modules {
		if p.Modules[i].ModuleID == moduleID {
			return &p.Modules[i]
		}
	}
	return nil
}

// ModuleProgress is the student's state inside one module.
type ModuleProgress struct {
	ModuleID    string             `json:"moduleId"`
	Status      ModuleStatus       `json:"status"`
	LessonsRead []string           `json:"lessonsRead"`
	Quiz        QuizProgress       `json:"quiz"`
	Assignment  AssignmentProgress `json:"assignment"`
}

// NewModuleProgress returns the default entry for a module nobody touched yet.
func NewModuleProgress(moduleID string) ModuleProgress {
	return ModuleProgress{
		ModuleID:    moduleID,
		Status:      StatusAvailable,
		LessonsRead: []string{},
		Quiz:        QuizProgress{Attempts: []QuizAttempt{}},
	}
}

// HasRead reports whether lessonID was already marked read.
func (m *ModuleProgress) HasRead(lessonID string) bool {
	for _, id := range m.LessonsRead {
		if id == lessonID {
			return true
		}
	}
	return false
}

// QuizProgress is the quiz history inside a module entry.
type QuizProgress struct {
	Attempts         []QuizAttempt `json:"attempts"`
	BestScorePercent *int          `json:"bestScorePercent,omitempty"`
	PassedAt         *time.Time    `json:"passedAt,omitempty"`
}

// QuizAttempt mirrors a QuizResult inside the progress document.
type QuizAttempt struct {
	AttemptID    string         `json:"attemptId"`
	SubmittedAt  time.Time      `json:"submittedAt"`
	ScorePercent int            `json:"scorePercent"`
	Answers      []AnswerDetail `json:"answers"`
}

// AssignmentProgress is the latest assignment state inside a module entry.
type AssignmentProgress struct {
	Submitted   bool             `json:"submitted"`
	SubmittedAt *time.Time       `json:"submittedAt,omitempty"`
	FileURL     string           `json:"fileUrl,omitempty"`
	Status      SubmissionStatus `json:"status,omitempty"`
	Grade       *int             `json:"grade,omitempty"`
	Feedback    string           `json:"feedback,omitempty"`
}

// LeaderboardEntry is one ranked student.
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

// Leaderboard is the ordered rating table.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// BackupPayload is a point-in-time dump of the relational store plus
// every progress document keyed by file name.
type BackupPayload struct {
	CreatedAt     time.Time           `json:"createdAt"`
	Users         []User              `json:"users"`
	Modules       []Module            `json:"modules"`
	Lessons       []Lesson            `json:"lessons"`
	Questions     []Question          `json:"questions"`
	Assignments   []Assignment        `json:"assignments"`
	Submissions   []Submission        `json:"submissions"`
	QuizResults   []QuizResult        `json:"quizResults"`
	ProgressFiles map[string]Progress `json:"progressFiles"`
}
