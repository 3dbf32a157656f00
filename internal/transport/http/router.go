package http

import (
	"log/slog"
	"net/http"
	"strings"

	"learning-platform/internal/app"
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Auth        *app.AuthService
	Quiz        *app.QuizService
	Progress    *app.ProgressService
	Assignments *app.AssignmentService
	Curriculum  *app.CurriculumService
	Leaderboard *app.LeaderboardService
	Backups     *app.BackupService
}

// Options tune the HTTP layer.
type Options struct {
	// UploadsDir is served under /uploads/ to signed-in users when set.
	UploadsDir string
	// MaxUploadSize bounds multipart bodies.
	MaxUploadSize int64
	// SecureCookies sets the Secure flag on the session cookie.
	SecureCookies bool
	Logger        *slog.Logger
}

// API holds the handlers.
type API struct {
	auth        *app.AuthService
	quiz        *app.QuizService
	progress    *app.ProgressService
	assignments *app.AssignmentService
	curriculum  *app.CurriculumService
	leaderboard *app.LeaderboardService
	backups     *app.BackupService
	ws          *WSHandler
	opts        Options
	logger      *slog.Logger
}

func NewAPI(s Services, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = app.DefaultMaxUploadSize
	}
	return &API{
		auth:        s.Auth,
		quiz:        s.Quiz,
		progress:    s.Progress,
		assignments: s.Assignments,
		curriculum:  s.Curriculum,
		leaderboard: s.Leaderboard,
		backups:     s.Backups,
		ws:          NewWSHandler(s.Leaderboard, logger),
		opts:        opts,
		logger:      logger,
	}
}

// Handler builds the routed handler with logging and panic recovery.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /auth/register", a.register)
	mux.HandleFunc("POST /auth/login", a.login)
	mux.HandleFunc("POST /auth/logout", a.logout)
	mux.HandleFunc("GET /auth/me", a.authenticated(a.me))

	mux.HandleFunc("GET /modules/visible", a.authenticated(a.visibleModules))
	mux.HandleFunc("GET /modules/{moduleId}/lessons/{lessonId}", a.authenticated(a.lesson))
	mux.HandleFunc("GET /modules/{moduleId}/quiz", a.authenticated(a.moduleQuiz))
	mux.HandleFunc("GET /progress/me", a.authenticated(a.myProgress))
	mux.HandleFunc("POST /progress/lessons/read", a.authenticated(a.markLessonRead))

	mux.HandleFunc("POST /quiz/submit", a.authenticated(a.submitQuiz))
	mux.HandleFunc("GET /quiz/submit", a.authenticated(a.lastQuizResult))
	mux.HandleFunc("GET /quiz/attempts", a.authenticated(a.quizAttempts))

	mux.HandleFunc("POST /submissions", a.authenticated(a.submitAssignment))
	mux.HandleFunc("GET /submissions", a.authenticated(a.mySubmissions))
	mux.HandleFunc("GET /submissions/{assignmentId}", a.authenticated(a.mySubmission))

	mux.HandleFunc("GET /leaderboard", a.authenticated(a.topStudents))
	mux.HandleFunc("GET /ws/leaderboard", a.authenticated(a.ws.ServeWS))

	mux.HandleFunc("GET /admin/modules", a.admin(a.listModules))
	mux.HandleFunc("POST /admin/modules", a.admin(a.createModule))
	mux.HandleFunc("PUT /admin/modules/{id}", a.admin(a.updateModule))
	mux.HandleFunc("DELETE /admin/modules/{id}", a.admin(a.deleteModule))
	mux.HandleFunc("GET /admin/modules/{id}/lessons", a.admin(a.listLessons))
	mux.HandleFunc("POST /admin/lessons", a.admin(a.createLesson))
	mux.HandleFunc("GET /admin/modules/{id}/questions", a.admin(a.listQuestions))
	mux.HandleFunc("POST /admin/questions", a.admin(a.createQuestion))
	mux.HandleFunc("POST /admin/questions/bulk", a.admin(a.importQuestions))
	mux.HandleFunc("POST /admin/answer-options", a.admin(a.createAnswerOption))
	mux.HandleFunc("DELETE /admin/questions/{id}", a.admin(a.deleteQuestion))
	mux.HandleFunc("GET /admin/modules/{id}/assignments", a.admin(a.listAssignments))
	mux.HandleFunc("POST /admin/assignments", a.admin(a.createAssignment))
	mux.HandleFunc("PUT /admin/assignments/{id}", a.admin(a.updateAssignment))
	mux.HandleFunc("DELETE /admin/assignments/{id}", a.admin(a.deleteAssignment))
	mux.HandleFunc("GET /admin/submissions", a.admin(a.allSubmissions))
	mux.HandleFunc("POST /admin/submissions/{id}/grade", a.admin(a.gradeSubmission))
	mux.HandleFunc("POST /admin/backup/snapshot", a.admin(a.backupSnapshot))
	mux.HandleFunc("POST /admin/backup/cleanup", a.admin(a.backupCleanup))
	mux.HandleFunc("GET /admin/backup/current", a.admin(a.backupCurrent))

	if a.opts.UploadsDir != "" {
		files := http.StripPrefix("/uploads", http.FileServer(http.Dir(a.opts.UploadsDir)))
		mux.HandleFunc("GET /uploads/", a.authenticated(func(w http.ResponseWriter, r *http.Request) {
			// no directory listings
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			files.ServeHTTP(w, r)
		}))
	}

	return requestLogger(a.logger, recoverer(a.logger, mux))
}
