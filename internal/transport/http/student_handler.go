package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/juju/errors"

	"learning-platform/internal/app"
)

type lessonReadRequest struct {
	ModuleID string `json:"moduleId"`
	LessonID string `json:"lessonId"`
}

type lessonReadResponse struct {
	OK          bool `json:"ok"`
	LessonsRead int  `json:"lessonsRead"`
}

type lastResultResponse struct {
	Result *app.QuizOutcome `json:"result"`
}

func (a *API) visibleModules(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	modules, err := a.progress.Visible(r.Context(), session.UserID)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, modules)
}

func (a *API) lesson(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	lesson, err := a.progress.Lesson(r.Context(), session.UserID, r.PathValue("moduleId"), r.PathValue("lessonId"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

func (a *API) moduleQuiz(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	questions, err := a.progress.Quiz(r.Context(), session.UserID, r.PathValue("moduleId"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (a *API) myProgress(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	progress, err := a.progress.Me(r.Context(), session.UserID)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (a *API) markLessonRead(w http.ResponseWriter, r *http.Request) {
	var in lessonReadRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	session, _ := sessionFrom(r.Context())
	read, err := a.progress.MarkLessonRead(r.Context(), session.UserID, in.ModuleID, in.LessonID)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lessonReadResponse{OK: true, LessonsRead: read})
}

func (a *API) submitQuiz(w http.ResponseWriter, r *http.Request) {
	var in app.QuizSubmission
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	session, _ := sessionFrom(r.Context())
	outcome, err := a.quiz.Submit(r.Context(), session.UserID, in)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (a *API) lastQuizResult(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	outcome, err := a.quiz.LastResult(r.Context(), session.UserID, r.URL.Query().Get("moduleId"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lastResultResponse{Result: outcome})
}

func (a *API) quizAttempts(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	attempts, err := a.quiz.Attempts(r.Context(), session.UserID, r.URL.Query().Get("moduleId"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

// submitAssignment takes multipart fields assignmentId and file.
func (a *API) submitAssignment(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	up := app.Upload{AssignmentID: r.FormValue("assignmentId")}
	name, size, content, err := formFile(r, "file")
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	up.Filename, up.Size, up.Content = name, size, content

	session, _ := sessionFrom(r.Context())
	sub, err := a.assignments.Submit(r.Context(), session.UserID, up)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (a *API) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	// room for the multipart framing around the file
	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return app.FieldErrors{"file": "is too large"}
		}
		return errors.BadRequestf("invalid multipart form")
	}
	return nil
}

// formFile reads an optional file field. A missing field is not an error.
func formFile(r *http.Request, field string) (string, int64, []byte, error) {
	file, header, err := r.FormFile(field)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return "", 0, nil, nil
	case err != nil:
		return "", 0, nil, errors.BadRequestf("invalid %s field", field)
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return "", 0, nil, errors.Annotate(err, "read upload")
	}
	return header.Filename, header.Size, content, nil
}

func (a *API) mySubmissions(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	subs, err := a.assignments.Mine(r.Context(), session.UserID)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (a *API) mySubmission(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	sub, err := a.assignments.MineFor(r.Context(), session.UserID, r.PathValue("assignmentId"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *API) topStudents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, a.logger, errors.BadRequestf("limit must be a positive integer"))
			return
		}
		limit = n
	}
	lb, err := a.leaderboard.Top(r.Context(), limit)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}
