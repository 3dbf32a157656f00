package http

import (
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/juju/errors"

	"learning-platform/internal/app"
	"learning-platform/internal/domain"
)

type backupResponse struct {
	Path string `json:"path"`
}

type cleanupResponse struct {
	Removed int `json:"removed"`
}

type bulkQuestionsRequest struct {
	ModuleID  string              `json:"moduleId"`
	Questions []app.QuestionInput `json:"questions"`
}

type bulkQuestionsResponse struct {
	Created   int               `json:"created"`
	Questions []domain.Question `json:"questions"`
}

func (a *API) listModules(w http.ResponseWriter, r *http.Request) {
	modules, err := a.curriculum.Modules(r.Context())
	respond(w, r, a, http.StatusOK, modules, err)
}

func (a *API) createModule(w http.ResponseWriter, r *http.Request) {
	var in app.ModuleInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	module, err := a.curriculum.CreateModule(r.Context(), in)
	respond(w, r, a, http.StatusCreated, module, err)
}

func (a *API) updateModule(w http.ResponseWriter, r *http.Request) {
	var in app.ModuleInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	module, err := a.curriculum.UpdateModule(r.Context(), r.PathValue("id"), in)
	respond(w, r, a, http.StatusOK, module, err)
}

func (a *API) deleteModule(w http.ResponseWriter, r *http.Request) {
	noContent(w, r, a, a.curriculum.DeleteModule(r.Context(), r.PathValue("id")))
}

func (a *API) listLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := a.curriculum.Lessons(r.Context(), r.PathValue("id"))
	respond(w, r, a, http.StatusOK, lessons, err)
}

func (a *API) createLesson(w http.ResponseWriter, r *http.Request) {
	var in app.LessonInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	lesson, err := a.curriculum.CreateLesson(r.Context(), in)
	respond(w, r, a, http.StatusCreated, lesson, err)
}

func (a *API) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.curriculum.Questions(r.Context(), r.PathValue("id"))
	respond(w, r, a, http.StatusOK, questions, err)
}

func (a *API) createQuestion(w http.ResponseWriter, r *http.Request) {
	var in app.QuestionInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	question, err := a.curriculum.CreateQuestion(r.Context(), in)
	respond(w, r, a, http.StatusCreated, question, err)
}

func (a *API) importQuestions(w http.ResponseWriter, r *http.Request) {
	var in bulkQuestionsRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	questions, err := a.curriculum.CreateQuestions(r.Context(), in.ModuleID, in.Questions)
	respond(w, r, a, http.StatusCreated, bulkQuestionsResponse{Created: len(questions), Questions: questions}, err)
}

func (a *API) createAnswerOption(w http.ResponseWriter, r *http.Request) {
	var in app.AnswerOptionInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	option, err := a.curriculum.AddOption(r.Context(), in)
	respond(w, r, a, http.StatusCreated, option, err)
}

func (a *API) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	noContent(w, r, a, a.curriculum.DeleteQuestion(r.Context(), r.PathValue("id")))
}

func (a *API) listAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := a.curriculum.Assignments(r.Context(), r.PathValue("id"))
	respond(w, r, a, http.StatusOK, assignments, err)
}

func (a *API) createAssignment(w http.ResponseWriter, r *http.Request) {
	var in app.AssignmentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	assignment, err := a.curriculum.CreateAssignment(r.Context(), in)
	respond(w, r, a, http.StatusCreated, assignment, err)
}

// updateAssignment takes either a JSON body or a multipart form whose
// optional "file" field replaces the attachment.
func (a *API) updateAssignment(w http.ResponseWriter, r *http.Request) {
	var (
		in   app.AssignmentUpdate
		file *app.Attachment
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := a.parseMultipart(w, r); err != nil {
			writeError(w, r, a.logger, err)
			return
		}
		defer r.MultipartForm.RemoveAll()
		in = app.AssignmentUpdate{
			ModuleID:    r.FormValue("moduleId"),
			Title:       r.FormValue("title"),
			Description: r.FormValue("description"),
		}
		name, _, content, err := formFile(r, "file")
		if err != nil {
			writeError(w, r, a.logger, err)
			return
		}
		if name != "" {
			file = &app.Attachment{Filename: name, Content: content}
		}
	} else if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	assignment, err := a.curriculum.UpdateAssignment(r.Context(), r.PathValue("id"), in, file)
	respond(w, r, a, http.StatusOK, assignment, err)
}

func (a *API) deleteAssignment(w http.ResponseWriter, r *http.Request) {
	noContent(w, r, a, a.curriculum.DeleteAssignment(r.Context(), r.PathValue("id")))
}

func (a *API) allSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := a.assignments.All(r.Context())
	respond(w, r, a, http.StatusOK, subs, err)
}

func (a *API) gradeSubmission(w http.ResponseWriter, r *http.Request) {
	var in app.GradeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	sub, err := a.assignments.Grade(r.Context(), r.PathValue("id"), in)
	respond(w, r, a, http.StatusOK, sub, err)
}

func (a *API) backupSnapshot(w http.ResponseWriter, r *http.Request) {
	path, err := a.backups.WriteSnapshot(r.Context())
	respond(w, r, a, http.StatusOK, backupResponse{Path: path}, err)
}

// backupCleanup accepts an optional maxAgeDays query parameter.
func (a *API) backupCleanup(w http.ResponseWriter, r *http.Request) {
	var maxAge time.Duration
	if raw := r.URL.Query().Get("maxAgeDays"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 {
			writeError(w, r, a.logger, errors.BadRequestf("maxAgeDays must be a positive integer"))
			return
		}
		maxAge = time.Duration(days) * 24 * time.Hour
	}
	removed, err := a.backups.Cleanup(r.Context(), maxAge)
	respond(w, r, a, http.StatusOK, cleanupResponse{Removed: removed}, err)
}

func (a *API) backupCurrent(w http.ResponseWriter, r *http.Request) {
	raw, err := a.backups.Current(r.Context())
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func respond(w http.ResponseWriter, r *http.Request, a *API, status int, v any, err error) {
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, status, v)
}

func noContent(w http.ResponseWriter, r *http.Request, a *API, err error) {
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
