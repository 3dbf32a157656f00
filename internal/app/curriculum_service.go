package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"learning-platform/internal/domain"
)

// ModuleInput is the body of module create and update requests.
type ModuleInput struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Order       int    `json:"order" validate:"gt=0"`
	IsActive    *bool  `json:"isActive"`
}

// LessonInput creates a lesson inside a module.
type LessonInput struct {
	ModuleID     string `json:"moduleId" validate:"required"`
	Title        string `json:"title" validate:"required"`
	ContentHTML  string `json:"contentHtml"`
	GoogleDocURL string `json:"googleDocUrl" validate:"omitempty,url"`
	Order        int    `json:"order" validate:"gt=0"`
}

// OptionInput is one answer option of a new question.
type OptionInput struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

// QuestionInput creates a quiz question with its options.
type QuestionInput struct {
	ModuleID    string              `json:"moduleId" validate:"required"`
	Title       string              `json:"title" validate:"required"`
	Description string              `json:"description"`
	Type        domain.QuestionType `json:"type" validate:"required,oneof=single multiple"`
	Order       int                 `json:"order" validate:"gt=0"`
	Options     []OptionInput       `json:"options" validate:"min=2,dive"`
}

// AssignmentInput creates an assignment inside a module.
type AssignmentInput struct {
	ModuleID    string `json:"moduleId" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// AssignmentUpdate is the body of an assignment edit. ModuleID may be
// omitted; when present it must match the current module.
type AssignmentUpdate struct {
	ModuleID    string `json:"moduleId"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// Attachment is a file sent along with an assignment edit.
type Attachment struct {
	Filename string
	Content  []byte
}

// AnswerOptionInput appends an option to an existing question.
type AnswerOptionInput struct {
	QuestionID string `json:"questionId" validate:"required"`
	Text       string `json:"text" validate:"required"`
	IsCorrect  bool   `json:"isCorrect"`
	Order      int    `json:"order" validate:"gt=0"`
}

// CurriculumService is the admin side of modules, lessons, questions and
// assignments.
type CurriculumService struct {
	repo          CurriculumRepository
	questions     QuestionSource
	files         FileStorage
	backups       *BackupService
	maxAttachment int64
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string
}

// CurriculumServiceDeps groups the collaborators of CurriculumService.
type CurriculumServiceDeps struct {
	Repo      CurriculumRepository
	Questions QuestionSource
	Files     FileStorage
	Backups   *BackupService
	// MaxAttachmentSize defaults to DefaultMaxUploadSize.
	MaxAttachmentSize int64
	Logger            *slog.Logger
}

func NewCurriculumService(deps CurriculumServiceDeps) *CurriculumService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAttachment := deps.MaxAttachmentSize
	if maxAttachment <= 0 {
		maxAttachment = DefaultMaxUploadSize
	}
	return &CurriculumService{
		repo:          deps.Repo,
		questions:     deps.Questions,
		files:         deps.Files,
		backups:       deps.Backups,
		maxAttachment: maxAttachment,
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Modules lists every module, inactive ones included.
func (s *CurriculumService) Modules(ctx context.Context) ([]domain.Module, error) {
	modules, err := s.repo.ListModules(ctx, false)
	return modules, errors.Trace(err)
}

func (s *CurriculumService) CreateModule(ctx context.Context, in ModuleInput) (domain.Module, error) {
	if err := validateStruct(in); err != nil {
		return domain.Module{}, err
	}
	if err := s.ensureOrderFree(ctx, in.Order, ""); err != nil {
		return domain.Module{}, err
	}
	now := s.now().UTC()
	module := domain.Module{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Order:       in.Order,
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateModule(ctx, module); err != nil {
		return domain.Module{}, errors.Trace(err)
	}
	s.changed(ctx, "module created", module.ID)
	return module, nil
}

func (s *CurriculumService) UpdateModule(ctx context.Context, id string, in ModuleInput) (domain.Module, error) {
	if err := validateStruct(in); err != nil {
		return domain.Module{}, err
	}
	module, err := s.repo.GetModule(ctx, id)
	if err != nil {
		return domain.Module{}, errors.Trace(err)
	}
	if err := s.ensureOrderFree(ctx, in.Order, id); err != nil {
		return domain.Module{}, err
	}
	module.Title = in.Title
	module.Description = in.Description
	module.Order = in.Order
	if in.IsActive != nil {
		module.IsActive = *in.IsActive
	}
	module.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateModule(ctx, module); err != nil {
		return domain.Module{}, errors.Trace(err)
	}
	s.changed(ctx, "module updated", module.ID)
	return module, nil
}

// DeleteModule removes the module and everything it owns.
func (s *CurriculumService) DeleteModule(ctx context.Context, id string) error {
	if _, err := s.repo.GetModule(ctx, id); err != nil {
		return errors.Trace(err)
	}
	if err := s.repo.DeleteModule(ctx, id); err != nil {
		return errors.Trace(err)
	}
	s.questions.Invalidate(ctx, id)
	s.changed(ctx, "module deleted", id)
	return nil
}

func (s *CurriculumService) ensureOrderFree(ctx context.Context, order int, selfID string) error {
	existing, ok, err := s.repo.GetModuleByOrder(ctx, order)
	if err != nil {
		return errors.Trace(err)
	}
	if ok && existing.ID != selfID {
		return FieldErrors{"order": fmt.Sprintf("is already used by module %q", existing.Title)}
	}
	return nil
}

func (s *CurriculumService) Lessons(ctx context.Context, moduleID string) ([]domain.Lesson, error) {
	if _, err := s.repo.GetModule(ctx, moduleID); err != nil {
		return nil, errors.Trace(err)
	}
	lessons, err := s.repo.ListLessons(ctx, moduleID)
	return lessons, errors.Trace(err)
}

func (s *CurriculumService) CreateLesson(ctx context.Context, in LessonInput) (domain.Lesson, error) {
	if err := validateStruct(in); err != nil {
		return domain.Lesson{}, err
	}
	if _, err := s.repo.GetModule(ctx, in.ModuleID); err != nil {
		return domain.Lesson{}, errors.Trace(err)
	}
	existing, err := s.repo.ListLessons(ctx, in.ModuleID)
	if err != nil {
		return domain.Lesson{}, errors.Trace(err)
	}
	for _, l := range existing {
		if l.Order == in.Order {
			return domain.Lesson{}, FieldErrors{"order": "is already used in this module"}
		}
	}
	lesson := domain.Lesson{
		ID:           s.newID(),
		ModuleID:     in.ModuleID,
		Title:        in.Title,
		ContentHTML:  in.ContentHTML,
		GoogleDocURL: in.GoogleDocURL,
		Order:        in.Order,
	}
	if err := s.repo.CreateLesson(ctx, lesson); err != nil {
		return domain.Lesson{}, errors.Trace(err)
	}
	s.changed(ctx, "lesson created", in.ModuleID)
	return lesson, nil
}

// Questions lists a module's questions with the correct flags visible.
func (s *CurriculumService) Questions(ctx context.Context, moduleID string) ([]domain.Question, error) {
	if _, err := s.repo.GetModule(ctx, moduleID); err != nil {
		return nil, errors.Trace(err)
	}
	questions, err := s.repo.ListQuestions(ctx, moduleID)
	return questions, errors.Trace(err)
}

func (s *CurriculumService) CreateQuestion(ctx context.Context, in QuestionInput) (domain.Question, error) {
	question, err := s.buildQuestion(in)
	if err != nil {
		return domain.Question{}, err
	}
	if _, err := s.repo.GetModule(ctx, in.ModuleID); err != nil {
		return domain.Question{}, errors.Trace(err)
	}
	used, err := s.questionOrders(ctx, in.ModuleID)
	if err != nil {
		return domain.Question{}, errors.Trace(err)
	}
	if _, ok := used[in.Order]; ok {
		return domain.Question{}, FieldErrors{"order": "is already used in this module"}
	}
	if err := s.repo.CreateQuestion(ctx, question); err != nil {
		return domain.Question{}, errors.Trace(err)
	}
	s.questions.Invalidate(ctx, in.ModuleID)
	s.changed(ctx, "question created", in.ModuleID)
	return question, nil
}

// CreateQuestions imports a batch into one module. Every question is checked
// with the CreateQuestion rules first; nothing is stored unless all pass.
func (s *CurriculumService) CreateQuestions(ctx context.Context, moduleID string, in []QuestionInput) ([]domain.Question, error) {
	if moduleID == "" {
		return nil, FieldErrors{"moduleId": "is required"}
	}
	if len(in) == 0 {
		return nil, FieldErrors{"questions": "must contain at least one question"}
	}
	if _, err := s.repo.GetModule(ctx, moduleID); err != nil {
		return nil, errors.Trace(err)
	}
	used, err := s.questionOrders(ctx, moduleID)
	if err != nil {
		return nil, errors.Trace(err)
	}

	fields := FieldErrors{}
	questions := make([]domain.Question, 0, len(in))
	for i, q := range in {
		q.ModuleID = moduleID
		prefix := fmt.Sprintf("questions[%d].", i)
		question, err := s.buildQuestion(q)
		var qfields FieldErrors
		if errors.As(err, &qfields) {
			for k, v := range qfields {
				fields[prefix+k] = v
			}
			continue
		}
		if err != nil {
			return nil, errors.Trace(err)
		}
		if _, ok := used[q.Order]; ok {
			fields[prefix+"order"] = "is already used in this module"
			continue
		}
		used[q.Order] = struct{}{}
		questions = append(questions, question)
	}
	if len(fields) > 0 {
		return nil, fields
	}

	if err := s.repo.CreateQuestions(ctx, questions); err != nil {
		return nil, errors.Trace(err)
	}
	s.questions.Invalidate(ctx, moduleID)
	s.logger.Info("questions imported", slog.String("module_id", moduleID), slog.Int("count", len(questions)))
	s.backups.ScheduleCurrent(ctx)
	return questions, nil
}

// buildQuestion validates in and assigns ids. Options take their order from
// their position.
func (s *CurriculumService) buildQuestion(in QuestionInput) (domain.Question, error) {
	if err := validateStruct(in); err != nil {
		return domain.Question{}, err
	}
	correct := 0
	for _, o := range in.Options {
		if o.IsCorrect {
			correct++
		}
	}
	switch {
	case correct == 0:
		return domain.Question{}, FieldErrors{"options": "must contain at least one correct option"}
	case in.Type == domain.QuestionSingle && correct != 1:
		return domain.Question{}, FieldErrors{"options": "single choice questions need exactly one correct option"}
	}

	question := domain.Question{
		ID:          s.newID(),
		ModuleID:    in.ModuleID,
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		Order:       in.Order,
		Options:     make([]domain.AnswerOption, 0, len(in.Options)),
	}
	for i, o := range in.Options {
		question.Options = append(question.Options, domain.AnswerOption{
			ID:         s.newID(),
			QuestionID: question.ID,
			Text:       o.Text,
			IsCorrect:  o.IsCorrect,
			Order:      i + 1,
		})
	}
	return question, nil
}

func (s *CurriculumService) questionOrders(ctx context.Context, moduleID string) (map[int]struct{}, error) {
	existing, err := s.repo.ListQuestions(ctx, moduleID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	used := make(map[int]struct{}, len(existing))
	for _, q := range existing {
		used[q.Order] = struct{}{}
	}
	return used, nil
}

// AddOption appends an answer option to a question. A single choice question
// keeps exactly one correct option.
func (s *CurriculumService) AddOption(ctx context.Context, in AnswerOptionInput) (domain.AnswerOption, error) {
	if err := validateStruct(in); err != nil {
		return domain.AnswerOption{}, err
	}
	question, err := s.repo.GetQuestion(ctx, in.QuestionID)
	if err != nil {
		return domain.AnswerOption{}, errors.Trace(err)
	}
	for _, o := range question.Options {
		if o.Order == in.Order {
			return domain.AnswerOption{}, FieldErrors{"order": "is already used in this question"}
		}
		if in.IsCorrect && o.IsCorrect && question.Type == domain.QuestionSingle {
			return domain.AnswerOption{}, FieldErrors{"isCorrect": "single choice questions already have a correct option"}
		}
	}
	option := domain.AnswerOption{
		ID:         s.newID(),
		QuestionID: question.ID,
		Text:       in.Text,
		IsCorrect:  in.IsCorrect,
		Order:      in.Order,
	}
	if err := s.repo.CreateAnswerOption(ctx, option); err != nil {
		return domain.AnswerOption{}, errors.Trace(err)
	}
	s.questions.Invalidate(ctx, question.ModuleID)
	s.changed(ctx, "answer option created", question.ModuleID)
	return option, nil
}

func (s *CurriculumService) DeleteQuestion(ctx context.Context, id string) error {
	question, err := s.repo.GetQuestion(ctx, id)
	if err != nil {
		return errors.Trace(err)
	}
	if err := s.repo.DeleteQuestion(ctx, id); err != nil {
		return errors.Trace(err)
	}
	s.questions.Invalidate(ctx, question.ModuleID)
	s.changed(ctx, "question deleted", question.ModuleID)
	return nil
}

func (s *CurriculumService) Assignments(ctx context.Context, moduleID string) ([]domain.Assignment, error) {
	if _, err := s.repo.GetModule(ctx, moduleID); err != nil {
		return nil, errors.Trace(err)
	}
	assignments, err := s.repo.ListAssignments(ctx, moduleID)
	return assignments, errors.Trace(err)
}

func (s *CurriculumService) CreateAssignment(ctx context.Context, in AssignmentInput) (domain.Assignment, error) {
	if err := validateStruct(in); err != nil {
		return domain.Assignment{}, err
	}
	if _, err := s.repo.GetModule(ctx, in.ModuleID); err != nil {
		return domain.Assignment{}, errors.Trace(err)
	}
	assignment := domain.Assignment{
		ID:          s.newID(),
		ModuleID:    in.ModuleID,
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.CreateAssignment(ctx, assignment); err != nil {
		return domain.Assignment{}, errors.Trace(err)
	}
	s.changed(ctx, "assignment created", in.ModuleID)
	return assignment, nil
}

// UpdateAssignment edits title and description and, when file is given,
// replaces the attachment.
func (s *CurriculumService) UpdateAssignment(ctx context.Context, id string, in AssignmentUpdate, file *Attachment) (domain.Assignment, error) {
	if err := validateStruct(in); err != nil {
		return domain.Assignment{}, err
	}
	assignment, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return domain.Assignment{}, errors.Trace(err)
	}
	if in.ModuleID != "" && in.ModuleID != assignment.ModuleID {
		return domain.Assignment{}, FieldErrors{"moduleId": "cannot be changed after creation"}
	}

	if file != nil && len(file.Content) > 0 {
		if int64(len(file.Content)) > s.maxAttachment {
			return domain.Assignment{}, FieldErrors{"file": fmt.Sprintf("must be at most %d bytes", s.maxAttachment)}
		}
		ext := strings.ToLower(filepath.Ext(filepath.Base(file.Filename)))
		if _, ok := allowedUploadExtensions[ext]; !ok {
			return domain.Assignment{}, FieldErrors{"file": "must be one of .xlsx, .xls, .pdf, .zip"}
		}
		name := fmt.Sprintf("assignment_%s_%d%s", assignment.ID, s.now().UnixMilli(), ext)
		url, err := s.files.Put(ctx, FolderAssignments, name, file.Content)
		if err != nil {
			return domain.Assignment{}, errors.Annotate(err, "store attachment")
		}
		assignment.FileURL = url
	}

	assignment.Title = in.Title
	assignment.Description = in.Description
	if err := s.repo.UpdateAssignment(ctx, assignment); err != nil {
		return domain.Assignment{}, errors.Trace(err)
	}
	s.changed(ctx, "assignment updated", assignment.ModuleID)
	return assignment, nil
}

func (s *CurriculumService) DeleteAssignment(ctx context.Context, id string) error {
	assignment, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return errors.Trace(err)
	}
	if err := s.repo.DeleteAssignment(ctx, id); err != nil {
		return errors.Trace(err)
	}
	s.changed(ctx, "assignment deleted", assignment.ModuleID)
	return nil
}

func (s *CurriculumService) changed(ctx context.Context, what, moduleID string) {
	s.logger.Info(what, slog.String("module_id", moduleID))
	s.backups.ScheduleCurrent(ctx)
}
