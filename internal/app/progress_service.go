package app

import (
	"context"
	"time"

	"github.com/juju/errors"

	"learning-platform/internal/domain"
)

// AssignmentsInfo summarises a module's assignments for one student.
type AssignmentsInfo struct {
	Total     int                    `json:"total"`
	Completed int                    `json:"completed"`
	Details   []AssignmentCompletion `json:"details"`
}

// AssignmentCompletion is one submitted assignment.
type AssignmentCompletion struct {
	AssignmentID string                  `json:"id"`
	Submitted    bool                    `json:"submitted"`
	Status       domain.SubmissionStatus `json:"status"`
	Grade        *int                    `json:"grade,omitempty"`
}

// LessonSummary is a lesson without its content.
type LessonSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Order int    `json:"order"`
}

// VisibleModule is a module annotated with the caller's progress.
type VisibleModule struct {
	domain.Module
	Lessons       []LessonSummary       `json:"lessons"`
	QuestionCount int                   `json:"questionCount"`
	Assignments   []domain.Assignment   `json:"assignments"`
	Progress      domain.ModuleProgress `json:"progress"`
	AssignmentsOf AssignmentsInfo       `json:"assignmentsProgress"`
}

// ProgressService exposes the student's progression through the curriculum.
type ProgressService struct {
	curriculum  CurriculumRepository
	questions   QuestionSource
	results     QuizResultRepository
	submissions SubmissionRepository
	progress    progressKeeper
	threshold   int
}

// ProgressServiceDeps groups the collaborators of ProgressService.
type ProgressServiceDeps struct {
	Curriculum  CurriculumRepository
	Questions   QuestionSource
	Results     QuizResultRepository
	Submissions SubmissionRepository
	Progress    ProgressStore
	Locker      Locker
	Threshold   int
}

func NewProgressService(deps ProgressServiceDeps) *ProgressService {
	threshold := deps.Threshold
	if threshold <= 0 {
		threshold = DefaultPassThresholdPercent
	}
	return &ProgressService{
		curriculum:  deps.Curriculum,
		questions:   deps.Questions,
		results:     deps.Results,
		submissions: deps.Submissions,
		progress:    progressKeeper{store: deps.Progress, locker: deps.Locker, now: time.Now},
		threshold:   threshold,
	}
}

// moduleState is everything gathered for one active module.
type moduleState struct {
	module      domain.Module
	assignments []domain.Assignment
	submissions []domain.Submission
	best        *int
}

// Visible returns every active module in order with fresh gate statuses.
func (s *ProgressService) Visible(ctx context.Context, userID string) ([]VisibleModule, error) {
	states, err := s.collect(ctx, userID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	progress, err := s.sync(ctx, userID, states)
	if err != nil {
		return nil, errors.Trace(err)
	}

	visible := make([]VisibleModule, 0, len(states))
	for _, st := range states {
		lessons, err := s.curriculum.ListLessons(ctx, st.module.ID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		questions, err := s.questions.GetQuestions(ctx, st.module.ID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		summaries := make([]LessonSummary, 0, len(lessons))
		for _, l := range lessons {
			summaries = append(summaries, LessonSummary{ID: l.ID, Title: l.Title, Order: l.Order})
		}
		entry := progress.Module(st.module.ID)
		vm := VisibleModule{
			Module:        st.module,
			Lessons:       summaries,
			QuestionCount: len(questions),
			Assignments:   st.assignments,
			AssignmentsOf: assignmentsInfo(st),
		}
		if entry != nil {
			vm.Progress = *entry
		} else {
			vm.Progress = domain.NewModuleProgress(st.module.ID)
		}
		visible = append(visible, vm)
	}
	return visible, nil
}

// Me returns the user's reconciled progress document with fresh statuses.
func (s *ProgressService) Me(ctx context.Context, userID string) (*domain.Progress, error) {
	states, err := s.collect(ctx, userID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return s.sync(ctx, userID, states)
}

// MarkLessonRead records lessonID as read and returns how many lessons of
// the module are read. Locked modules are rejected.
func (s *ProgressService) MarkLessonRead(ctx context.Context, userID, moduleID, lessonID string) (int, error) {
	fields := FieldErrors{}
	if moduleID == "" {
		fields["moduleId"] = "is required"
	}
	if lessonID == "" {
		fields["lessonId"] = "is required"
	}
	if len(fields) > 0 {
		return 0, fields
	}
	if _, err := s.curriculum.GetLesson(ctx, moduleID, lessonID); err != nil {
		return 0, errors.Trace(err)
	}
	states, err := s.collect(ctx, userID)
	if err != nil {
		return 0, errors.Trace(err)
	}
	statuses := s.statuses(states)

	read := 0
	_, err = s.progress.update(ctx, userID, stateIDs(states), func(p *domain.Progress) (bool, error) {
		changed := applyStatuses(p, states, statuses)
		entry := p.Module(moduleID)
		if entry == nil {
			return false, errors.Annotate(domain.ErrModuleNotFound, "module is not active")
		}
		if entry.Status == domain.StatusLocked {
			return changed, domain.ErrModuleLocked
		}
		if !entry.HasRead(lessonID) {
			entry.LessonsRead = append(entry.LessonsRead, lessonID)
			changed = true
		}
		read = len(entry.LessonsRead)
		return changed, nil
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return read, nil
}

func (s *ProgressService) collect(ctx context.Context, userID string) ([]moduleState, error) {
	modules, err := s.curriculum.ListModules(ctx, true)
	if err != nil {
		return nil, errors.Trace(err)
	}
	bests, err := s.results.BestScores(ctx, userID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	subs, err := s.submissions.ListUserSubmissions(ctx, userID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	byModule := make(map[string][]domain.Submission)
	for _, sub := range subs {
		byModule[sub.ModuleID] = append(byModule[sub.ModuleID], sub)
	}

	states := make([]moduleState, 0, len(modules))
	for _, m := range modules {
		assignments, err := s.curriculum.ListAssignments(ctx, m.ID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		st := moduleState{module: m, assignments: assignments, submissions: byModule[m.ID]}
		if best, ok := bests[m.ID]; ok {
			b := best
			st.best = &b
		}
		states = append(states, st)
	}
	return states, nil
}

func (s *ProgressService) statuses(states []moduleState) []domain.ModuleStatus {
	inputs := make([]GateInput, 0, len(states))
	for _, st := range states {
		inputs = append(inputs, GateInput{
			ModuleID:         st.module.ID,
			BestScorePercent: st.best,
			AssignmentCount:  len(st.assignments),
			SubmissionCount:  len(st.submissions),
		})
	}
	return ComputeStatuses(inputs, s.threshold)
}

// sync writes gate statuses and derived fields into the stored document.
func (s *ProgressService) sync(ctx context.Context, userID string, states []moduleState) (*domain.Progress, error) {
	statuses := s.statuses(states)
	return s.progress.update(ctx, userID, stateIDs(states), func(p *domain.Progress) (bool, error) {
		return applyStatuses(p, states, statuses), nil
	})
}

func applyStatuses(p *domain.Progress, states []moduleState, statuses []domain.ModuleStatus) bool {
	changed := false
	for i, st := range states {
		entry := p.Module(st.module.ID)
		if entry == nil {
			continue
		}
		if entry.Status != statuses[i] {
			entry.Status = statuses[i]
			changed = true
		}
		if st.best != nil && (entry.Quiz.BestScorePercent == nil || *entry.Quiz.BestScorePercent != *st.best) {
			best := *st.best
			entry.Quiz.BestScorePercent = &best
			changed = true
		}
		submitted := len(st.submissions) > 0
		if entry.Assignment.Submitted != submitted {
			entry.Assignment.Submitted = submitted
			changed = true
		}
	}
	return changed
}

func assignmentsInfo(st moduleState) AssignmentsInfo {
	info := AssignmentsInfo{
		Total:     len(st.assignments),
		Completed: len(st.submissions),
		Details:   make([]AssignmentCompletion, 0, len(st.submissions)),
	}
	for _, sub := range st.submissions {
		info.Details = append(info.Details, AssignmentCompletion{
			AssignmentID: sub.AssignmentID,
			Submitted:    true,
			Status:       sub.Status,
			Grade:        sub.Grade,
		})
	}
	return info
}

func stateIDs(states []moduleState) []string {
	ids := make([]string, 0, len(states))
	for _, st := range states {
		ids = append(ids, st.module.ID)
	}
	return ids
}

// PublicOption is an answer option without its correctness flag.
type PublicOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// PublicQuestion is a question as a student sees it before submitting.
type PublicQuestion struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Type        domain.QuestionType `json:"type"`
	Order       int                 `json:"order"`
	Options     []PublicOption      `json:"options"`
}

// Lesson returns the full lesson content when its module is unlocked.
func (s *ProgressService) Lesson(ctx context.Context, userID, moduleID, lessonID string) (domain.Lesson, error) {
	lesson, err := s.curriculum.GetLesson(ctx, moduleID, lessonID)
	if err != nil {
		return domain.Lesson{}, errors.Trace(err)
	}
	if err := s.ensureUnlocked(ctx, userID, moduleID); err != nil {
		return domain.Lesson{}, err
	}
	return lesson, nil
}

// Quiz returns the module's questions with the correct flags stripped.
func (s *ProgressService) Quiz(ctx context.Context, userID, moduleID string) ([]PublicQuestion, error) {
	if _, err := s.curriculum.GetModule(ctx, moduleID); err != nil {
		return nil, errors.Trace(err)
	}
	if err := s.ensureUnlocked(ctx, userID, moduleID); err != nil {
		return nil, err
	}
	questions, err := s.questions.GetQuestions(ctx, moduleID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	out := make([]PublicQuestion, 0, len(questions))
	for _, q := range questions {
		pq := PublicQuestion{
			ID: q.ID, Title: q.Title, Description: q.Description, Type: q.Type, Order: q.Order,
			Options: make([]PublicOption, 0, len(q.Options)),
		}
		for _, o := range q.Options {
			pq.Options = append(pq.Options, PublicOption{ID: o.ID, Text: o.Text, Order: o.Order})
		}
		out = append(out, pq)
	}
	return out, nil
}

// ensureUnlocked recomputes the gate and rejects locked or inactive modules.
func (s *ProgressService) ensureUnlocked(ctx context.Context, userID, moduleID string) error {
	states, err := s.collect(ctx, userID)
	if err != nil {
		return errors.Trace(err)
	}
	statuses := s.statuses(states)
	for i, st := range states {
		if st.module.ID != moduleID {
			continue
		}
		if statuses[i] == domain.StatusLocked {
			return domain.ErrModuleLocked
		}
		return nil
	}
	return errors.Annotate(domain.ErrModuleNotFound, "module is not active")
}
