package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/juju/errors"

	"learning-platform/internal/domain"
)

// Store is an in-memory implementation of the app repositories
// (users, curriculum, quiz results and submissions).
type Store struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	modules     map[string]domain.Module
	lessons     map[string]domain.Lesson
	questions   map[string]domain.Question
	assignments map[string]domain.Assignment
	submissions map[string]domain.Submission
	results     []domain.QuizResult
}

func NewStore() *Store {
	return &Store{
		users:       make(map[string]domain.User),
		modules:     make(map[string]domain.Module),
		lessons:     make(map[string]domain.Lesson),
		questions:   make(map[string]domain.Question),
		assignments: make(map[string]domain.Assignment),
		submissions: make(map[string]domain.Submission),
	}
}

// users

func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return errors.AlreadyExistsf("user with email %q", user.Email)
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *Store) IncrementRating(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Rating += delta
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func (s *Store) TopStudents(_ context.Context, limit int) ([]domain.User, error) {
	s.mu.RLock()
	students := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if !u.IsAdmin {
			students = append(students, u)
		}
	}
	s.mu.RUnlock()

	sort.Slice(students, func(i, j int) bool {
		if students[i].Rating != students[j].Rating {
			return students[i].Rating > students[j].Rating
		}
		return students[i].CreatedAt.Before(students[j].CreatedAt)
	})
	if limit > 0 && len(students) > limit {
		students = students[:limit]
	}
	return students, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

// modules

func (s *Store) ListModules(_ context.Context, activeOnly bool) ([]domain.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	modules := make([]domain.Module, 0, len(s.modules))
	for _, m := range s.modules {
		if activeOnly && !m.IsActive {
			continue
		}
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Order < modules[j].Order })
	return modules, nil
}

func (s *Store) GetModule(_ context.Context, id string) (domain.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modules[id]
	if !ok {
		return domain.Module{}, domain.ErrModuleNotFound
	}
	return m, nil
}

func (s *Store) GetModuleByOrder(_ context.Context, order int) (domain.Module, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.modules {
		if m.Order == order {
			return m, true, nil
		}
	}
	return domain.Module{}, false, nil
}

func (s *Store) CreateModule(_ context.Context, module domain.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[module.ID] = module
	return nil
}

func (s *Store) UpdateModule(_ context.Context, module domain.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[module.ID]; !ok {
		return domain.ErrModuleNotFound
	}
	s.modules[module.ID] = module
	return nil
}

func (s *Store) DeleteModule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[id]; !ok {
		return domain.ErrModuleNotFound
	}
	delete(s.modules, id)
	for k, l := range s.lessons {
		if l.ModuleID == id {
			delete(s.lessons, k)
		}
	}
	for k, q := range s.questions {
		if q.ModuleID == id {
			delete(s.questions, k)
		}
	}
	for k, a := range s.assignments {
		if a.ModuleID == id {
			delete(s.assignments, k)
		}
	}
	for k, sub := range s.submissions {
		if sub.ModuleID == id {
			delete(s.submissions, k)
		}
	}
	return nil
}

// lessons

func (s *Store) ListLessons(_ context.Context, moduleID string) ([]domain.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lessons := []domain.Lesson{}
	for _, l := range s.lessons {
		if l.ModuleID == moduleID {
			lessons = append(lessons, l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Order < lessons[j].Order })
	return lessons, nil
}

func (s *Store) ListAllLessons(_ context.Context) ([]domain.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lessons := make([]domain.Lesson, 0, len(s.lessons))
	for _, l := range s.lessons {
		lessons = append(lessons, l)
	}
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].ModuleID != lessons[j].ModuleID {
			return lessons[i].ModuleID < lessons[j].ModuleID
		}
		return lessons[i].Order < lessons[j].Order
	})
	return lessons, nil
}

func (s *Store) GetLesson(_ context.Context, moduleID, lessonID string) (domain.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lessons[lessonID]
	if !ok || l.ModuleID != moduleID {
		return domain.Lesson{}, domain.ErrLessonNotFound
	}
	return l, nil
}

func (s *Store) CreateLesson(_ context.Context, lesson domain.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lessons[lesson.ID] = lesson
	return nil
}

// questions

func (s *Store) ListQuestions(_ context.Context, moduleID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions := []domain.Question{}
	for _, q := range s.questions {
		if q.ModuleID == moduleID {
			questions = append(questions, cloneQuestion(q))
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	return questions, nil
}

func (s *Store) ListAllQuestions(_ context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions := make([]domain.Question, 0, len(s.questions))
	for _, q := range s.questions {
		questions = append(questions, cloneQuestion(q))
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].ModuleID != questions[j].ModuleID {
			return questions[i].ModuleID < questions[j].ModuleID
		}
		return questions[i].Order < questions[j].Order
	})
	return questions, nil
}

func (s *Store) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return cloneQuestion(q), nil
}

func (s *Store) CreateQuestion(_ context.Context, question domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[question.ID] = cloneQuestion(question)
	return nil
}

func (s *Store) CreateQuestions(_ context.Context, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		if _, ok := s.questions[q.ID]; ok {
			return errors.AlreadyExistsf("question %q", q.ID)
		}
	}
	for _, q := range questions {
		s.questions[q.ID] = cloneQuestion(q)
	}
	return nil
}

func (s *Store) CreateAnswerOption(_ context.Context, option domain.AnswerOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[option.QuestionID]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	q = cloneQuestion(q)
	q.Options = append(q.Options, option)
	s.questions[q.ID] = q
	return nil
}

func (s *Store) DeleteQuestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(s.questions, id)
	return nil
}

func cloneQuestion(q domain.Question) domain.Question {
	options := make([]domain.AnswerOption, len(q.Options))
	copy(options, q.Options)
	sort.Slice(options, func(i, j int) bool { return options[i].Order < options[j].Order })
	q.Options = options
	return q
}

// assignments

func (s *Store) ListAssignments(_ context.Context, moduleID string) ([]domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assignments := []domain.Assignment{}
	for _, a := range s.assignments {
		if a.ModuleID == moduleID {
			assignments = append(assignments, a)
		}
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].CreatedAt.Before(assignments[j].CreatedAt) })
	return assignments, nil
}

func (s *Store) ListAllAssignments(_ context.Context) ([]domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assignments := make([]domain.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		assignments = append(assignments, a)
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].CreatedAt.Before(assignments[j].CreatedAt) })
	return assignments, nil
}

func (s *Store) GetAssignment(_ context.Context, id string) (domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return domain.Assignment{}, domain.ErrAssignmentNotFound
	}
	return a, nil
}

func (s *Store) CreateAssignment(_ context.Context, assignment domain.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[assignment.ID] = assignment
	return nil
}

func (s *Store) UpdateAssignment(_ context.Context, assignment domain.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[assignment.ID]; !ok {
		return domain.ErrAssignmentNotFound
	}
	s.assignments[assignment.ID] = assignment
	return nil
}

func (s *Store) DeleteAssignment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[id]; !ok {
		return domain.ErrAssignmentNotFound
	}
	delete(s.assignments, id)
	for k, sub := range s.submissions {
		if sub.AssignmentID == id {
			delete(s.submissions, k)
		}
	}
	return nil
}

// quiz results

func (s *Store) CreateResult(_ context.Context, result domain.QuizResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *Store) BestScore(_ context.Context, userID, moduleID string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best, found := 0, false
	for _, r := range s.results {
		if r.UserID != userID || r.ModuleID != moduleID {
			continue
		}
		if !found || r.ScorePercent > best {
			best = r.ScorePercent
		}
		found = true
	}
	return best, found, nil
}

func (s *Store) BestScores(_ context.Context, userID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bests := make(map[string]int)
	for _, r := range s.results {
		if r.UserID != userID {
			continue
		}
		if best, ok := bests[r.ModuleID]; !ok || r.ScorePercent > best {
			bests[r.ModuleID] = r.ScorePercent
		}
	}
	return bests, nil
}

func (s *Store) LatestResult(ctx context.Context, userID, moduleID string) (domain.QuizResult, bool, error) {
	results, err := s.ListResults(ctx, userID, moduleID)
	if err != nil || len(results) == 0 {
		return domain.QuizResult{}, false, err
	}
	return results[0], true, nil
}

func (s *Store) ListResults(_ context.Context, userID, moduleID string) ([]domain.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := []domain.QuizResult{}
	// appended in submission order; walk backwards for newest first
	for i := len(s.results) - 1; i >= 0; i-- {
		r := s.results[i]
		if r.UserID == userID && r.ModuleID == moduleID {
			results = append(results, r)
		}
	}
	return results, nil
}

func (s *Store) ListAllResults(_ context.Context) ([]domain.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]domain.QuizResult, len(s.results))
	copy(results, s.results)
	return results, nil
}

// submissions

func (s *Store) UpsertSubmission(_ context.Context, submission domain.Submission) (domain.Submission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.submissions {
		if existing.UserID != submission.UserID || existing.AssignmentID != submission.AssignmentID {
			continue
		}
		existing.FileURL = submission.FileURL
		existing.SubmittedAt = submission.SubmittedAt
		existing.Status = domain.SubmissionNew
		s.submissions[id] = existing
		return existing, true, nil
	}
	s.submissions[submission.ID] = submission
	return submission, false, nil
}

func (s *Store) GetSubmission(_ context.Context, id string) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, nil
}

func (s *Store) FindSubmission(_ context.Context, userID, assignmentID string) (domain.Submission, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.submissions {
		if sub.UserID == userID && sub.AssignmentID == assignmentID {
			return sub, true, nil
		}
	}
	return domain.Submission{}, false, nil
}

func (s *Store) ListUserSubmissions(_ context.Context, userID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := []domain.Submission{}
	for _, sub := range s.submissions {
		if sub.UserID == userID {
			subs = append(subs, sub)
		}
	}
	sortSubmissions(subs)
	return subs, nil
}

func (s *Store) ListAllSubmissions(_ context.Context) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := make([]domain.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		subs = append(subs, sub)
	}
	sortSubmissions(subs)
	return subs, nil
}

func (s *Store) GradeSubmission(_ context.Context, id string, grade int, feedback *string, gradedAt time.Time) (domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	g := grade
	sub.Grade = &g
	sub.Feedback = feedback
	sub.Status = domain.SubmissionGraded
	at := gradedAt
	sub.GradedAt = &at
	s.submissions[id] = sub
	return sub, nil
}

// newest first
func sortSubmissions(subs []domain.Submission) {
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.After(subs[j].SubmittedAt) })
}
