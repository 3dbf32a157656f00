package app

import (
	"math"
	"sort"

	"learning-platform/internal/domain"
)

// ScoreQuiz grades answers against the module's questions. Questions without
// an answer count as incorrect. With no questions the score is 0.
func ScoreQuiz(questions []domain.Question, answers []domain.SubmittedAnswer) domain.QuizScore {
	ordered := make([]domain.Question, len(questions))
	copy(ordered, questions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	// first answer per question wins
	byQuestion := make(map[string][]string, len(answers))
	for _, a := range answers {
		if _, seen := byQuestion[a.QuestionID]; seen {
			continue
		}
		byQuestion[a.QuestionID] = a.SelectedOptionIDs
	}

	score := domain.QuizScore{
		TotalQuestions: len(ordered),
		Details:        make([]domain.AnswerDetail, 0, len(ordered)),
	}
	for _, q := range ordered {
		selected := byQuestion[q.ID]
		if selected == nil {
			selected = []string{}
		}
		correct := correctOptionIDs(q)
		ok := isAnswerCorrect(q, selected, correct)
		if ok {
			score.CorrectAnswers++
		}
		score.Details = append(score.Details, domain.AnswerDetail{
			QuestionID:        q.ID,
			SelectedOptionIDs: selected,
			CorrectOptionIDs:  correct,
			IsCorrect:         ok,
		})
	}
	score.ScorePercent = scorePercent(score.CorrectAnswers, score.TotalQuestions)
	return score
}

func scorePercent(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// correctOptionIDs lists the options flagged correct, in option order.
func correctOptionIDs(q domain.Question) []string {
	options := make([]domain.AnswerOption, len(q.Options))
	copy(options, q.Options)
	sort.SliceStable(options, func(i, j int) bool { return options[i].Order < options[j].Order })

	ids := []string{}
	for _, opt := range options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

func isAnswerCorrect(q domain.Question, selected, correct []string) bool {
	picked := toSet(selected)
	switch q.Type {
	case domain.QuestionSingle:
		// only the first correct option counts; creation rejects more than one
		if len(correct) == 0 || len(picked) != 1 {
			return false
		}
		_, ok := picked[correct[0]]
		return ok
	case domain.QuestionMultiple:
		if len(correct) == 0 || len(picked) != len(correct) {
			return false
		}
		for _, id := range correct {
			if _, ok := picked[id]; !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
