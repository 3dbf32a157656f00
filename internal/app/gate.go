package app

import "learning-platform/internal/domain"

// DefaultPassThresholdPercent is the quiz score needed to pass a module.
const DefaultPassThresholdPercent = 50

// GateInput is what the gate needs to know about one module, in module order.
type GateInput struct {
	ModuleID         string
	BestScorePercent *int
	AssignmentCount  int
	SubmissionCount  int
}

// modulePassed reports whether the student passed this module on its own merits.
// Modules without assignments only require the quiz threshold.
func modulePassed(in GateInput, threshold int) bool {
	if in.BestScorePercent == nil || *in.BestScorePercent < threshold {
		return false
	}
	if in.AssignmentCount > 0 && in.SubmissionCount == 0 {
		return false
	}
	return true
}

// ComputeStatuses derives locked/available/passed for modules sorted by order.
// Passing module N only unlocks module N+1.
func ComputeStatuses(inputs []GateInput, threshold int) []domain.ModuleStatus {
	statuses := make([]domain.ModuleStatus, len(inputs))
	prevPassed := false
	for i, in := range inputs {
		passed := modulePassed(in, threshold)
		switch {
		case passed:
			statuses[i] = domain.StatusPassed
		case i == 0 || prevPassed:
			statuses[i] = domain.StatusAvailable
		default:
			statuses[i] = domain.StatusLocked
		}
		prevPassed = passed
	}
	return statuses
}
