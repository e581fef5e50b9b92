package core

import "fmt"

// Phase identifies one of the seven fixed stages of a user's journey.
// Phases advance strictly forward except for the closed set of revision
// edges declared in the journey package.
type Phase string

const (
	PhaseOnboarding        Phase = "onboarding"
	PhaseProjectGeneration Phase = "project_generation"
	PhaseProblemDefinition Phase = "problem_definition"
	PhaseSolutionDesign    Phase = "solution_design"
	PhaseExecution         Phase = "execution"
	PhaseReview            Phase = "review"
	PhaseCompleted         Phase = "completed"
)

// Phases lists all phases in journey order.
var Phases = []Phase{
	PhaseOnboarding,
	PhaseProjectGeneration,
	PhaseProblemDefinition,
	PhaseSolutionDesign,
	PhaseExecution,
	PhaseReview,
	PhaseCompleted,
}

// Valid reports whether p is one of the declared phases.
func (p Phase) Valid() bool {
	for _, ph := range Phases {
		if p == ph {
			return true
		}
	}
	return false
}

// Terminal reports whether p has no outgoing edges.
func (p Phase) Terminal() bool { return p == PhaseCompleted }

func (p Phase) String() string { return string(p) }

// ParsePhase converts a stored string into a Phase, rejecting unknown values.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}
