package core

import "time"

// FieldName names a field of UserState that the state machine can declare
// as required before leaving a phase.
type FieldName string

const (
	FieldTargetRole         FieldName = "target_role"
	FieldTargetDomain       FieldName = "target_domain"
	FieldProjectID          FieldName = "project_id"
	FieldProjectApproved    FieldName = "project_approved"
	FieldProblemID          FieldName = "problem_id"
	FieldProblemApproved    FieldName = "problem_approved"
	FieldSolutionID         FieldName = "solution_id"
	FieldSolutionApproved   FieldName = "solution_approved"
	FieldMilestonePlanID    FieldName = "milestone_plan_id"
	FieldMilestonesComplete FieldName = "milestones_complete"
	FieldReviewID           FieldName = "review_id"
	FieldResumeGenerated    FieldName = "resume_generated"
)

// UserState is the single source of truth for one user's progress through
// the journey. It is owned and mutated exclusively by the orchestrator;
// agents receive copies of the data they need and never write it back.
type UserState struct {
	UserID         string    `json:"user_id"`
	CurrentState   Phase     `json:"current_state"`
	PreviousState  Phase     `json:"previous_state,omitempty"`
	StateEnteredAt time.Time `json:"state_entered_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	// Onboarding profile. Background and Interests are optional.
	TargetRole   string `json:"target_role,omitempty"`
	TargetDomain string `json:"target_domain,omitempty"`
	Background   string `json:"background,omitempty"`
	Interests    string `json:"interests,omitempty"`

	// OnboardingStep tracks which profile question is pending, since
	// skipped optional answers leave their fields empty.
	OnboardingStep int `json:"onboarding_step,omitempty"`

	// Artifact references accumulated per phase.
	ProjectID        string `json:"project_id,omitempty"`
	ProjectApproved  bool   `json:"project_approved"`
	ProblemID        string `json:"problem_id,omitempty"`
	ProblemApproved  bool   `json:"problem_approved"`
	SolutionID       string `json:"solution_id,omitempty"`
	SolutionApproved bool   `json:"solution_approved"`

	MilestonePlanID     string `json:"milestone_plan_id,omitempty"`
	MilestonesCompleted int    `json:"milestones_completed"`
	TotalMilestones     int    `json:"total_milestones"`

	ReviewID        string `json:"review_id,omitempty"`
	ResumeGenerated bool   `json:"resume_generated"`

	// AwaitingFeedback marks that the current phase has presented output
	// and the next inbound message is a user reaction to it.
	AwaitingFeedback bool `json:"awaiting_feedback"`

	// Revisions counts NEEDS_REVISION verdicts received per phase.
	Revisions map[Phase]int `json:"revisions,omitempty"`

	// RevisionUnlock holds the single backward edge target currently
	// unlocked by a NEEDS_REVISION verdict, or "" when none is open.
	RevisionUnlock Phase `json:"revision_unlock,omitempty"`
}

// NewUserState returns a fresh record in the onboarding phase.
func NewUserState(userID string) *UserState {
	now := time.Now().UTC()
	return &UserState{
		UserID:         userID,
		CurrentState:   PhaseOnboarding,
		StateEnteredAt: now,
		LastActivityAt: now,
		Revisions:      map[Phase]int{},
	}
}

// Clone returns a deep copy safe for independent mutation. Handlers work on
// clones so that a rejected turn never leaks partial mutations.
func (s *UserState) Clone() *UserState {
	cp := *s
	cp.Revisions = make(map[Phase]int, len(s.Revisions))
	for k, v := range s.Revisions {
		cp.Revisions[k] = v
	}
	return &cp
}

// FieldSet reports whether the named field is populated on the record.
// Boolean fields count as populated only when true.
func (s *UserState) FieldSet(f FieldName) bool {
	switch f {
	case FieldTargetRole:
		return s.TargetRole != ""
	case FieldTargetDomain:
		return s.TargetDomain != ""
	case FieldProjectID:
		return s.ProjectID != ""
	case FieldProjectApproved:
		return s.ProjectApproved
	case FieldProblemID:
		return s.ProblemID != ""
	case FieldProblemApproved:
		return s.ProblemApproved
	case FieldSolutionID:
		return s.SolutionID != ""
	case FieldSolutionApproved:
		return s.SolutionApproved
	case FieldMilestonePlanID:
		return s.MilestonePlanID != ""
	case FieldMilestonesComplete:
		return s.TotalMilestones > 0 && s.MilestonesCompleted >= s.TotalMilestones
	case FieldReviewID:
		return s.ReviewID != ""
	case FieldResumeGenerated:
		return s.ResumeGenerated
	default:
		return false
	}
}

// BumpRevision increments the revision counter for the given phase.
func (s *UserState) BumpRevision(p Phase) {
	if s.Revisions == nil {
		s.Revisions = map[Phase]int{}
	}
	s.Revisions[p]++
}

// Revision returns the revision counter for the given phase.
func (s *UserState) Revision(p Phase) int { return s.Revisions[p] }

// StateTransition is the immutable audit record of one attempted phase
// change. Written once on commit, never updated.
type StateTransition struct {
	UserID    string    `json:"user_id"`
	FromState Phase     `json:"from_state"`
	ToState   Phase     `json:"to_state"`
	Timestamp time.Time `json:"timestamp"`
	Accepted  bool      `json:"accepted"`
	Reason    string    `json:"reason,omitempty"`
}
