// Package journey encodes the fixed seven-phase state machine of the user
// journey: the forward sequence, the closed set of revision edges, and the
// fields a record must carry before it may leave a phase. The machine is
// pure decision logic; it never performs I/O and never partially mutates a
// record on failure.
package journey

import (
	"time"

	"github.com/mason-sapiens/sapiens-mvp/core"
)

// forwardEdges declares the single legal forward successor of each phase.
var forwardEdges = map[core.Phase]core.Phase{
	core.PhaseOnboarding:        core.PhaseProjectGeneration,
	core.PhaseProjectGeneration: core.PhaseProblemDefinition,
	core.PhaseProblemDefinition: core.PhaseSolutionDesign,
	core.PhaseSolutionDesign:    core.PhaseExecution,
	core.PhaseExecution:         core.PhaseReview,
	core.PhaseReview:            core.PhaseCompleted,
}

// revisionEdges declares the closed set of backward edges. Each is usable
// only after a NEEDS_REVISION verdict has unlocked it on the record; users
// cannot request arbitrary backward jumps.
var revisionEdges = map[core.Phase]core.Phase{
	core.PhaseSolutionDesign: core.PhaseProblemDefinition,
	core.PhaseReview:         core.PhaseExecution,
}

// requiredFields declares, per phase, the UserState fields that must be
// populated before any forward transition out of that phase.
var requiredFields = map[core.Phase][]core.FieldName{
	core.PhaseOnboarding:        {core.FieldTargetRole, core.FieldTargetDomain},
	core.PhaseProjectGeneration: {core.FieldProjectID, core.FieldProjectApproved},
	core.PhaseProblemDefinition: {core.FieldProblemID, core.FieldProblemApproved},
	core.PhaseSolutionDesign:    {core.FieldSolutionID, core.FieldSolutionApproved},
	core.PhaseExecution:         {core.FieldMilestonePlanID, core.FieldMilestonesComplete},
	core.PhaseReview:            {core.FieldReviewID, core.FieldResumeGenerated},
	core.PhaseCompleted:         {},
}

// Machine is the stateless decision core. The zero value is usable; New
// exists for symmetry with the other components.
type Machine struct{}

// New returns a Machine.
func New() *Machine { return &Machine{} }

// RequiredFields returns the fields that must be populated before leaving
// the given phase. The returned slice must not be mutated.
func (m *Machine) RequiredFields(p core.Phase) []core.FieldName {
	return requiredFields[p]
}

// MissingFields returns the required fields of the record's current phase
// that are not yet populated.
func (m *Machine) MissingFields(rec *core.UserState) []core.FieldName {
	var missing []core.FieldName
	for _, f := range requiredFields[rec.CurrentState] {
		if !rec.FieldSet(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// CanTransition reports whether (from, to) is a declared forward edge, or a
// declared revision edge that the record has unlocked.
func (m *Machine) CanTransition(rec *core.UserState, to core.Phase) bool {
	from := rec.CurrentState
	if forwardEdges[from] == to {
		return true
	}
	return revisionEdges[from] == to && rec.RevisionUnlock == to
}

// Apply validates and performs the transition, returning a new record. The
// input record is never mutated; on failure the returned record is nil and
// the error is an *core.InvalidTransitionError.
func (m *Machine) Apply(rec *core.UserState, to core.Phase) (*core.UserState, error) {
	from := rec.CurrentState
	if !m.CanTransition(rec, to) {
		return nil, &core.InvalidTransitionError{From: from, To: to}
	}
	if forwardEdges[from] == to {
		if missing := m.MissingFields(rec); len(missing) > 0 {
			return nil, &core.InvalidTransitionError{From: from, To: to, Missing: missing}
		}
	}

	next := rec.Clone()
	next.PreviousState = from
	next.CurrentState = to
	next.StateEnteredAt = time.Now().UTC()
	next.AwaitingFeedback = false
	next.RevisionUnlock = ""

	if revisionEdges[from] == to {
		// Re-entering an earlier phase voids its prior approval so the
		// revised artifact must pass evaluation again.
		next.BumpRevision(to)
		switch to {
		case core.PhaseProblemDefinition:
			next.ProblemApproved = false
		case core.PhaseExecution:
			next.ReviewID = ""
			next.ResumeGenerated = false
			next.MilestonesCompleted = 0
		}
	}
	return next, nil
}

// UnlockRevision marks the record's declared revision edge as usable after a
// NEEDS_REVISION verdict. It is a no-op for phases without a revision edge.
func (m *Machine) UnlockRevision(rec *core.UserState) {
	if to, ok := revisionEdges[rec.CurrentState]; ok {
		rec.RevisionUnlock = to
	}
}

// NextForward returns the declared forward successor of p, or "" when p is
// terminal.
func (m *Machine) NextForward(p core.Phase) core.Phase { return forwardEdges[p] }
