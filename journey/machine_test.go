package journey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mason-sapiens/sapiens-mvp/core"
)

func completeFor(phase core.Phase) *core.UserState {
	s := core.NewUserState("user-1")
	s.CurrentState = phase
	s.TargetRole = "product manager"
	s.TargetDomain = "fintech"
	s.ProjectID = "p-1"
	s.ProjectApproved = true
	s.ProblemID = "pd-1"
	s.ProblemApproved = true
	s.SolutionID = "sd-1"
	s.SolutionApproved = true
	s.MilestonePlanID = "mp-1"
	s.TotalMilestones = 4
	s.MilestonesCompleted = 4
	s.ReviewID = "r-1"
	s.ResumeGenerated = true
	return s
}

func TestApplyForwardChain(t *testing.T) {
	m := New()
	s := completeFor(core.PhaseOnboarding)

	for _, want := range []core.Phase{
		core.PhaseProjectGeneration,
		core.PhaseProblemDefinition,
		core.PhaseSolutionDesign,
		core.PhaseExecution,
		core.PhaseReview,
		core.PhaseCompleted,
	} {
		next, err := m.Apply(s, want)
		require.NoError(t, err, "from %s to %s", s.CurrentState, want)
		assert.Equal(t, want, next.CurrentState)
		assert.Equal(t, s.CurrentState, next.PreviousState)
		s = next
	}
	assert.True(t, s.CurrentState.Terminal())
}

func TestApplyRejectsSkippingPhases(t *testing.T) {
	m := New()
	s := completeFor(core.PhaseOnboarding)

	for _, to := range []core.Phase{
		core.PhaseProblemDefinition,
		core.PhaseExecution,
		core.PhaseCompleted,
	} {
		next, err := m.Apply(s, to)
		assert.Nil(t, next)
		inv, ok := core.IsInvalidTransition(err)
		require.True(t, ok)
		assert.Equal(t, core.PhaseOnboarding, inv.From)
		assert.Equal(t, to, inv.To)
	}
}

func TestApplyRejectsMissingFields(t *testing.T) {
	m := New()
	s := core.NewUserState("user-1")
	s.TargetRole = "data analyst"
	// target domain missing

	next, err := m.Apply(s, core.PhaseProjectGeneration)
	assert.Nil(t, next)
	inv, ok := core.IsInvalidTransition(err)
	require.True(t, ok)
	assert.Equal(t, []core.FieldName{core.FieldTargetDomain}, inv.Missing)

	// input record untouched
	assert.Equal(t, core.PhaseOnboarding, s.CurrentState)
}

func TestApplyRejectsBackwardJumpWithoutUnlock(t *testing.T) {
	m := New()
	s := completeFor(core.PhaseSolutionDesign)

	next, err := m.Apply(s, core.PhaseProblemDefinition)
	assert.Nil(t, next)
	_, ok := core.IsInvalidTransition(err)
	assert.True(t, ok)
}

func TestApplyRevisionEdgeAfterUnlock(t *testing.T) {
	m := New()
	s := completeFor(core.PhaseSolutionDesign)
	m.UnlockRevision(s)
	require.Equal(t, core.PhaseProblemDefinition, s.RevisionUnlock)

	next, err := m.Apply(s, core.PhaseProblemDefinition)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseProblemDefinition, next.CurrentState)
	assert.False(t, next.ProblemApproved, "re-entry voids the prior approval")
	assert.Equal(t, 1, next.Revision(core.PhaseProblemDefinition))
	assert.Empty(t, next.RevisionUnlock, "the unlock is consumed")
}

func TestApplyReviewBackToExecutionResetsProgress(t *testing.T) {
	m := New()
	s := completeFor(core.PhaseReview)
	s.ReviewID = ""
	s.ResumeGenerated = false
	m.UnlockRevision(s)

	next, err := m.Apply(s, core.PhaseExecution)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseExecution, next.CurrentState)
	assert.Zero(t, next.MilestonesCompleted)
	assert.Empty(t, next.ReviewID)
	assert.False(t, next.ResumeGenerated)
}

func TestUnlockRevisionNoOpWithoutEdge(t *testing.T) {
	m := New()
	s := completeFor(core.PhaseExecution)
	m.UnlockRevision(s)
	assert.Empty(t, s.RevisionUnlock)
}

func TestOnlyDeclaredEdgesAccepted(t *testing.T) {
	m := New()
	for _, from := range core.Phases {
		s := completeFor(from)
		m.UnlockRevision(s)
		for _, to := range core.Phases {
			legal := forwardEdges[from] == to || revisionEdges[from] == to
			got := m.CanTransition(s, to)
			assert.Equal(t, legal, got, "%s -> %s", from, to)
		}
	}
}

func TestMissingFields(t *testing.T) {
	m := New()
	s := core.NewUserState("user-1")
	s.CurrentState = core.PhaseExecution
	s.MilestonePlanID = "mp-1"
	s.TotalMilestones = 4
	s.MilestonesCompleted = 2

	assert.Equal(t, []core.FieldName{core.FieldMilestonesComplete}, m.MissingFields(s))

	s.MilestonesCompleted = 4
	assert.Empty(t, m.MissingFields(s))
}
