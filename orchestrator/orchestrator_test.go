package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mason-sapiens/sapiens-mvp/agent"
	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/model"
	"github.com/mason-sapiens/sapiens-mvp/store"
)

const (
	problemStatement = "New fintech users churn within their first week because onboarding " +
		"never demonstrates value, measured by week one retention."
	solutionSketch = "Run a cohort analysis comparing activated and churned users, " +
		"isolate the aha moment, and redesign onboarding around reaching it faster."
	progressUpdate = "I finished this milestone and attached the concrete deliverable " +
		"covering everything the plan asked for this step."
	finalSubmission = "I built a churn dashboard with cohort analysis and wrote a " +
		"ten page report on retention drivers across user segments."
)

const projectJSON = `{
	"project": {
		"title": "Fintech Churn Analysis",
		"project_type": "analysis",
		"description": "Diagnose week one churn for a consumer fintech app.",
		"why_relevant": "Retention analysis is core PM work.",
		"feasibility": "Public data plus two weeks of evenings.",
		"deliverables": [
			{"name": "Retention report", "description": "Findings and recommendations.",
			 "format": "pdf", "evaluation_criteria": ["depth", "clarity"]}
		]
	},
	"reasoning": "Matches the target role and domain."
}`

const approvedProblemJSON = `{
	"scores": {"market_relevance": 8, "clarity": 7, "feasibility": 6},
	"feedback": "Specific, measurable, and market aware.",
	"suggestions": []
}`

const approvedSolutionJSON = `{
	"scores": {"logical_coherence": 8, "innovation": 7,
	           "implementation_feasibility": 8, "impact_potential": 7},
	"feedback": "Coherent and practical."
}`

const planJSON = `{
	"plan": {"milestones": [
		{"order": 1, "title": "Scope", "description": "Pick the app and metrics.", "deliverable": "Scope doc", "status": "not_started"},
		{"order": 2, "title": "Data", "description": "Assemble cohort data.", "deliverable": "Dataset", "status": "not_started"},
		{"order": 3, "title": "Analysis", "description": "Compare cohorts.", "deliverable": "Notebook", "status": "not_started"},
		{"order": 4, "title": "Report", "description": "Write it up.", "deliverable": "Report", "status": "not_started"}
	]},
	"feedback": "Lean plan, two weeks of work.",
	"next_step": "Draft the scope doc."
}`

const progressJSON = `{
	"feedback": "Deliverable accepted.",
	"next_step": "Move to the next milestone.",
	"milestone_done": true
}`

const reviewJSON = `{
	"review": {
		"overall_score": 8.5,
		"criterion_scores": {"depth": 9, "clarity": 8},
		"feedback": "Thorough, evidence backed work.",
		"strengths": ["Clear methodology"],
		"improvements": ["Shorter summary"],
		"skills_demonstrated": ["data analysis"]
	}
}`

const resumeJSON = `{
	"resume": {
		"project_title": "Fintech Churn Analysis",
		"one_liner": "Diagnosed week one churn for a fintech app.",
		"description": "A two week retention analysis project.",
		"bullets": [
			{"text": "Built an interactive churn dashboard", "skills": ["SQL"],
			 "evidence": "churn dashboard with cohort analysis"},
			{"text": "Authored a comprehensive retention report", "skills": ["writing"],
			 "evidence": "ten page report on retention drivers"},
			{"text": "Segmented users to isolate churn drivers", "skills": ["analysis"],
			 "evidence": "across user segments"}
		],
		"skills": ["SQL", "analysis"],
		"talking_points": ["Why cohorts beat averages"]
	}
}`

type testMocks struct {
	relay     *model.Mock
	generator *model.Mock
	evaluator *model.Mock
	coach     *model.Mock
	reviewer  *model.Mock
}

func happyMocks() *testMocks {
	m := &testMocks{
		relay:     model.NewMock(),
		generator: model.NewMock(),
		evaluator: model.NewMock(),
		coach:     model.NewMock(),
		reviewer:  model.NewMock(),
	}
	m.relay.Respond(`"topic"`, `{"message": "Congratulations on finishing!"}`)
	m.generator.Respond(`"target_role"`, projectJSON)
	m.evaluator.Respond(`"mode": "problem"`, approvedProblemJSON)
	m.evaluator.Respond(`"mode": "solution"`, approvedSolutionJSON)
	m.coach.Respond(`"mode": "plan"`, planJSON)
	m.coach.Respond(`"mode": "progress"`, progressJSON)
	m.reviewer.Respond(`"mode": "review"`, reviewJSON)
	m.reviewer.Respond(`"mode": "resume"`, resumeJSON)
	return m
}

func newTestOrchestrator(st core.Store, m *testMocks) *Orchestrator {
	agents := Agents{
		Relay:     agent.NewRelay(m.relay),
		Generator: agent.NewGenerator(m.generator),
		Evaluator: agent.NewEvaluator(m.evaluator),
		Coach:     agent.NewCoach(m.coach),
		Reviewer:  agent.NewReviewer(m.reviewer),
	}
	return New(st, agents)
}

func send(t *testing.T, o *Orchestrator, userID, message string) *Reply {
	t.Helper()
	reply, err := o.Process(context.Background(), userID, message)
	require.NoError(t, err, "message %q", message)
	return reply
}

func TestValidation(t *testing.T) {
	o := newTestOrchestrator(store.NewInMemoryStore(), happyMocks())
	ctx := context.Background()

	_, err := o.Process(ctx, "", "hello")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = o.Process(ctx, "user-1", "   ")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = o.Process(ctx, "user-1", strings.Repeat("x", MaxMessageLength+1))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestUnknownUserStrictMode(t *testing.T) {
	st := store.NewInMemoryStore()
	m := happyMocks()
	agents := Agents{
		Relay:     agent.NewRelay(m.relay),
		Generator: agent.NewGenerator(m.generator),
		Evaluator: agent.NewEvaluator(m.evaluator),
		Coach:     agent.NewCoach(m.coach),
		Reviewer:  agent.NewReviewer(m.reviewer),
	}
	o := New(st, agents, func(opts *Options) { opts.StrictUsers = true })

	_, err := o.Process(context.Background(), "stranger", "hello")
	assert.ErrorIs(t, err, core.ErrUnknownUser)
}

// Onboarding runs entirely on field extraction.
func TestOnboardingUsesNoAgent(t *testing.T) {
	st := store.NewInMemoryStore()
	m := happyMocks()
	o := newTestOrchestrator(st, m)
	ctx := context.Background()

	reply := send(t, o, "user-1", "hi")
	assert.Equal(t, core.PhaseOnboarding, reply.CurrentState)

	send(t, o, "user-1", "product manager")
	send(t, o, "user-1", "fintech")
	send(t, o, "user-1", "skip")
	reply = send(t, o, "user-1", "skip")
	assert.Equal(t, core.PhaseProjectGeneration, reply.CurrentState)

	assert.Zero(t, m.relay.Calls())
	assert.Zero(t, m.generator.Calls())
	assert.Zero(t, m.evaluator.Calls())
	assert.Zero(t, m.coach.Calls())
	assert.Zero(t, m.reviewer.Calls())

	state, err := st.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "product manager", state.TargetRole)
	assert.Equal(t, "fintech", state.TargetDomain)
	assert.Empty(t, state.Background)

	transitions, err := st.ListTransitions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.True(t, transitions[0].Accepted)
	assert.Equal(t, core.PhaseOnboarding, transitions[0].FromState)

	entries, err := st.ListEntries(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, entries, 10, "two entries per turn")
}

func TestOnboardingFirstMessageCanAnswerRole(t *testing.T) {
	st := store.NewInMemoryStore()
	o := newTestOrchestrator(st, happyMocks())
	ctx := context.Background()

	reply := send(t, o, "user-1", "Product Manager")
	assert.Equal(t, core.PhaseOnboarding, reply.CurrentState)
	assert.Contains(t, reply.ResponseText, "industry", "next question is the domain")

	state, err := st.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Product Manager", state.TargetRole)

	send(t, o, "user-1", "fintech")
	send(t, o, "user-1", "skip")
	reply = send(t, o, "user-1", "skip")
	assert.Equal(t, core.PhaseProjectGeneration, reply.CurrentState)
}

func TestOnboardingRoleAndDomainCannotBeSkipped(t *testing.T) {
	st := store.NewInMemoryStore()
	o := newTestOrchestrator(st, happyMocks())
	ctx := context.Background()

	send(t, o, "user-1", "hi")
	reply := send(t, o, "user-1", "skip")
	assert.Equal(t, msgRoleRequired, reply.ResponseText)

	state, err := st.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, state.TargetRole)

	send(t, o, "user-1", "product manager")
	reply = send(t, o, "user-1", "skip")
	assert.Equal(t, msgDomainRequired, reply.ResponseText)

	state, err = st.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "product manager", state.TargetRole)
	assert.Empty(t, state.TargetDomain)
}

func TestRejectionMessageNamesEveryRequiredField(t *testing.T) {
	fields := []core.FieldName{
		core.FieldTargetRole, core.FieldTargetDomain,
		core.FieldProjectID, core.FieldProjectApproved,
		core.FieldProblemID, core.FieldProblemApproved,
		core.FieldSolutionID, core.FieldSolutionApproved,
		core.FieldMilestonePlanID, core.FieldMilestonesComplete,
		core.FieldReviewID, core.FieldResumeGenerated,
	}
	for _, f := range fields {
		inv := &core.InvalidTransitionError{Missing: []core.FieldName{f}}
		assert.NotEqual(t, msgTryAgain, rejectionMessage(inv), "no prompt registered for %s", f)
	}
}

func TestFullJourney(t *testing.T) {
	st := store.NewInMemoryStore()
	m := happyMocks()
	o := newTestOrchestrator(st, m)
	ctx := context.Background()

	send(t, o, "user-1", "hi")
	send(t, o, "user-1", "product manager")
	send(t, o, "user-1", "fintech")
	send(t, o, "user-1", "skip")
	send(t, o, "user-1", "skip")

	reply := send(t, o, "user-1", "let's go")
	assert.Equal(t, core.PhaseProjectGeneration, reply.CurrentState)
	assert.Contains(t, reply.ResponseText, "Fintech Churn Analysis")

	reply = send(t, o, "user-1", "yes")
	assert.Equal(t, core.PhaseProblemDefinition, reply.CurrentState)

	reply = send(t, o, "user-1", problemStatement)
	assert.Equal(t, core.PhaseSolutionDesign, reply.CurrentState)

	reply = send(t, o, "user-1", solutionSketch)
	assert.Equal(t, core.PhaseExecution, reply.CurrentState)

	reply = send(t, o, "user-1", "ready for the plan")
	assert.Equal(t, core.PhaseExecution, reply.CurrentState)
	assert.Contains(t, reply.ResponseText, "Scope")

	for i := 0; i < 3; i++ {
		reply = send(t, o, "user-1", progressUpdate)
		assert.Equal(t, core.PhaseExecution, reply.CurrentState)
	}
	reply = send(t, o, "user-1", progressUpdate)
	assert.Equal(t, core.PhaseReview, reply.CurrentState)

	reply = send(t, o, "user-1", finalSubmission)
	assert.Equal(t, core.PhaseReview, reply.CurrentState)
	assert.Contains(t, reply.ResponseText, "8.5")

	reply = send(t, o, "user-1", "resume please")
	assert.Equal(t, core.PhaseCompleted, reply.CurrentState)
	assert.Contains(t, reply.ResponseText, "churn dashboard")

	reply = send(t, o, "user-1", "thank you")
	assert.Equal(t, core.PhaseCompleted, reply.CurrentState)
	assert.Equal(t, "Congratulations on finishing!", reply.ResponseText)

	transitions, err := st.ListTransitions(ctx, "user-1")
	require.NoError(t, err)
	accepted := 0
	for _, tr := range transitions {
		if tr.Accepted {
			accepted++
		}
	}
	assert.Equal(t, 6, accepted, "one accepted transition per phase change")

	arts, err := st.ListArtifacts(ctx, "user-1")
	require.NoError(t, err)
	kinds := map[core.ArtifactKind]int{}
	for _, a := range arts {
		kinds[a.Kind]++
	}
	assert.Equal(t, 1, kinds[core.ArtifactProject])
	assert.Equal(t, 1, kinds[core.ArtifactProblem])
	assert.Equal(t, 1, kinds[core.ArtifactSolution])
	assert.Equal(t, 5, kinds[core.ArtifactMilestonePlan], "initial plan plus four progress updates")
	assert.Equal(t, 1, kinds[core.ArtifactReviewKind])
	assert.Equal(t, 1, kinds[core.ArtifactResume])
}

func TestProjectRejectionRegenerates(t *testing.T) {
	st := store.NewInMemoryStore()
	m := happyMocks()
	o := newTestOrchestrator(st, m)

	send(t, o, "user-1", "hi")
	send(t, o, "user-1", "product manager")
	send(t, o, "user-1", "fintech")
	send(t, o, "user-1", "skip")
	send(t, o, "user-1", "skip")
	send(t, o, "user-1", "go")
	require.Equal(t, 1, m.generator.Calls())

	reply := send(t, o, "user-1", "no")
	assert.Equal(t, core.PhaseProjectGeneration, reply.CurrentState)
	assert.Equal(t, 2, m.generator.Calls(), "rejection triggers exactly one regeneration")

	arts, err := st.ListArtifacts(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, arts, 2, "rejected proposals are superseded, not deleted")
}

func TestAmbiguousApprovalRepromptsWithoutAgent(t *testing.T) {
	m := happyMocks()
	o := newTestOrchestrator(store.NewInMemoryStore(), m)

	send(t, o, "user-1", "hi")
	send(t, o, "user-1", "product manager")
	send(t, o, "user-1", "fintech")
	send(t, o, "user-1", "skip")
	send(t, o, "user-1", "skip")
	send(t, o, "user-1", "go")
	calls := m.generator.Calls()

	reply := send(t, o, "user-1", "maybe, tell me more")
	assert.Equal(t, core.PhaseProjectGeneration, reply.CurrentState)
	assert.Equal(t, msgYesOrNo, reply.ResponseText)
	assert.Equal(t, calls, m.generator.Calls(), "no agent call for an ambiguous reply")
}

// A failing evaluation keeps the user in place with actionable feedback.
func TestNeedsRevisionStaysInPhase(t *testing.T) {
	st := store.NewInMemoryStore()
	m := happyMocks()
	m.evaluator = model.NewMock()
	m.evaluator.Respond(`"mode": "problem"`, `{
		"scores": {"market_relevance": 5, "clarity": 7, "feasibility": 8},
		"feedback": "The market angle is weak.",
		"suggestions": ["Name the buyer explicitly."]
	}`)
	o := newTestOrchestrator(st, m)
	ctx := context.Background()

	state := core.NewUserState("user-1")
	state.CurrentState = core.PhaseProblemDefinition
	state.TargetRole = "product manager"
	state.TargetDomain = "fintech"
	state.ProjectID = "p-1"
	state.ProjectApproved = true
	require.NoError(t, st.PutState(ctx, state))

	reply := send(t, o, "user-1", problemStatement)
	assert.Equal(t, core.PhaseProblemDefinition, reply.CurrentState)
	assert.Contains(t, reply.ResponseText, "The market angle is weak.")
	assert.Contains(t, reply.ResponseText, "Name the buyer explicitly.")

	got, err := st.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, got.ProblemApproved)
	assert.Equal(t, 1, got.Revision(core.PhaseProblemDefinition))
	assert.NotEmpty(t, got.ProblemID, "the scored attempt is persisted")
}

// An agent failure preserves the turn and tells the user to retry.
func TestAgentFailurePreservesState(t *testing.T) {
	st := store.NewInMemoryStore()
	m := happyMocks()
	m.evaluator = model.NewMock()
	m.evaluator.Fail(errors.New("backend down"))
	o := newTestOrchestrator(st, m)
	ctx := context.Background()

	state := core.NewUserState("user-1")
	state.CurrentState = core.PhaseProblemDefinition
	state.TargetRole = "product manager"
	state.TargetDomain = "fintech"
	state.ProjectID = "p-1"
	state.ProjectApproved = true
	require.NoError(t, st.PutState(ctx, state))

	reply, err := o.Process(ctx, "user-1", problemStatement)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseProblemDefinition, reply.CurrentState)
	assert.Equal(t, msgAgentFailure, reply.ResponseText)
	assert.Equal(t, 2, m.evaluator.Calls(), "one retry before failing closed")

	got, err := st.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseProblemDefinition, got.CurrentState)
	assert.Empty(t, got.ProblemID)

	entries, err := st.ListEntries(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[1].Payload, "agent failure")

	transitions, err := st.ListTransitions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, transitions, "no transition is attempted on agent failure")
}

func TestReviseUpstreamReturnsToProblemDefinition(t *testing.T) {
	st := store.NewInMemoryStore()
	m := happyMocks()
	m.evaluator = model.NewMock()
	m.evaluator.Respond(`"mode": "solution"`, `{
		"scores": {"logical_coherence": 5, "innovation": 7,
		           "implementation_feasibility": 7, "impact_potential": 6},
		"feedback": "The problem is too broad to solve coherently.",
		"revise_upstream": true
	}`)
	o := newTestOrchestrator(st, m)
	ctx := context.Background()

	problemArt, err := core.NewArtifact("pd-1", "user-1", core.ArtifactProblem, 1,
		core.ProblemDefinition{Statement: "Everything about churn.", Approved: true})
	require.NoError(t, err)
	require.NoError(t, st.SaveArtifact(ctx, problemArt))

	state := core.NewUserState("user-1")
	state.CurrentState = core.PhaseSolutionDesign
	state.TargetRole = "product manager"
	state.TargetDomain = "fintech"
	state.ProjectID = "p-1"
	state.ProjectApproved = true
	state.ProblemID = "pd-1"
	state.ProblemApproved = true
	require.NoError(t, st.PutState(ctx, state))

	reply := send(t, o, "user-1", solutionSketch)
	assert.Equal(t, core.PhaseProblemDefinition, reply.CurrentState)
	assert.Contains(t, reply.ResponseText, "problem definition")

	got, err := st.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, got.ProblemApproved, "re-entry voids the prior approval")
	assert.Empty(t, got.RevisionUnlock, "the unlock is consumed by the transition")

	transitions, err := st.ListTransitions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.True(t, transitions[0].Accepted)
	assert.Equal(t, core.PhaseSolutionDesign, transitions[0].FromState)
	assert.Equal(t, core.PhaseProblemDefinition, transitions[0].ToState)
}

func TestLowReviewScoreReturnsToExecution(t *testing.T) {
	st := store.NewInMemoryStore()
	m := happyMocks()
	m.reviewer = model.NewMock()
	m.reviewer.Respond(`"mode": "review"`, `{
		"review": {
			"overall_score": 4.0,
			"criterion_scores": {"depth": 4, "clarity": 4},
			"feedback": "The deliverables are incomplete."
		}
	}`)
	o := newTestOrchestrator(st, m)
	ctx := context.Background()

	projectArt, err := core.NewArtifact("p-1", "user-1", core.ArtifactProject, 1,
		core.Project{Title: "Churn Analysis"})
	require.NoError(t, err)
	require.NoError(t, st.SaveArtifact(ctx, projectArt))

	state := core.NewUserState("user-1")
	state.CurrentState = core.PhaseReview
	state.TargetRole = "product manager"
	state.TargetDomain = "fintech"
	state.ProjectID = "p-1"
	state.ProjectApproved = true
	state.ProblemID = "pd-1"
	state.ProblemApproved = true
	state.SolutionID = "sd-1"
	state.SolutionApproved = true
	state.MilestonePlanID = "mp-1"
	state.TotalMilestones = 4
	state.MilestonesCompleted = 4
	require.NoError(t, st.PutState(ctx, state))

	reply := send(t, o, "user-1", finalSubmission)
	assert.Equal(t, core.PhaseExecution, reply.CurrentState)
	assert.Contains(t, reply.ResponseText, "4.0")

	got, err := st.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, got.MilestonesCompleted)
	assert.Empty(t, got.ReviewID)
}

func TestPersistenceFailureIsFatal(t *testing.T) {
	st := store.NewInMemoryStore()
	o := newTestOrchestrator(st, happyMocks())
	st.FailCommits(true)

	reply, err := o.Process(context.Background(), "user-1", "hi")
	assert.Nil(t, reply)
	assert.ErrorIs(t, err, core.ErrPersistence)
}

func TestSingleFlightRejectsConcurrentRequests(t *testing.T) {
	st := store.NewInMemoryStore()
	m := happyMocks()
	m.generator.Delay(150 * time.Millisecond)
	o := newTestOrchestrator(st, m)
	ctx := context.Background()

	state := core.NewUserState("user-1")
	state.CurrentState = core.PhaseProjectGeneration
	state.TargetRole = "product manager"
	state.TargetDomain = "fintech"
	require.NoError(t, st.PutState(ctx, state))

	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if i == 1 {
				// ensure the first request holds the lock
				time.Sleep(30 * time.Millisecond)
			}
			_, errs[i] = o.Process(ctx, "user-1", "go")
		}(i)
	}
	close(start)
	wg.Wait()

	require.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], core.ErrBusy)

	transitions, err := st.ListTransitions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, transitions, "a proposal turn records no transition")

	entries, err := st.ListEntries(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2, "only the winning request is logged")
}

func TestLogWrittenBeforeResponse(t *testing.T) {
	st := store.NewInMemoryStore()
	o := newTestOrchestrator(st, happyMocks())
	ctx := context.Background()

	reply := send(t, o, "user-1", "hello there")
	entries, err := st.ListEntries(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, core.ActorUser, entries[0].Actor)
	assert.Equal(t, "hello there", entries[0].Payload)
	assert.Equal(t, core.PhaseOnboarding, entries[0].StateAtTime)
	assert.Equal(t, core.ActorAgent, entries[1].Actor)
	assert.Equal(t, reply.ResponseText, entries[1].Payload)
}
