package orchestrator

import (
	"context"
	"fmt"

	"github.com/mason-sapiens/sapiens-mvp/agent"
	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/internal/util"
)

// reviewPassThreshold is the minimum overall review score that lets the
// journey continue to resume generation instead of sending the user back to
// execution.
const reviewPassThreshold = 6.0

// handleOnboarding collects the user profile by pure field extraction.
// No agent is invoked in this phase.
func (o *Orchestrator) handleOnboarding(t *turn) error {
	s := t.state
	switch s.OnboardingStep {
	case 0:
		// A first message that already names a role is taken as the
		// answer, not discarded behind the greeting.
		if !isGreeting(t.message) && !isSkip(t.message) {
			s.TargetRole = t.message
			s.OnboardingStep = 2
			t.response = fmt.Sprintf("%s %s sounds like a strong target. %s", msgWelcome, s.TargetRole, msgDomainQuestion)
			return nil
		}
		s.OnboardingStep = 1
		t.response = msgAskRole
	case 1:
		if isSkip(t.message) {
			t.response = msgRoleRequired
			return nil
		}
		s.TargetRole = t.message
		s.OnboardingStep = 2
		t.response = msgAskDomain
	case 2:
		if isSkip(t.message) {
			t.response = msgDomainRequired
			return nil
		}
		s.TargetDomain = t.message
		s.OnboardingStep = 3
		t.response = msgAskBackground
	case 3:
		if !isSkip(t.message) {
			s.Background = t.message
		}
		s.OnboardingStep = 4
		t.response = msgAskInterests
	default:
		if !isSkip(t.message) {
			s.Interests = t.message
		}
		if o.transition(t, core.PhaseProjectGeneration, "onboarding complete") {
			t.response = fmt.Sprintf(
				"Great, your profile is set: %s in %s. Send any message and I'll propose a portfolio project for you.",
				s.TargetRole, s.TargetDomain)
		}
	}
	return nil
}

// handleProjectGeneration runs the propose/approve loop. An approval
// transitions forward; a rejection regenerates with the rejected titles
// excluded.
func (o *Orchestrator) handleProjectGeneration(ctx context.Context, t *turn) error {
	s := t.state
	if s.AwaitingFeedback {
		switch parseApproval(t.message) {
		case approvalYes:
			s.ProjectApproved = true
			s.AwaitingFeedback = false
			if o.transition(t, core.PhaseProblemDefinition, "project approved") {
				t.response = msgAskProblem
			}
			return nil
		case approvalNo:
			// regenerate below
		default:
			t.response = msgYesOrNo
			return nil
		}
	}
	return o.proposeProject(ctx, t)
}

func (o *Orchestrator) proposeProject(ctx context.Context, t *turn) error {
	s := t.state
	priorTitles, revision, err := o.priorProjectTitles(ctx, t.userID)
	if err != nil {
		return err
	}

	t.agentName = o.agents.Generator.Name()
	out, err := o.agents.Generator.Generate(ctx, agent.GeneratorInput{
		UserID:       s.UserID,
		TargetRole:   s.TargetRole,
		TargetDomain: s.TargetDomain,
		Background:   s.Background,
		Interests:    s.Interests,
		PriorTitles:  priorTitles,
	})
	if err != nil {
		return err
	}

	art, err := core.NewArtifact(util.NewID(), s.UserID, core.ArtifactProject, revision+1, out.Project)
	if err != nil {
		return err
	}
	t.artifacts = append(t.artifacts, art)
	s.ProjectID = art.ID
	s.ProjectApproved = false
	s.AwaitingFeedback = true
	t.response = formatProject(&out.Project)
	return nil
}

// handleProblemDefinition treats the message as the user's problem
// statement, evaluates it through the market lens, and moves forward only
// on an APPROVED verdict.
func (o *Orchestrator) handleProblemDefinition(ctx context.Context, t *turn) error {
	s := t.state
	if !substantive(t.message, 10) {
		if s.ProblemID == "" {
			t.response = msgAskProblem
		} else {
			t.response = msgProblemTooShort
		}
		return nil
	}

	problem := &core.ProblemDefinition{ProjectID: s.ProjectID, Statement: t.message}

	t.agentName = o.agents.Evaluator.Name()
	out, err := o.agents.Evaluator.Generate(ctx, agent.EvaluatorInput{
		UserID:  s.UserID,
		Mode:    agent.ModeProblem,
		Problem: problem,
	})
	if err != nil {
		return err
	}

	problem.Scores = out.Scores
	problem.Feedback = out.Feedback
	problem.Approved = out.Verdict == agent.VerdictApproved

	rev, err := o.nextRevision(ctx, t.userID, core.ArtifactProblem)
	if err != nil {
		return err
	}
	art, err := core.NewArtifact(util.NewID(), s.UserID, core.ArtifactProblem, rev, problem)
	if err != nil {
		return err
	}
	t.artifacts = append(t.artifacts, art)
	s.ProblemID = art.ID

	if !problem.Approved {
		s.ProblemApproved = false
		s.BumpRevision(core.PhaseProblemDefinition)
		t.response = formatRevision(out.Scores, out.Feedback, out.Suggestions)
		return nil
	}

	s.ProblemApproved = true
	if o.transition(t, core.PhaseSolutionDesign, "problem definition approved") {
		t.response = fmt.Sprintf("Approved! Scores: %s.\n\n%s", formatScores(out.Scores), msgAskSolution)
	}
	return nil
}

// handleSolutionDesign evaluates the message as a solution design against
// the approved problem. A NEEDS_REVISION verdict that blames the problem
// itself unlocks the backward edge and takes it in the same turn.
func (o *Orchestrator) handleSolutionDesign(ctx context.Context, t *turn) error {
	s := t.state
	if !substantive(t.message, 10) {
		if s.SolutionID == "" {
			t.response = msgAskSolution
		} else {
			t.response = msgSolutionTooShort
		}
		return nil
	}

	var problem core.ProblemDefinition
	if err := o.loadArtifact(ctx, t.userID, s.ProblemID, &problem); err != nil {
		return err
	}

	solution := &core.SolutionDesign{
		ProjectID: s.ProjectID,
		ProblemID: s.ProblemID,
		Approach:  t.message,
	}

	t.agentName = o.agents.Evaluator.Name()
	out, err := o.agents.Evaluator.Generate(ctx, agent.EvaluatorInput{
		UserID:         s.UserID,
		Mode:           agent.ModeSolution,
		Solution:       solution,
		ProblemContext: &problem,
	})
	if err != nil {
		return err
	}

	solution.Scores = out.Scores
	solution.Feedback = out.Feedback
	solution.Approved = out.Verdict == agent.VerdictApproved

	rev, err := o.nextRevision(ctx, t.userID, core.ArtifactSolution)
	if err != nil {
		return err
	}
	art, err := core.NewArtifact(util.NewID(), s.UserID, core.ArtifactSolution, rev, solution)
	if err != nil {
		return err
	}
	t.artifacts = append(t.artifacts, art)
	s.SolutionID = art.ID

	if solution.Approved {
		s.SolutionApproved = true
		if o.transition(t, core.PhaseExecution, "solution design approved") {
			t.response = fmt.Sprintf("Approved! Scores: %s.\n\n%s", formatScores(out.Scores), msgAskPlan)
		}
		return nil
	}

	s.SolutionApproved = false
	s.BumpRevision(core.PhaseSolutionDesign)

	if out.ReviseUpstream {
		o.machine.UnlockRevision(s)
		if o.transition(t, core.PhaseProblemDefinition, "solution revision traced back to the problem definition") {
			t.response = fmt.Sprintf(
				"The evaluation found the real weakness in the problem definition itself.\n\n%s\n\nLet's rework it: send a revised problem statement.",
				out.Feedback)
		}
		return nil
	}

	t.response = formatRevision(out.Scores, out.Feedback, out.Suggestions)
	return nil
}

// handleExecution creates the milestone plan on first contact in the phase,
// then tracks progress updates milestone by milestone.
func (o *Orchestrator) handleExecution(ctx context.Context, t *turn) error {
	s := t.state
	if s.MilestonePlanID == "" {
		return o.createPlan(ctx, t)
	}

	var plan core.MilestonePlan
	if err := o.loadArtifact(ctx, t.userID, s.MilestonePlanID, &plan); err != nil {
		return err
	}

	t.agentName = o.agents.Coach.Name()
	out, err := o.agents.Coach.Generate(ctx, agent.CoachInput{
		UserID:           s.UserID,
		Mode:             agent.ModeProgress,
		Plan:             &plan,
		CurrentMilestone: s.MilestonesCompleted + 1,
		Update:           t.message,
	})
	if err != nil {
		return err
	}

	if out.MilestoneDone {
		if idx := s.MilestonesCompleted; idx < len(plan.Milestones) {
			plan.Milestones[idx].Status = core.MilestoneCompleted
		}
		s.MilestonesCompleted++

		rev, err := o.nextRevision(ctx, t.userID, core.ArtifactMilestonePlan)
		if err != nil {
			return err
		}
		art, err := core.NewArtifact(util.NewID(), s.UserID, core.ArtifactMilestonePlan, rev, &plan)
		if err != nil {
			return err
		}
		t.artifacts = append(t.artifacts, art)
		s.MilestonePlanID = art.ID
	}

	if s.TotalMilestones > 0 && s.MilestonesCompleted >= s.TotalMilestones {
		if o.transition(t, core.PhaseReview, "all milestones complete") {
			t.response = "That was the last milestone, fantastic work! " + msgAskSubmission
		}
		return nil
	}

	response := out.Feedback
	if out.MilestoneDone {
		response = fmt.Sprintf("Milestone %d of %d done! %s", s.MilestonesCompleted, s.TotalMilestones, out.Feedback)
	} else if out.Stagnation {
		response = "It sounds like you're circling the same ground. " + out.Feedback
	}
	t.response = fmt.Sprintf("%s\n\nNext step: %s", response, out.NextStep)
	return nil
}

func (o *Orchestrator) createPlan(ctx context.Context, t *turn) error {
	s := t.state
	var problem core.ProblemDefinition
	if err := o.loadArtifact(ctx, t.userID, s.ProblemID, &problem); err != nil {
		return err
	}
	var solution core.SolutionDesign
	if err := o.loadArtifact(ctx, t.userID, s.SolutionID, &solution); err != nil {
		return err
	}

	t.agentName = o.agents.Coach.Name()
	out, err := o.agents.Coach.Generate(ctx, agent.CoachInput{
		UserID:   s.UserID,
		Mode:     agent.ModePlan,
		Problem:  &problem,
		Solution: &solution,
	})
	if err != nil {
		return err
	}

	plan := out.Plan
	plan.ProjectID = s.ProjectID
	for i := range plan.Milestones {
		if plan.Milestones[i].Order == 0 {
			plan.Milestones[i].Order = i + 1
		}
		if plan.Milestones[i].Status == "" {
			plan.Milestones[i].Status = core.MilestoneNotStarted
		}
	}

	rev, err := o.nextRevision(ctx, t.userID, core.ArtifactMilestonePlan)
	if err != nil {
		return err
	}
	art, err := core.NewArtifact(util.NewID(), s.UserID, core.ArtifactMilestonePlan, rev, plan)
	if err != nil {
		return err
	}
	t.artifacts = append(t.artifacts, art)
	s.MilestonePlanID = art.ID
	s.TotalMilestones = len(plan.Milestones)
	s.MilestonesCompleted = 0
	t.response = formatPlan(plan, out.Feedback, out.NextStep)
	return nil
}

// handleReview reviews the submitted work first, then turns the review into
// the resume package on the following request. A review below the bar sends
// the user back to execution instead.
func (o *Orchestrator) handleReview(ctx context.Context, t *turn) error {
	s := t.state
	if s.ReviewID == "" {
		return o.reviewSubmission(ctx, t)
	}
	if !s.ResumeGenerated {
		return o.generateResume(ctx, t)
	}
	t.response = msgTryAgain
	return nil
}

func (o *Orchestrator) reviewSubmission(ctx context.Context, t *turn) error {
	s := t.state
	if !substantive(t.message, 10) {
		t.response = msgSubmissionTooShort
		return nil
	}

	var project core.Project
	if err := o.loadArtifact(ctx, t.userID, s.ProjectID, &project); err != nil {
		return err
	}

	t.agentName = o.agents.Reviewer.Name()
	out, err := o.agents.Reviewer.Generate(ctx, agent.ReviewerInput{
		UserID:        s.UserID,
		Mode:          agent.ModeReview,
		Project:       &project,
		SubmittedWork: t.message,
	})
	if err != nil {
		return err
	}

	review := out.Review
	review.ProjectID = s.ProjectID
	review.SubmittedWork = t.message

	rev, err := o.nextRevision(ctx, t.userID, core.ArtifactReviewKind)
	if err != nil {
		return err
	}
	art, err := core.NewArtifact(util.NewID(), s.UserID, core.ArtifactReviewKind, rev, review)
	if err != nil {
		return err
	}
	t.artifacts = append(t.artifacts, art)

	if review.OverallScore < reviewPassThreshold {
		o.machine.UnlockRevision(s)
		if o.transition(t, core.PhaseExecution, "review score below the bar") {
			t.response = fmt.Sprintf(
				"The work isn't quite ready: overall %.1f/10.\n\n%s\n\nHead back into execution, strengthen the deliverables, and resubmit.",
				review.OverallScore, review.Feedback)
		}
		return nil
	}

	s.ReviewID = art.ID
	t.response = formatReview(review)
	return nil
}

func (o *Orchestrator) generateResume(ctx context.Context, t *turn) error {
	s := t.state

	var review core.ArtifactReview
	if err := o.loadArtifact(ctx, t.userID, s.ReviewID, &review); err != nil {
		return err
	}
	var project core.Project
	if err := o.loadArtifact(ctx, t.userID, s.ProjectID, &project); err != nil {
		return err
	}

	t.agentName = o.agents.Reviewer.Name()
	out, err := o.agents.Reviewer.Generate(ctx, agent.ReviewerInput{
		UserID:  s.UserID,
		Mode:    agent.ModeResume,
		Project: &project,
		Review:  &review,
	})
	if err != nil {
		return err
	}

	resume := out.Resume
	resume.ProjectID = s.ProjectID
	resume.ReviewID = s.ReviewID
	if resume.ProjectTitle == "" {
		resume.ProjectTitle = project.Title
	}

	rev, err := o.nextRevision(ctx, t.userID, core.ArtifactResume)
	if err != nil {
		return err
	}
	art, err := core.NewArtifact(util.NewID(), s.UserID, core.ArtifactResume, rev, resume)
	if err != nil {
		return err
	}
	t.artifacts = append(t.artifacts, art)
	s.ResumeGenerated = true

	if o.transition(t, core.PhaseCompleted, "resume package generated") {
		t.response = formatResume(resume)
	}
	return nil
}

// handleCompleted relays post-journey messages conversationally.
func (o *Orchestrator) handleCompleted(ctx context.Context, t *turn) error {
	s := t.state
	data := map[string]string{"user_message": t.message}
	if s.ProjectID != "" {
		var project core.Project
		if err := o.loadArtifact(ctx, t.userID, s.ProjectID, &project); err == nil {
			data["project_title"] = project.Title
		}
	}

	t.agentName = o.agents.Relay.Name()
	out, err := o.agents.Relay.Generate(ctx, agent.RelayInput{
		UserID: s.UserID,
		Phase:  core.PhaseCompleted,
		Topic:  "journey complete",
		Data:   data,
	})
	if err != nil {
		return err
	}
	t.response = out.Message
	return nil
}

// loadArtifact fetches the artifact by id and decodes its payload.
func (o *Orchestrator) loadArtifact(ctx context.Context, userID, artifactID string, out any) error {
	art, err := o.store.GetArtifact(ctx, userID, artifactID)
	if err != nil {
		return err
	}
	return art.Decode(out)
}

// nextRevision returns one past the number of stored artifacts of the kind.
func (o *Orchestrator) nextRevision(ctx context.Context, userID string, kind core.ArtifactKind) (int, error) {
	arts, err := o.store.ListArtifacts(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range arts {
		if a.Kind == kind {
			n++
		}
	}
	return n + 1, nil
}

// priorProjectTitles lists the titles of earlier proposals so regeneration
// avoids repeating them, along with how many proposals exist.
func (o *Orchestrator) priorProjectTitles(ctx context.Context, userID string) ([]string, int, error) {
	arts, err := o.store.ListArtifacts(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	var titles []string
	n := 0
	for _, a := range arts {
		if a.Kind != core.ArtifactProject {
			continue
		}
		n++
		var p core.Project
		if err := a.Decode(&p); err == nil && p.Title != "" {
			titles = append(titles, p.Title)
		}
	}
	return titles, n, nil
}
