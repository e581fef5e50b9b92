package agent

import (
	"context"
	"fmt"

	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/model"
)

// CoachMode selects between plan creation and progress tracking.
type CoachMode string

const (
	// ModePlan builds the milestone plan from the approved problem and
	// solution.
	ModePlan CoachMode = "plan"

	// ModeProgress processes a user progress update against the plan.
	ModeProgress CoachMode = "progress"
)

// CoachInput carries either the artifacts a plan is built from, or the plan
// plus a progress update.
type CoachInput struct {
	UserID   string                  `json:"user_id"`
	Mode     CoachMode               `json:"mode"`
	Problem  *core.ProblemDefinition `json:"problem,omitempty"`
	Solution *core.SolutionDesign    `json:"solution,omitempty"`

	Plan             *core.MilestonePlan `json:"plan,omitempty"`
	CurrentMilestone int                 `json:"current_milestone,omitempty"`
	Update           string              `json:"update,omitempty"`
}

// CoachOutput always carries exactly one actionable next step, never zero
// and never multiple.
type CoachOutput struct {
	Mode     CoachMode           `json:"mode"`
	Plan     *core.MilestonePlan `json:"plan,omitempty"`
	Feedback string              `json:"feedback"`
	NextStep string              `json:"next_step"`

	// MilestoneDone reports that the progress update completed the
	// current milestone.
	MilestoneDone bool `json:"milestone_done,omitempty"`

	// Stagnation flags repeated updates without substantive progress.
	Stagnation bool `json:"stagnation,omitempty"`
}

// Coach creates the milestone plan and tracks execution progress.
type Coach struct {
	base
}

// NewCoach constructs the progress-tracking coach agent.
func NewCoach(m model.Model, optFns ...func(o *Options)) *Coach {
	return &Coach{base: newBase("coach", m, buildOptions(optFns))}
}

const planInstructions = `You are an execution coach. From the approved problem definition and
solution design, build a plan of 4 to 6 ordered milestones covering 2-3
weeks of solo work. Each milestone has a concrete deliverable. Status of
every milestone starts as "not_started".

Respond with a JSON object:
{
  "plan": {"milestones": [
    {"order": 1, "title": "...", "description": "...",
     "deliverable": "...", "status": "not_started"}
  ]},
  "feedback": "encouraging framing of the plan",
  "next_step": "the single first action to take"
}`

const progressInstructions = `You are an execution coach processing a progress update against the current
milestone plan. Decide whether the update completes the current milestone,
flag stagnation when updates repeat without substance, and always give
exactly ONE actionable next step.

Respond with a JSON object:
{
  "feedback": "specific reaction to the update",
  "next_step": "the single next action",
  "milestone_done": false,
  "stagnation": false
}`

// Generate implements the coach contract.
func (c *Coach) Generate(ctx context.Context, in CoachInput) (*CoachOutput, error) {
	instructions, err := c.instructionsFor(in)
	if err != nil {
		return nil, err
	}
	payload, err := encodePayload(in)
	if err != nil {
		return nil, err
	}

	var out CoachOutput
	if err := c.generateJSON(ctx, instructions, payload, &out, func() error {
		if out.NextStep == "" {
			return fmt.Errorf("missing next_step")
		}
		if in.Mode == ModePlan {
			return validatePlan(out.Plan)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	out.Mode = in.Mode
	return &out, nil
}

func (c *Coach) instructionsFor(in CoachInput) (string, error) {
	switch in.Mode {
	case ModePlan:
		if in.Problem == nil || in.Solution == nil {
			return "", fmt.Errorf("%w: plan mode requires problem and solution", ErrMalformed)
		}
		return planInstructions, nil
	case ModeProgress:
		if in.Plan == nil {
			return "", fmt.Errorf("%w: progress mode requires the milestone plan", ErrMalformed)
		}
		return progressInstructions, nil
	default:
		return "", fmt.Errorf("%w: unknown coach mode %q", ErrMalformed, in.Mode)
	}
}

func validatePlan(plan *core.MilestonePlan) error {
	if plan == nil {
		return fmt.Errorf("missing plan")
	}
	n := len(plan.Milestones)
	if n < 4 || n > 6 {
		return fmt.Errorf("plan must have 4-6 milestones, got %d", n)
	}
	for i, ms := range plan.Milestones {
		if ms.Title == "" || ms.Deliverable == "" {
			return fmt.Errorf("milestone %d incomplete", i+1)
		}
	}
	return nil
}
