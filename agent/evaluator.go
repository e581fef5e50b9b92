package agent

import (
	"context"
	"fmt"

	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/model"
)

// Verdict is the discriminated result of an evaluation.
type Verdict string

const (
	VerdictApproved      Verdict = "APPROVED"
	VerdictNeedsRevision Verdict = "NEEDS_REVISION"
)

// Pass rule thresholds, fixed by contract.
const (
	passMeanThreshold = 7.0
	passMinThreshold  = 6.0
)

// Judge applies the fixed pass rule to named sub-scores:
// mean(subscores) >= 7.0 AND min(subscores) >= 6.0 yields APPROVED.
// An empty score set never passes.
func Judge(scores map[string]float64) Verdict {
	if len(scores) == 0 {
		return VerdictNeedsRevision
	}
	var sum float64
	min := 10.0
	for _, s := range scores {
		sum += s
		if s < min {
			min = s
		}
	}
	if sum/float64(len(scores)) >= passMeanThreshold && min >= passMinThreshold {
		return VerdictApproved
	}
	return VerdictNeedsRevision
}

// EvaluationMode selects which lens the evaluator applies.
type EvaluationMode string

const (
	// ModeProblem scores a problem definition on market relevance,
	// clarity and feasibility.
	ModeProblem EvaluationMode = "problem"

	// ModeSolution scores a solution design on logical coherence,
	// innovation, implementation feasibility and impact potential.
	ModeSolution EvaluationMode = "solution"
)

// scoreKeys lists the named sub-scores the model must return per mode.
var scoreKeys = map[EvaluationMode][]string{
	ModeProblem:  {"market_relevance", "clarity", "feasibility"},
	ModeSolution: {"logical_coherence", "innovation", "implementation_feasibility", "impact_potential"},
}

// EvaluatorInput is the submitted artifact plus the lens to apply. Exactly
// one of Problem or Solution is set, matching Mode; ProblemContext gives the
// approved problem when evaluating a solution.
type EvaluatorInput struct {
	UserID         string                  `json:"user_id"`
	Mode           EvaluationMode          `json:"mode"`
	Problem        *core.ProblemDefinition `json:"problem,omitempty"`
	Solution       *core.SolutionDesign    `json:"solution,omitempty"`
	ProblemContext *core.ProblemDefinition `json:"problem_context,omitempty"`
	Context        string                  `json:"context,omitempty"`
}

// EvaluatorOutput carries the named sub-scores, the derived verdict and
// free-text feedback.
type EvaluatorOutput struct {
	Mode        EvaluationMode     `json:"mode"`
	Verdict     Verdict            `json:"verdict"`
	Scores      map[string]float64 `json:"scores"`
	Feedback    string             `json:"feedback"`
	Suggestions []string           `json:"suggestions,omitempty"`

	// ReviseUpstream is set when a solution-mode NEEDS_REVISION verdict
	// finds the flaw in the underlying problem definition rather than the
	// solution itself; it unlocks the declared backward edge.
	ReviseUpstream bool `json:"revise_upstream,omitempty"`
}

// Evaluator scores submitted artifacts through the problem lens or the
// solution lens, selected by the caller.
type Evaluator struct {
	base
}

// NewEvaluator constructs the dual-mode evaluator agent.
func NewEvaluator(m model.Model, optFns ...func(o *Options)) *Evaluator {
	return &Evaluator{base: newBase("evaluator", m, buildOptions(optFns))}
}

const problemInstructions = `You are a rigorous tutor evaluating a problem definition through a market
research lens. Score each criterion from 0 to 10 and give specific,
actionable feedback.

Respond with a JSON object:
{
  "scores": {"market_relevance": 0-10, "clarity": 0-10, "feasibility": 0-10},
  "feedback": "overall assessment",
  "suggestions": ["specific improvement", "..."]
}`

const solutionInstructions = `You are a rigorous tutor evaluating a solution design through a practitioner
lens, against the approved problem definition in problem_context. Score each
criterion from 0 to 10 and give specific, actionable feedback. Set
revise_upstream to true only when the decisive weakness lies in the problem
definition itself rather than in the solution.

Respond with a JSON object:
{
  "scores": {"logical_coherence": 0-10, "innovation": 0-10,
             "implementation_feasibility": 0-10, "impact_potential": 0-10},
  "feedback": "overall assessment",
  "suggestions": ["specific improvement", "..."],
  "revise_upstream": false
}`

// Generate implements the evaluator contract. The verdict is derived from
// the returned sub-scores by the fixed pass rule, never by the model.
func (e *Evaluator) Generate(ctx context.Context, in EvaluatorInput) (*EvaluatorOutput, error) {
	instructions, err := e.instructionsFor(in)
	if err != nil {
		return nil, err
	}
	payload, err := encodePayload(in)
	if err != nil {
		return nil, err
	}

	var out EvaluatorOutput
	if err := e.generateJSON(ctx, instructions, payload, &out, func() error {
		return validateScores(out.Scores, scoreKeys[in.Mode])
	}); err != nil {
		return nil, err
	}

	out.Mode = in.Mode
	out.Verdict = Judge(out.Scores)
	if out.Verdict == VerdictApproved {
		out.ReviseUpstream = false
	}
	if in.Mode == ModeProblem {
		out.ReviseUpstream = false
	}
	return &out, nil
}

func (e *Evaluator) instructionsFor(in EvaluatorInput) (string, error) {
	switch in.Mode {
	case ModeProblem:
		if in.Problem == nil {
			return "", fmt.Errorf("%w: problem mode without problem definition", ErrMalformed)
		}
		return problemInstructions, nil
	case ModeSolution:
		if in.Solution == nil {
			return "", fmt.Errorf("%w: solution mode without solution design", ErrMalformed)
		}
		return solutionInstructions, nil
	default:
		return "", fmt.Errorf("%w: unknown evaluation mode %q", ErrMalformed, in.Mode)
	}
}

// validateScores checks every expected sub-score is present and in [0,10].
func validateScores(scores map[string]float64, keys []string) error {
	for _, k := range keys {
		s, ok := scores[k]
		if !ok {
			return fmt.Errorf("missing sub-score %q", k)
		}
		if s < 0 || s > 10 {
			return fmt.Errorf("sub-score %q out of range: %v", k, s)
		}
	}
	return nil
}
