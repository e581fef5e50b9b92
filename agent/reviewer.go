package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/model"
)

// ReviewMode selects between artifact review and resume generation.
type ReviewMode string

const (
	// ModeReview scores the submitted final work against the project's
	// evaluation criteria.
	ModeReview ReviewMode = "review"

	// ModeResume builds the resume package from the completed review.
	ModeResume ReviewMode = "resume"
)

// ReviewerInput carries the final artifacts under review, or the completed
// review a resume is generated from.
type ReviewerInput struct {
	UserID        string                  `json:"user_id"`
	Mode          ReviewMode              `json:"mode"`
	Project       *core.Project           `json:"project,omitempty"`
	SubmittedWork string                  `json:"submitted_work,omitempty"`
	Problem       *core.ProblemDefinition `json:"problem,omitempty"`
	Solution      *core.SolutionDesign    `json:"solution,omitempty"`
	Review        *core.ArtifactReview    `json:"review,omitempty"`
}

// ReviewerOutput carries the review or the resume package, depending on
// mode.
type ReviewerOutput struct {
	Mode   ReviewMode           `json:"mode"`
	Review *core.ArtifactReview `json:"review,omitempty"`
	Resume *core.ResumePackage  `json:"resume,omitempty"`
}

// Reviewer evaluates final artifacts objectively and generates
// evidence-grounded resume content. Every resume claim must be traceable to
// a span of the submitted artifact text; unsupported claims are rejected as
// malformed output ("no inflation").
type Reviewer struct {
	base
}

// NewReviewer constructs the reviewer agent.
func NewReviewer(m model.Model, optFns ...func(o *Options)) *Reviewer {
	return &Reviewer{base: newBase("reviewer", m, buildOptions(optFns))}
}

const reviewInstructions = `You are an objective reviewer scoring submitted project work against the
evaluation criteria declared in the project deliverables. Score each
criterion 0-10, compute an overall score, and give honest feedback. Do not
inflate.

Respond with a JSON object:
{
  "review": {
    "overall_score": 0-10,
    "criterion_scores": {"criterion": 0-10, "...": 0},
    "feedback": "...",
    "strengths": ["..."],
    "improvements": ["..."],
    "skills_demonstrated": ["..."]
  }
}`

const resumeInstructions = `You generate resume content strictly grounded in work the user actually
did. Produce 3-5 action-oriented bullets. For every bullet, the "evidence"
field must be an EXACT quote copied verbatim from submitted_work; bullets
whose evidence is not a verbatim quote will be rejected. Never invent
metrics or claims.

Respond with a JSON object:
{
  "resume": {
    "project_title": "...",
    "one_liner": "...",
    "description": "2-3 sentences",
    "bullets": [
      {"text": "...", "skills": ["..."], "evidence": "verbatim quote"}
    ],
    "skills": ["..."],
    "talking_points": ["..."]
  }
}`

// Generate implements the reviewer contract.
func (r *Reviewer) Generate(ctx context.Context, in ReviewerInput) (*ReviewerOutput, error) {
	instructions, err := r.instructionsFor(in)
	if err != nil {
		return nil, err
	}
	payload, err := encodePayload(in)
	if err != nil {
		return nil, err
	}

	var out ReviewerOutput
	if err := r.generateJSON(ctx, instructions, payload, &out, func() error {
		switch in.Mode {
		case ModeReview:
			return validateReview(out.Review)
		case ModeResume:
			return validateResume(out.Resume, in.Review)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	out.Mode = in.Mode
	return &out, nil
}

func (r *Reviewer) instructionsFor(in ReviewerInput) (string, error) {
	switch in.Mode {
	case ModeReview:
		if in.SubmittedWork == "" {
			return "", fmt.Errorf("%w: review mode without submitted work", ErrMalformed)
		}
		return reviewInstructions, nil
	case ModeResume:
		if in.Review == nil {
			return "", fmt.Errorf("%w: resume mode without completed review", ErrMalformed)
		}
		return resumeInstructions, nil
	default:
		return "", fmt.Errorf("%w: unknown review mode %q", ErrMalformed, in.Mode)
	}
}

func validateReview(review *core.ArtifactReview) error {
	if review == nil {
		return fmt.Errorf("missing review")
	}
	if review.OverallScore < 0 || review.OverallScore > 10 {
		return fmt.Errorf("overall score out of range: %v", review.OverallScore)
	}
	if len(review.CriterionScores) == 0 {
		return fmt.Errorf("missing criterion scores")
	}
	for name, s := range review.CriterionScores {
		if s < 0 || s > 10 {
			return fmt.Errorf("criterion %q score out of range: %v", name, s)
		}
	}
	if review.Feedback == "" {
		return fmt.Errorf("missing feedback")
	}
	return nil
}

// validateResume enforces the no-inflation contract: every bullet's evidence
// must appear verbatim in the reviewed artifact text.
func validateResume(resume *core.ResumePackage, review *core.ArtifactReview) error {
	if resume == nil {
		return fmt.Errorf("missing resume package")
	}
	if n := len(resume.Bullets); n < 3 || n > 5 {
		return fmt.Errorf("resume must have 3-5 bullets, got %d", n)
	}
	for i, b := range resume.Bullets {
		if b.Text == "" {
			return fmt.Errorf("bullet %d has no text", i+1)
		}
		if b.Evidence == "" {
			return fmt.Errorf("bullet %d has no evidence", i+1)
		}
		if review != nil && !strings.Contains(review.SubmittedWork, b.Evidence) {
			return fmt.Errorf("bullet %d evidence not found in submitted work", i+1)
		}
	}
	return nil
}
