package agent

import (
	"context"
	"fmt"

	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/model"
)

// GeneratorInput carries the user profile a project proposal is built from.
type GeneratorInput struct {
	UserID       string `json:"user_id"`
	TargetRole   string `json:"target_role"`
	TargetDomain string `json:"target_domain"`
	Background   string `json:"background,omitempty"`
	Interests    string `json:"interests,omitempty"`

	// PriorTitles lists previously rejected proposals so regeneration
	// avoids repeating them.
	PriorTitles []string `json:"prior_titles,omitempty"`

	// Context is optional retrieved domain knowledge, with citations.
	Context string `json:"context,omitempty"`
}

// GeneratorOutput is the structured proposal artifact.
type GeneratorOutput struct {
	Project   core.Project `json:"project"`
	Reasoning string       `json:"reasoning"`
}

// Generator produces a role-aligned project proposal with feasibility and
// deliverable fields.
type Generator struct {
	base
}

// NewGenerator constructs the project generator agent.
func NewGenerator(m model.Model, optFns ...func(o *Options)) *Generator {
	return &Generator{base: newBase("generator", m, buildOptions(optFns))}
}

const generatorInstructions = `You are an expert career coach designing portfolio projects. Given a target
role, target domain and optional background, design ONE project that a single
person can complete in 2-3 weeks, demonstrates skills relevant to the role,
and produces tangible, verifiable deliverables. Avoid any project title
listed under prior_titles.

Respond with a JSON object:
{
  "project": {
    "title": "...",
    "project_type": "research|product|campaign|startup|analysis",
    "description": "...",
    "why_relevant": "...",
    "feasibility": "why this fits in 2-3 weeks for one person",
    "deliverables": [
      {"name": "...", "description": "...", "format": "...",
       "evaluation_criteria": ["...", "..."]}
    ]
  },
  "reasoning": "why this project was chosen"
}`

// Generate implements the generator contract.
func (g *Generator) Generate(ctx context.Context, in GeneratorInput) (*GeneratorOutput, error) {
	if in.Context == "" {
		query := fmt.Sprintf("portfolio project ideas for %s in %s", in.TargetRole, in.TargetDomain)
		in.Context = g.domainContext(ctx, query, in.TargetDomain)
	}
	payload, err := encodePayload(in)
	if err != nil {
		return nil, err
	}
	var out GeneratorOutput
	if err := g.generateJSON(ctx, generatorInstructions, payload, &out, func() error {
		if out.Project.Title == "" {
			return fmt.Errorf("proposal missing title")
		}
		if len(out.Project.Deliverables) == 0 {
			return fmt.Errorf("proposal missing deliverables")
		}
		if out.Project.Feasibility == "" {
			return fmt.Errorf("proposal missing feasibility")
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &out, nil
}
