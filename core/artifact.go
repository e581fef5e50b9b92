package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// ArtifactKind tags the closed set of durable domain artifacts.
type ArtifactKind string

const (
	ArtifactProject       ArtifactKind = "project"
	ArtifactProblem       ArtifactKind = "problem_definition"
	ArtifactSolution      ArtifactKind = "solution_design"
	ArtifactMilestonePlan ArtifactKind = "milestone_plan"
	ArtifactReviewKind    ArtifactKind = "artifact_review"
	ArtifactResume        ArtifactKind = "resume_package"
)

// Artifact is the storage envelope for a domain artifact. Artifacts are
// superseded (a new row with a higher revision) on every regeneration and
// never deleted, so the full history stays auditable.
type Artifact struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      ArtifactKind    `json:"kind"`
	Revision  int             `json:"revision"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// NewArtifact wraps a typed payload into a storage envelope.
func NewArtifact(id, userID string, kind ArtifactKind, revision int, payload any) (*Artifact, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Artifact{
		ID:        id,
		UserID:    userID,
		Kind:      kind,
		Revision:  revision,
		CreatedAt: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Decode unmarshals the payload into the given typed artifact.
func (a *Artifact) Decode(out any) error {
	if err := json.Unmarshal(a.Payload, out); err != nil {
		return fmt.Errorf("decode %s artifact %s: %w", a.Kind, a.ID, err)
	}
	return nil
}

// Project is the generated project proposal presented for user approval.
type Project struct {
	Title        string        `json:"title"`
	ProjectType  string        `json:"project_type"`
	Description  string        `json:"description"`
	WhyRelevant  string        `json:"why_relevant"`
	Feasibility  string        `json:"feasibility"`
	Deliverables []Deliverable `json:"deliverables"`
}

// Deliverable is one concrete output the project must produce.
type Deliverable struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	Format             string   `json:"format"`
	EvaluationCriteria []string `json:"evaluation_criteria"`
}

// ProblemDefinition is the user's problem statement, carrying the evaluator's
// problem-lens sub-scores once scored.
type ProblemDefinition struct {
	ProjectID      string             `json:"project_id"`
	Statement      string             `json:"statement"`
	TargetAudience string             `json:"target_audience"`
	Context        string             `json:"context"`
	SuccessMetrics []string           `json:"success_metrics,omitempty"`
	Scores         map[string]float64 `json:"scores,omitempty"`
	Feedback       string             `json:"feedback,omitempty"`
	Approved       bool               `json:"approved"`
}

// SolutionDesign is the user's solution approach, carrying the evaluator's
// solution-lens sub-scores once scored.
type SolutionDesign struct {
	ProjectID     string             `json:"project_id"`
	ProblemID     string             `json:"problem_id"`
	Approach      string             `json:"approach"`
	KeyComponents []string           `json:"key_components,omitempty"`
	Methodology   string             `json:"methodology,omitempty"`
	Outcomes      []string           `json:"outcomes,omitempty"`
	Scores        map[string]float64 `json:"scores,omitempty"`
	Feedback      string             `json:"feedback,omitempty"`
	Approved      bool               `json:"approved"`
}

// MilestoneStatus tracks progress of a single milestone.
type MilestoneStatus string

const (
	MilestoneNotStarted MilestoneStatus = "not_started"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneBlocked    MilestoneStatus = "blocked"
)

// Milestone is one ordered step of the execution plan.
type Milestone struct {
	Order       int             `json:"order"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Deliverable string          `json:"deliverable"`
	Status      MilestoneStatus `json:"status"`
}

// MilestonePlan is the coach-generated execution plan.
type MilestonePlan struct {
	ProjectID  string      `json:"project_id"`
	Milestones []Milestone `json:"milestones"`
}

// ArtifactReview is the reviewer's objective evaluation of submitted work.
type ArtifactReview struct {
	ProjectID          string             `json:"project_id"`
	SubmittedWork      string             `json:"submitted_work"`
	OverallScore       float64            `json:"overall_score"`
	CriterionScores    map[string]float64 `json:"criterion_scores"`
	Feedback           string             `json:"feedback"`
	Strengths          []string           `json:"strengths,omitempty"`
	Improvements       []string           `json:"improvements,omitempty"`
	SkillsDemonstrated []string           `json:"skills_demonstrated,omitempty"`
}

// ResumeBullet is one evidence-grounded resume claim. Evidence must be a
// literal span of the submitted artifact text; unsupported claims are
// rejected at the agent boundary.
type ResumeBullet struct {
	Text     string   `json:"text"`
	Skills   []string `json:"skills,omitempty"`
	Evidence string   `json:"evidence"`
}

// ResumePackage is the final deliverable of the journey.
type ResumePackage struct {
	ProjectID     string         `json:"project_id"`
	ReviewID      string         `json:"review_id"`
	ProjectTitle  string         `json:"project_title"`
	OneLiner      string         `json:"one_liner"`
	Description   string         `json:"description"`
	Bullets       []ResumeBullet `json:"bullets"`
	Skills        []string       `json:"skills,omitempty"`
	TalkingPoints []string       `json:"talking_points,omitempty"`
}
