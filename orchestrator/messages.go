package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mason-sapiens/sapiens-mvp/core"
)

// Canned responses the orchestrator formats itself. Presenting agent output
// through templates keeps each request at a single agent call.
const (
	msgWelcome = "Welcome! I'm here to help you build a portfolio project that gets you hired."
	msgAskRole = msgWelcome +
		" First things first: what role are you aiming for? (for example \"product manager\" or \"data analyst\")"
	msgDomainQuestion = "Which industry or domain interests you most? (for example fintech, healthcare, gaming)"
	msgAskDomain      = "Got it. " + msgDomainQuestion
	msgAskBackground  = "What's your current background or experience? You can also say \"skip\"."
	msgAskInterests   = "Anything specific you'd love to work on? Say \"skip\" if nothing comes to mind."

	msgRoleRequired   = "The target role is the one part I can't skip. What role are you aiming for?"
	msgDomainRequired = "I need a target domain to tailor the project to you. Which industry interests you most?"

	msgApprovalPrompt = "Does this project work for you? Reply \"yes\" to lock it in, or \"no\" and I'll propose a different one."
	msgYesOrNo        = "Sorry, I need a clear answer: reply \"yes\" to approve this project or \"no\" for a new proposal."

	msgAskProblem = "Time to define the problem your project tackles. Describe it in a few sentences: " +
		"what is the problem, who has it, and how would you measure success?"
	msgProblemTooShort = "That's a bit thin to evaluate. Give me a fuller problem statement: " +
		"what is the problem, who has it, and how you'd measure success."

	msgAskSolution = "Problem locked in. Now sketch your solution: your approach, its key components, " +
		"and what outcomes you expect."
	msgSolutionTooShort = "I need more detail to evaluate the design. Walk me through your approach, " +
		"its key components, and the outcomes you expect."

	msgAskPlan = "Let's get moving. Send any message and I'll lay out your milestone plan."

	msgAskSubmission = "You've finished every milestone. Submit your work now: paste in (or link) " +
		"the deliverables you produced so I can review them."
	msgSubmissionTooShort = "I need the actual work to review it. Paste in your deliverables or " +
		"describe in detail what you built and what it contains."

	msgAskResume = "Send any message and I'll turn this review into your resume package."

	msgAgentFailure = "I hit a snag processing that. Nothing was lost, please send your message again."
	msgTryAgain     = "I couldn't process that here. Let's keep going with the current step."
)

// fieldPrompts maps a missing required field to the re-prompt that asks the
// user to supply it.
var fieldPrompts = map[core.FieldName]string{
	core.FieldTargetRole:         "I still need your target role before we can continue.",
	core.FieldTargetDomain:       "I still need your target domain before we can continue.",
	core.FieldProjectID:          "No project has been proposed yet. Send any message and I'll generate one.",
	core.FieldProjectApproved:    "You haven't approved a project yet. " + msgApprovalPrompt,
	core.FieldProblemID:          "You haven't submitted a problem definition yet. " + msgAskProblem,
	core.FieldProblemApproved:    "Your problem definition hasn't passed evaluation yet.",
	core.FieldSolutionID: "You haven't submitted a solution design yet. Sketch your approach, " +
		"its key components, and the outcomes you expect.",
	core.FieldSolutionApproved:   "Your solution design hasn't passed evaluation yet.",
	core.FieldMilestonePlanID:    "Your milestone plan hasn't been created yet. " + msgAskPlan,
	core.FieldMilestonesComplete: "There are still milestones left to finish.",
	core.FieldReviewID:           "Your work hasn't been reviewed yet. Submit your deliverables for review first.",
	core.FieldResumeGenerated:    "Your resume package hasn't been generated yet.",
}

func rejectionMessage(inv *core.InvalidTransitionError) string {
	for _, f := range inv.Missing {
		if p, ok := fieldPrompts[f]; ok {
			return p
		}
	}
	return msgTryAgain
}

// parseApproval classifies a user reaction to a presented proposal.
type approval int

const (
	approvalUnknown approval = iota
	approvalYes
	approvalNo
)

func parseApproval(message string) approval {
	switch strings.ToLower(strings.TrimSpace(strings.TrimRight(message, ".!"))) {
	case "yes", "y", "yeah", "yep", "sure", "ok", "okay", "approve", "approved", "sounds good", "looks good", "let's do it":
		return approvalYes
	case "no", "n", "nope", "nah", "reject", "another", "another one", "regenerate", "something else", "different":
		return approvalNo
	default:
		return approvalUnknown
	}
}

// isGreeting recognizes openers that carry no profile information, so the
// first turn can tell "hi" apart from an immediate role answer.
func isGreeting(message string) bool {
	switch strings.ToLower(strings.TrimSpace(strings.TrimRight(message, ".!?,"))) {
	case "hi", "hello", "hey", "hey there", "hi there", "hello there", "hiya", "howdy", "yo",
		"good morning", "good afternoon", "good evening", "sup", "what's up",
		"start", "begin", "let's go", "let's start", "let's get started", "ready", "i'm ready",
		"ok", "okay", "help", "":
		return true
	default:
		return false
	}
}

func isSkip(message string) bool {
	switch strings.ToLower(strings.TrimSpace(strings.TrimRight(message, ".!"))) {
	case "skip", "pass", "no", "none", "nothing":
		return true
	default:
		return false
	}
}

// substantive guards agent calls behind a minimal-content check so small
// talk doesn't burn an evaluation.
func substantive(message string, minWords int) bool {
	return len(strings.Fields(message)) >= minWords
}

func formatProject(p *core.Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's your project proposal:\n\n")
	fmt.Fprintf(&b, "**%s** (%s)\n\n%s\n\n", p.Title, p.ProjectType, p.Description)
	fmt.Fprintf(&b, "Why it fits: %s\n\nFeasibility: %s\n\nDeliverables:\n", p.WhyRelevant, p.Feasibility)
	for _, d := range p.Deliverables {
		fmt.Fprintf(&b, "- %s (%s): %s\n", d.Name, d.Format, d.Description)
	}
	fmt.Fprintf(&b, "\n%s", msgApprovalPrompt)
	return b.String()
}

func formatScores(scores map[string]float64) string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %.1f", strings.ReplaceAll(k, "_", " "), scores[k]))
	}
	return strings.Join(parts, ", ")
}

func formatRevision(scores map[string]float64, feedback string, suggestions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Not quite there yet. Scores: %s.\n\n%s\n", formatScores(scores), feedback)
	if len(suggestions) > 0 {
		b.WriteString("\nTo improve:\n")
		for _, s := range suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	b.WriteString("\nRevise and send it again.")
	return b.String()
}

func formatPlan(plan *core.MilestonePlan, feedback, nextStep string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nYour milestone plan:\n", feedback)
	for _, m := range plan.Milestones {
		fmt.Fprintf(&b, "%d. %s: %s (deliverable: %s)\n", m.Order, m.Title, m.Description, m.Deliverable)
	}
	fmt.Fprintf(&b, "\nFirst step: %s", nextStep)
	return b.String()
}

func formatReview(r *core.ArtifactReview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review complete. Overall score: %.1f/10 (%s).\n\n%s\n",
		r.OverallScore, formatScores(r.CriterionScores), r.Feedback)
	if len(r.Strengths) > 0 {
		b.WriteString("\nStrengths:\n")
		for _, s := range r.Strengths {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if len(r.Improvements) > 0 {
		b.WriteString("\nCould be stronger:\n")
		for _, s := range r.Improvements {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	fmt.Fprintf(&b, "\n%s", msgAskResume)
	return b.String()
}

func formatResume(r *core.ResumePackage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your resume package is ready.\n\n**%s**: %s\n\n%s\n\nBullets:\n",
		r.ProjectTitle, r.OneLiner, r.Description)
	for _, bl := range r.Bullets {
		fmt.Fprintf(&b, "- %s\n", bl.Text)
	}
	if len(r.Skills) > 0 {
		fmt.Fprintf(&b, "\nSkills: %s\n", strings.Join(r.Skills, ", "))
	}
	if len(r.TalkingPoints) > 0 {
		b.WriteString("\nInterview talking points:\n")
		for _, tp := range r.TalkingPoints {
			fmt.Fprintf(&b, "- %s\n", tp)
		}
	}
	b.WriteString("\nCongratulations on finishing the journey!")
	return b.String()
}
