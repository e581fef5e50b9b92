// Package sapiens provides a high-level facade over the orchestrator and its
// service abstractions (state store, audit log, artifacts and logging) for
// embedding the mentoring journey in a host application. Most callers:
//  1. Create a Sapiens via New(), supplying a model.Model (optionally
//     overriding the default in-memory store)
//  2. Send user messages with Chat and render the returned reply text
//
// The facade delegates all sequencing to orchestrator.Orchestrator while
// keeping setup concise. The defaults are safe for local development and
// testing; production deployments supply the SQLite store and a structured
// logger, as cmd/sapiens does.
package sapiens

import (
	"context"
	"time"

	"github.com/mason-sapiens/sapiens-mvp/agent"
	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/knowledge"
	"github.com/mason-sapiens/sapiens-mvp/logging"
	"github.com/mason-sapiens/sapiens-mvp/model"
	"github.com/mason-sapiens/sapiens-mvp/orchestrator"
	"github.com/mason-sapiens/sapiens-mvp/store"
)

// Options configures the Sapiens instance.
type Options struct {
	// Store holds state, audit log and artifacts. Defaults to an in-memory
	// implementation when nil.
	Store core.Store

	// Retriever supplies domain snippets to agent prompts. Optional.
	Retriever knowledge.Retriever

	// AgentTimeout bounds each model invocation. Zero uses the agent
	// package default.
	AgentTimeout time.Duration

	// StrictUsers rejects messages from users with no existing record.
	StrictUsers bool

	// Logger defaults to a no-op logger when nil.
	Logger logging.Logger
}

// Sapiens is the high-level facade aggregating the orchestrator and its
// backing store.
type Sapiens struct {
	opts Options
	orch *orchestrator.Orchestrator
}

// New creates a Sapiens instance driving every agent with the given model.
// Any unset service is initialized with an in-memory implementation.
func New(m model.Model, optFns ...func(o *Options)) *Sapiens {
	opts := Options{
		Store:  store.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	agentOpts := func(o *agent.Options) {
		o.Logger = opts.Logger
		o.Retriever = opts.Retriever
		if opts.AgentTimeout > 0 {
			o.Timeout = opts.AgentTimeout
		}
	}
	agents := orchestrator.Agents{
		Relay:     agent.NewRelay(m, agentOpts),
		Generator: agent.NewGenerator(m, agentOpts),
		Evaluator: agent.NewEvaluator(m, agentOpts),
		Coach:     agent.NewCoach(m, agentOpts),
		Reviewer:  agent.NewReviewer(m, agentOpts),
	}

	orch := orchestrator.New(opts.Store, agents, func(o *orchestrator.Options) {
		o.Logger = opts.Logger
		o.StrictUsers = opts.StrictUsers
	})

	return &Sapiens{opts: opts, orch: orch}
}

// Chat processes one user message and returns the reply for it.
func (s *Sapiens) Chat(ctx context.Context, userID, message string) (*orchestrator.Reply, error) {
	return s.orch.Process(ctx, userID, message)
}

// State returns the current journey record for a user.
func (s *Sapiens) State(ctx context.Context, userID string) (*core.UserState, error) {
	return s.opts.Store.GetState(ctx, userID)
}
