// Package orchestrator owns every decision of the journey: it routes each
// inbound message to the handler of the user's current phase, invokes at
// most one agent per request, drives the state machine, and commits the
// whole turn atomically before the response is returned. Agents propose,
// the orchestrator disposes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mason-sapiens/sapiens-mvp/agent"
	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/journey"
	"github.com/mason-sapiens/sapiens-mvp/logging"
	"github.com/mason-sapiens/sapiens-mvp/internal/util"
)

// MaxMessageLength bounds one inbound message.
const MaxMessageLength = 8000

// Agents bundles the five stateless agents the orchestrator may invoke.
type Agents struct {
	Relay     *agent.Relay
	Generator *agent.Generator
	Evaluator *agent.Evaluator
	Coach     *agent.Coach
	Reviewer  *agent.Reviewer
}

// Options configure orchestrator construction.
type Options struct {
	Logger logging.Logger

	// StrictUsers rejects messages from unknown users instead of creating
	// a fresh record on first contact.
	StrictUsers bool
}

// Reply is the outcome of one processed message.
type Reply struct {
	UserID       string     `json:"user_id"`
	ResponseText string     `json:"response_text"`
	CurrentState core.Phase `json:"current_state"`
}

// Orchestrator is the deterministic control plane of the journey.
type Orchestrator struct {
	store       core.Store
	machine     *journey.Machine
	agents      Agents
	logger      logging.Logger
	strictUsers bool
	inflight    *userLocks
}

// New constructs an Orchestrator over the given store and agents.
func New(store core.Store, agents Agents, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		store:       store,
		machine:     journey.New(),
		agents:      agents,
		logger:      opts.Logger,
		strictUsers: opts.StrictUsers,
		inflight:    newUserLocks(),
	}
}

// turn accumulates everything one request decides before the atomic commit.
type turn struct {
	userID   string
	message  string
	preState core.Phase

	state      *core.UserState
	agentName  string
	response   string
	transition *core.StateTransition
	artifacts  []*core.Artifact
}

// Process handles one inbound user message end to end: validate, lock the
// user, dispatch to the phase handler, persist the full turn, respond. The
// response is returned only after the commit succeeded.
func (o *Orchestrator) Process(ctx context.Context, userID, message string) (*Reply, error) {
	userID = strings.TrimSpace(userID)
	message = strings.TrimSpace(message)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", core.ErrValidation)
	}
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", core.ErrValidation)
	}
	if len(message) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", core.ErrValidation, MaxMessageLength)
	}

	release, ok := o.inflight.Acquire(userID)
	if !ok {
		return nil, fmt.Errorf("%w: a request for user %q is already in flight", core.ErrBusy, userID)
	}
	defer release()

	state, err := o.loadState(ctx, userID)
	if err != nil {
		return nil, err
	}

	t := &turn{
		userID:   userID,
		message:  message,
		preState: state.CurrentState,
		state:    state.Clone(),
	}
	t.state.LastActivityAt = util.Now()

	if err := o.dispatch(ctx, t); err != nil {
		if agent.IsRecoverable(err) {
			return o.commitFailure(ctx, t, err)
		}
		return nil, err
	}
	return o.commit(ctx, t)
}

func (o *Orchestrator) loadState(ctx context.Context, userID string) (*core.UserState, error) {
	state, err := o.store.GetState(ctx, userID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	if o.strictUsers {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownUser, userID)
	}
	return core.NewUserState(userID), nil
}

func (o *Orchestrator) dispatch(ctx context.Context, t *turn) error {
	switch t.state.CurrentState {
	case core.PhaseOnboarding:
		return o.handleOnboarding(t)
	case core.PhaseProjectGeneration:
		return o.handleProjectGeneration(ctx, t)
	case core.PhaseProblemDefinition:
		return o.handleProblemDefinition(ctx, t)
	case core.PhaseSolutionDesign:
		return o.handleSolutionDesign(ctx, t)
	case core.PhaseExecution:
		return o.handleExecution(ctx, t)
	case core.PhaseReview:
		return o.handleReview(ctx, t)
	case core.PhaseCompleted:
		return o.handleCompleted(ctx, t)
	default:
		return fmt.Errorf("unroutable phase %q for user %q", t.state.CurrentState, t.userID)
	}
}

// transition attempts the phase change and records the outcome either way.
// A rejected attempt leaves the working state untouched and installs a
// re-prompt response naming what is missing.
func (o *Orchestrator) transition(t *turn, to core.Phase, reason string) bool {
	next, err := o.machine.Apply(t.state, to)
	if err != nil {
		t.transition = &core.StateTransition{
			UserID:    t.userID,
			FromState: t.state.CurrentState,
			ToState:   to,
			Timestamp: util.Now(),
			Accepted:  false,
			Reason:    err.Error(),
		}
		o.logger.Warn("transition rejected",
			"user_id", t.userID, "from", t.state.CurrentState, "to", to, "error", err)
		if inv, ok := core.IsInvalidTransition(err); ok {
			t.response = rejectionMessage(inv)
		} else {
			t.response = msgTryAgain
		}
		return false
	}

	t.transition = &core.StateTransition{
		UserID:    t.userID,
		FromState: t.state.CurrentState,
		ToState:   to,
		Timestamp: util.Now(),
		Accepted:  true,
		Reason:    reason,
	}
	t.state = next
	o.logger.Info("transition accepted",
		"user_id", t.userID, "from", t.transition.FromState, "to", to, "reason", reason)
	return true
}

// commit persists the full turn atomically, then responds. A persistence
// error here is fatal for the request: the decided turn must never be
// acknowledged unrecorded.
func (o *Orchestrator) commit(ctx context.Context, t *turn) (*Reply, error) {
	rec := core.TurnRecord{
		State:      t.state,
		Transition: t.transition,
		Entries: []core.ConversationLogEntry{
			core.UserEntry(t.userID, t.message, t.preState),
			core.AgentEntry(t.userID, t.agentName, t.response, t.state.CurrentState),
		},
		Artifacts: t.artifacts,
	}
	if err := o.store.CommitTurn(ctx, rec); err != nil {
		o.logger.Error("turn commit failed", "user_id", t.userID, "error", err)
		if errors.Is(err, core.ErrPersistence) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}
	return &Reply{
		UserID:       t.userID,
		ResponseText: t.response,
		CurrentState: t.state.CurrentState,
	}, nil
}

// commitFailure records a recoverable agent failure without advancing the
// journey: the phase stays where it was and the user is asked to retry.
func (o *Orchestrator) commitFailure(ctx context.Context, t *turn, agentErr error) (*Reply, error) {
	o.logger.Warn("agent call failed, turn preserved",
		"user_id", t.userID, "phase", t.preState, "error", agentErr)

	state := t.state.Clone()
	state.CurrentState = t.preState

	rec := core.TurnRecord{
		State: state,
		Entries: []core.ConversationLogEntry{
			core.UserEntry(t.userID, t.message, t.preState),
			core.AgentEntry(t.userID, t.agentName, "agent failure: "+agentErr.Error(), t.preState),
		},
	}
	if err := o.store.CommitTurn(ctx, rec); err != nil {
		o.logger.Error("failure commit failed", "user_id", t.userID, "error", err)
		return nil, err
	}
	return &Reply{
		UserID:       t.userID,
		ResponseText: msgAgentFailure,
		CurrentState: t.preState,
	}, nil
}
